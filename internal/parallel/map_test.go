package parallel_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/Drydock/internal/parallel"
	"github.com/stretchr/testify/require"
)

func sleep(ctx context.Context, d time.Duration) (int, error) {
	select {
	case <-time.After(d):
		return int(d), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestMap(t *testing.T) {
	t.Parallel()

	input := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

	type given struct {
		limit int
		ctx   func(t *testing.T) context.Context
	}
	tCtx := func(t *testing.T) context.Context {
		t.Helper()
		return t.Context()
	}
	timeout := func(d time.Duration) func(t *testing.T) context.Context {
		return func(t *testing.T) context.Context {
			t.Helper()
			ctx, cancel := context.WithTimeout(t.Context(), d)
			t.Cleanup(cancel)
			return ctx
		}
	}

	type then struct {
		values []int
		errs   int
		since  time.Duration
	}
	all := []int{
		int(1 * time.Second),
		int(2 * time.Second),
		int(5 * time.Second),
		int(10 * time.Second),
	}

	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{"limit 1", given{1, tCtx}, then{all, 0, 18 * time.Second}},
		{"limit 10", given{10, tCtx}, then{all, 0, 10 * time.Second}},
		{"limit 10, cancel 3s", given{10, timeout(3 * time.Second)}, then{all[:2], 2, 3 * time.Second}},
		{"limit 1, cancel 4s", given{1, timeout(4 * time.Second)}, then{all[:2], 2, 4 * time.Second}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				start := time.Now()
				var values []int
				var errs int
				for v, err := range parallel.NewMap(tt.given.ctx(t), tt.given.limit, sleep).Iter(parallel.All(input)) {
					if err != nil {
						require.ErrorIs(t, err, context.DeadlineExceeded)
						errs++
						continue
					}
					values = append(values, v)
				}
				require.ElementsMatch(t, tt.then.values, values)
				require.Equal(t, tt.then.errs, errs)
				require.Equal(t, tt.then.since, time.Since(start))
			})
		})
	}
}

func TestMapInputError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	input := func(yield func(time.Duration, error) bool) {
		if !yield(time.Second, nil) {
			return
		}
		yield(0, boom)
	}

	synctest.Test(t, func(t *testing.T) {
		var values []int
		var errs []error
		for v, err := range parallel.NewMap(t.Context(), 2, sleep).Iter(input) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			values = append(values, v)
		}
		require.Equal(t, []int{int(time.Second)}, values)
		require.Equal(t, []error{boom}, errs)
	})
}

func TestMapBreak(t *testing.T) {
	t.Parallel()
	input := []time.Duration{1 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second}

	synctest.Test(t, func(t *testing.T) {
		start := time.Now()
		var values []int
		for v, err := range parallel.NewMap(t.Context(), 4, sleep).Iter(parallel.All(input)) {
			require.NoError(t, err)
			values = append(values, v)
			break
		}
		require.Equal(t, []int{int(time.Second)}, values)
		// all workers must be gone, otherwise synctest reports a deadlock
		synctest.Wait()
		require.Equal(t, time.Second, time.Since(start))
	})
}

func values[T any](i iter.Seq2[T, error]) []T {
	var ret []T
	for k, err := range i {
		if err == nil {
			ret = append(ret, k)
		}
	}
	return ret
}

func TestMapEmpty(t *testing.T) {
	t.Parallel()
	require.Empty(t, values(parallel.NewMap(t.Context(), 1, sleep).Iter(parallel.All([]time.Duration{}))))
}
