package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a parallel mapping function, which runs mapFunc for every input
// element with at most limit calls in flight and yields the results in the
// order of completion. Errors of the input sequence are passed through.
//
// Map is context aware: once the context is done, elements not started yet
// yield the context error instead of calling mapFunc. Every element yields
// exactly one result unless the consumer stops early.
//
//	for result, err := range pmap.Iter(input) {}
type Map[E, D any] struct {
	parentCtx    context.Context
	cancelParent context.CancelFunc
	g            *errgroup.Group
	gctx         context.Context
	mapped       chan result[D]
	stop         chan struct{}
	mapFunc      func(context.Context, E) (D, error)
}

func NewMap[E, D any](parentCtx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	parentCtx, cancelParent := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)
	// +1 for the feeding goroutine
	g.SetLimit(limit + 1)

	return &Map[E, D]{
		parentCtx:    parentCtx,
		cancelParent: cancelParent,
		g:            g,
		gctx:         gctx,
		mapped:       make(chan result[D], limit),
		stop:         make(chan struct{}),
		mapFunc:      mapFunc,
	}
}

// send delivers r unless the consumer went away.
func (s *Map[E, D]) send(r result[D]) bool {
	select {
	case s.mapped <- r:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Map[E, D]) goWorkers(seq iter.Seq2[E, error]) {
	s.g.Go(func() error {
		for entry, nerr := range seq {
			if nerr != nil {
				var zero D
				if !s.send(result[D]{d: zero, e: nerr}) {
					return nil
				}
				continue
			}
			select {
			case <-s.stop:
				return nil
			default:
			}
			s.g.Go(func() error {
				if err := s.gctx.Err(); err != nil {
					var zero D
					s.send(result[D]{d: zero, e: err})
					return nil
				}
				d, err := s.mapFunc(s.gctx, entry)
				s.send(result[D]{d: d, e: err})
				return nil
			})
		}
		return nil
	})
}

func (s *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		defer s.cancelParent()
		defer close(s.stop)
		s.goWorkers(seq)

		go func() {
			_ = s.g.Wait()
			close(s.mapped)
		}()

		for r := range s.mapped {
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}

// All adapts a slice to the input of Map.Iter.
func All[T any](s []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, x := range s {
			if !yield(x, nil) {
				return
			}
		}
	}
}
