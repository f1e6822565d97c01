package probe_test

import (
	"context"
	"testing"

	"github.com/CZERTAINLY/Drydock/internal/log"
	"github.com/CZERTAINLY/Drydock/internal/probe"
	"github.com/CZERTAINLY/Drydock/internal/process/processtest"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	type then struct {
		os  string
		err bool
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{"linux", processtest.InspectJSON("linux"), then{os: "linux"}},
		{"windows", processtest.InspectJSON("windows"), then{os: "windows"}},
		{"exotic", processtest.InspectJSON("plan9"), then{os: "plan9"}},
		{"first wins", `[{"Os":"windows"},{"Os":"linux"}]`, then{os: "windows"}},
		{"empty array", `[]`, then{err: true}},
		{"no os", `[{"Id":"x"}]`, then{err: true}},
		{"object", `{"Os":"linux"}`, then{err: true}},
		{"garbage", `Error: No such image`, then{err: true}},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			os, err := probe.Parse([]byte(tc.given))
			if tc.then.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.then.os, os)
		})
	}
}

func TestOS(t *testing.T) {
	t.Parallel()

	t.Run("multiline output", func(t *testing.T) {
		fake := &processtest.Fake{
			Handler: func(_ context.Context, _ processtest.Call, out processtest.Output) int {
				out.Stdout("[")
				out.Stdout(`  {"Id": "sha256:1", "Os": "windows"}`)
				out.Stdout("]")
				return 0
			},
		}
		os, err := probe.OS(t.Context(), fake, "docker", "myreg/library/nanoserver", log.Discard())
		require.NoError(t, err)
		require.Equal(t, "windows", os)
		require.True(t, probe.IsWindows(os))
		calls := fake.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, []string{"inspect", "myreg/library/nanoserver"}, calls[0].Args)
	})

	t.Run("not cached", func(t *testing.T) {
		answers := []string{"linux", "windows"}
		var n int
		fake := &processtest.Fake{
			Handler: func(_ context.Context, _ processtest.Call, out processtest.Output) int {
				out.Stdout(processtest.InspectJSON(answers[n]))
				n++
				return 0
			},
		}
		first, err := probe.OS(t.Context(), fake, "docker", "app:latest", log.Discard())
		require.NoError(t, err)
		second, err := probe.OS(t.Context(), fake, "docker", "app:latest", log.Discard())
		require.NoError(t, err)
		require.Equal(t, "linux", first)
		require.Equal(t, "windows", second)
		require.Len(t, fake.CallsOf("inspect"), 2)
	})

	t.Run("inspect fails", func(t *testing.T) {
		fake := &processtest.Fake{
			Handler: func(_ context.Context, _ processtest.Call, out processtest.Output) int {
				out.Stdout("[]")
				out.Stderr("Error: No such image: nope")
				return 1
			},
		}
		_, err := probe.OS(t.Context(), fake, "docker", "nope", log.Discard())
		require.ErrorContains(t, err, "exit code 1")
	})

	require.False(t, probe.IsWindows("linux"))
	require.False(t, probe.IsWindows("Windows"))
}
