package registry_test

import (
	"context"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Drydock/internal/log"
	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/process"
	"github.com/CZERTAINLY/Drydock/internal/process/processtest"
	"github.com/CZERTAINLY/Drydock/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		image    string
		registry string
		then     string
	}{
		{"nginx", "myreg.local", "myreg.local/library/nginx"},
		{"nginx:1.27", "myreg.local", "myreg.local/library/nginx:1.27"},
		{"acme/app", "myreg.local", "myreg.local/acme/app"},
		{"acme/team/app:v1", "myreg.local:5000", "myreg.local:5000/acme/team/app:v1"},
		{"nginx", "", "nginx"},
		{"acme/app", "", "acme/app"},
	}
	for _, tc := range testCases {
		t.Run(tc.image+"@"+tc.registry, func(t *testing.T) {
			require.Equal(t, tc.then, registry.Resolve(tc.image, tc.registry))
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		fake := &processtest.Fake{}
		err := registry.Login(t.Context(), fake, model.Executor{Username: "u", Password: "p"}, log.Discard())
		require.NoError(t, err)
		require.Empty(t, fake.Calls())
	})

	t.Run("custom registry", func(t *testing.T) {
		fake := &processtest.Fake{}
		cfg := model.Executor{
			Executable:             "/opt/docker",
			Registry:               "myreg.local",
			AuthenticateToRegistry: true,
			Username:               "ci",
			Password:               "s3cr3t",
		}
		err := registry.Login(t.Context(), fake, cfg, log.Discard())
		require.NoError(t, err)
		calls := fake.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, "/opt/docker", calls[0].Path)
		require.Equal(t, []string{"login", "-u", "ci", "--password-stdin", "myreg.local"}, calls[0].Args)
		require.Equal(t, "s3cr3t", calls[0].Stdin)
		for _, arg := range calls[0].Args {
			require.NotContains(t, arg, "s3cr3t")
		}
	})

	t.Run("default registry", func(t *testing.T) {
		fake := &processtest.Fake{}
		cfg := model.Executor{AuthenticateToRegistry: true, Username: "ci", Password: "pw"}
		require.NoError(t, registry.Login(t.Context(), fake, cfg, log.Discard()))
		calls := fake.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, model.DefaultExecutable, calls[0].Path)
		require.Equal(t, []string{"login", "-u", "ci", "--password-stdin"}, calls[0].Args)
	})

	t.Run("failure", func(t *testing.T) {
		fake := &processtest.Fake{
			Handler: func(_ context.Context, _ processtest.Call, out processtest.Output) int {
				out.Stderr("Error response from daemon: unauthorized")
				return 1
			},
		}
		cfg := model.Executor{AuthenticateToRegistry: true, Username: "ci", Password: "bad"}
		err := registry.Login(t.Context(), fake, cfg, log.Discard())
		require.Error(t, err)
		var exitErr *process.ExitError
		require.ErrorAs(t, err, &exitErr)
		require.Equal(t, 1, exitErr.ExitCode)
		require.True(t, strings.HasPrefix(err.Error(), "registry login: "))
	})
}
