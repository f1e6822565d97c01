package model_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
executor:
  executable: /usr/local/bin/docker
  registry: myreg.local
  authenticateToRegistry: true
  username: ci
  password: secret
  runOptions: "-m 2g"
  capacity: 3
jobs:
  - name: build
    image: golang:1.24
    commands:
      - go version
      - go test ./...
    source: /src
service:
  mode: manual
  db: /tmp/history.db
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "/usr/local/bin/docker", cfg.Executor.DockerPath())
	require.Equal(t, "myreg.local", cfg.Executor.Registry)
	require.True(t, cfg.Executor.AuthenticateToRegistry)
	require.Equal(t, "ci", cfg.Executor.Username)
	require.Equal(t, "secret", cfg.Executor.Password)
	require.Equal(t, "-m 2g", cfg.Executor.RunOptions)
	require.Equal(t, 3, cfg.Executor.Capacity)
	require.Len(t, cfg.Jobs, 1)
	require.Equal(t, "build", cfg.Jobs[0].Name)
	require.Equal(t, []string{"go version", "go test ./..."}, cfg.Jobs[0].Commands)
	require.Equal(t, "/src", cfg.Jobs[0].Source)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	require.Equal(t, "/tmp/history.db", cfg.Service.DB)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
executor: {}
service: {}
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.DefaultExecutable, cfg.Executor.DockerPath())
	require.Equal(t, runtime.NumCPU(), cfg.Executor.Capacity)
	require.False(t, cfg.Executor.AuthenticateToRegistry)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
}

func TestLoadConfig_Fail(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    string
		then     string
	}{
		{
			scenario: "missing password",
			given: `
version: 0
executor:
  authenticateToRegistry: true
  username: ci
service:
  mode: manual
`,
			then: "executor.password",
		},
		{
			scenario: "reserved run option",
			given: `
version: 0
executor:
  runOptions: "--name foo"
service:
  mode: manual
`,
			then: "executor.runOptions: Can not use options: -w, --workdir, -d, --detach, -a, --attach, -t, --tty, -i, --interactive, --rm, --restart, --name",
		},
		{
			scenario: "timer without schedule",
			given: `
version: 0
executor: {}
jobs:
  - name: build
    image: alpine
    commands: ["true"]
service:
  mode: timer
`,
			then: "jobs[0].schedule: schedule is required in timer mode",
		},
		{
			scenario: "duplicate job",
			given: `
version: 0
executor: {}
jobs:
  - name: build
    image: alpine
    commands: ["true"]
  - name: build
    image: alpine
    commands: ["true"]
service:
  mode: manual
`,
			then: "jobs[1].name: duplicate job name build",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.given))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.then)
		})
	}
}

func TestCueErrDetails(t *testing.T) {
	yml := `
version: 0
executor:
  capacity: 0
  unknown: true
service:
  mode: cron
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
	for _, d := range details {
		require.NotEmpty(t, d.Code)
		require.NotEmpty(t, d.String())
	}
	require.Nil(t, model.CueErrDetails(nil))
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	cfg := model.DefaultConfig(context.Background())
	var buf bytes.Buffer
	require.NoError(t, yaml.NewEncoder(&buf).Encode(cfg))

	loaded, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg.Executor.Capacity, loaded.Executor.Capacity)
	require.Equal(t, cfg.Service.Mode, loaded.Service.Mode)
}

func TestExecutorValidate(t *testing.T) {
	ok := model.Executor{Capacity: 1}
	require.NoError(t, ok.Validate())

	var cfgErr *model.ConfigError
	err := model.Executor{Capacity: 1, AuthenticateToRegistry: true, Password: "x"}.Validate()
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "executor.username", cfgErr.Field)

	err = model.Executor{Capacity: 1, AuthenticateToRegistry: true, Username: "x"}.Validate()
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "executor.password", cfgErr.Field)

	err = model.Executor{Capacity: 0}.Validate()
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "executor.capacity", cfgErr.Field)

	require.Equal(t, runtime.NumCPU(), model.Executor{}.WithDefaults().Capacity)
	require.Equal(t, 7, model.Executor{Capacity: 7}.WithDefaults().Capacity)
}

func TestExecutorLogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("config", "executor", model.Executor{Username: "ci", Password: "s3cr3t"})
	require.NotContains(t, buf.String(), "s3cr3t")
	require.Contains(t, buf.String(), "executor.username=ci")
}

func TestLoadConfig_Reporters(t *testing.T) {
	yml := `
version: 0
executor: {}
service:
  mode: manual
  dir: /var/lib/drydock/reports
  webhook: https://ci.example.com/hooks/drydock
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/drydock/reports", cfg.Service.Dir)
	require.Equal(t, "https://ci.example.com/hooks/drydock", cfg.Service.Webhook)

	_, err = model.LoadConfig(strings.NewReader(strings.Replace(yml, "https://", "ftp://", 1)))
	require.Error(t, err)
}
