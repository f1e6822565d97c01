package model_test

import (
	"testing"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/stretchr/testify/require"
)

func TestValidateRunOptions(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		ok       bool
	}{
		{"empty", "", true},
		{"blank", "   ", true},
		{"memory", "-m 2g", true},
		{"memory long", "--memory=2g --cpus 2", true},
		{"quoted env", `-e "MSG=-it is fine" --label 'a=b c'`, true},
		{"dns looks like -d", "--dns 8.8.8.8", true},
		{"ipc looks like -i", "--ipc=host", true},
		{"name", "--name foo", false},
		{"name equals", "--name=foo", false},
		{"workdir short", "-w /x", false},
		{"workdir joined", "-w/x", false},
		{"workdir long", "--workdir=/x", false},
		{"detach", "-d", false},
		{"attach", "--attach STDOUT", false},
		{"interactive tty", "-it", false},
		{"tty", "--tty", false},
		{"rm", "-m 1g --rm", false},
		{"restart", "--restart=always", false},
		{"unbalanced quote", `-e "FOO=bar`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := model.ValidateRunOptions(tc.given)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *model.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, "executor.runOptions", cfgErr.Field)
		})
	}
}

func TestReservedMessage(t *testing.T) {
	err := model.ValidateRunOptions("--name foo")
	require.EqualError(t, err, "executor.runOptions: Can not use options: -w, --workdir, -d, --detach, -a, --attach, -t, --tty, -i, --interactive, --rm, --restart, --name")
}

func TestParseRunOptions(t *testing.T) {
	args, err := model.ParseRunOptions(`-m 2g -e "A=b c" --label='x y'`)
	require.NoError(t, err)
	require.Equal(t, []string{"-m", "2g", "-e", "A=b c", "--label=x y"}, args)

	args, err = model.ParseRunOptions("")
	require.NoError(t, err)
	require.Nil(t, args)
}
