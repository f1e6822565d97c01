package model_test

import (
	"testing"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/stretchr/testify/require"
)

func TestJobRequestValidate(t *testing.T) {
	t.Parallel()

	ok := model.JobRequest{Image: "alpine:3.20", Commands: []string{"echo hi"}}
	require.NoError(t, ok.Validate())

	require.ErrorIs(t, model.JobRequest{Commands: []string{"x"}}.Validate(), model.ErrEmptyImage)
	require.ErrorIs(t, model.JobRequest{Image: "alpine"}.Validate(), model.ErrEmptyCommands)

	var cfgErr *model.ConfigError
	require.ErrorAs(t, model.JobRequest{Image: "Not A Valid:Image", Commands: []string{"x"}}.Validate(), &cfgErr)
	require.Equal(t, "image", cfgErr.Field)

	require.NoError(t, model.TestProbe{Image: "myreg.local:5000/acme/app:1"}.Validate())
	require.ErrorIs(t, model.TestProbe{}.Validate(), model.ErrEmptyImage)
}

func TestJobRequest(t *testing.T) {
	job := model.Job{Name: "build", Image: "alpine", Commands: []string{"a", "b"}}
	req := job.Request(nil)
	require.Equal(t, "alpine", req.Image)
	require.Equal(t, []string{"a", "b"}, req.Commands)
	require.Nil(t, req.Snapshot)

	req.Commands[0] = "changed"
	require.Equal(t, "a", job.Commands[0])
}
