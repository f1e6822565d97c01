package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/probe"
	"github.com/CZERTAINLY/Drydock/internal/registry"
)

// TestResult is the outcome of Executor.Test.
type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	OS      string `json:"os,omitempty"`
}

// Test checks the executor configuration with a trivial command run in the
// probe image: login, pull, OS detection and a container start with a
// mounted workspace. It does not take a capacity slot. Failures are
// reported in the result, never returned.
func (e *Executor) Test(ctx context.Context, p model.TestProbe) TestResult {
	if err := p.Validate(); err != nil {
		return TestResult{Message: err.Error()}
	}
	id := uuid.NewString()
	logger := e.logger.With("job_id", id)
	logger.InfoContext(ctx, "Testing local docker executor...")

	os, err := e.test(ctx, id, p, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Test failed", "error", err)
		return TestResult{Message: err.Error(), OS: os}
	}
	logger.InfoContext(ctx, "Test successful", "os", os)
	return TestResult{
		OK:      true,
		Message: "test successful, image OS is " + os,
		OS:      os,
	}
}

func (e *Executor) test(ctx context.Context, id string, p model.TestProbe, logger *slog.Logger) (string, error) {
	if err := registry.Login(ctx, e.driver, e.cfg, logger); err != nil {
		return "", err
	}
	image := registry.Resolve(p.Image, e.cfg.Registry)
	if err := e.pull(ctx, image, logger); err != nil {
		return "", err
	}
	os, err := probe.OS(ctx, e.driver, e.cfg.DockerPath(), image, logger)
	if err != nil {
		return "", err
	}

	dir, err := e.workspaces.CreateNamed("test-workspace")
	if err != nil {
		return os, err
	}
	defer e.destroy(ctx, dir, logger)

	l := newLauncher(os)
	logger.InfoContext(ctx, "Checking workspace mount...")
	if _, err := e.run(ctx, id, dir, l, image, l.invoke(testCommand), logger); err != nil {
		return os, fmt.Errorf("test container: %w", err)
	}
	return os, nil
}
