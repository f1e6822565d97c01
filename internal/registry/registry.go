// Package registry resolves image references against a custom registry and
// logs the container runtime into it.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CZERTAINLY/Drydock/internal/model"
	"github.com/CZERTAINLY/Drydock/internal/process"
)

// Resolve returns the reference to pull image from registry. Bare official
// images get the implicit library namespace, so nginx becomes
// registry/library/nginx. Empty registry returns image unchanged.
func Resolve(image, registry string) string {
	if registry == "" {
		return image
	}
	if strings.Contains(image, "/") {
		return registry + "/" + image
	}
	return registry + "/library/" + image
}

// Login runs docker login if the executor is configured to authenticate.
// The password is passed on stdin, never as an argument.
func Login(ctx context.Context, drv process.Driver, cfg model.Executor, logger *slog.Logger) error {
	if !cfg.AuthenticateToRegistry {
		return nil
	}
	logger.InfoContext(ctx, "Login to docker registry...", "registry", cfg.Registry)

	args := []string{"login", "-u", cfg.Username, "--password-stdin"}
	if cfg.Registry != "" {
		args = append(args, cfg.Registry)
	}
	cmd := process.Command{
		Path:  cfg.DockerPath(),
		Args:  args,
		Stdin: strings.NewReader(cfg.Password),
	}
	res, err := drv.Execute(ctx, cmd,
		process.LogLines(ctx, logger, slog.LevelInfo),
		process.LogLines(ctx, logger, slog.LevelError),
		nil,
	)
	if err != nil {
		return fmt.Errorf("registry login: %w", err)
	}
	if err := res.CheckOK(); err != nil {
		return fmt.Errorf("registry login: %w", err)
	}
	return nil
}
