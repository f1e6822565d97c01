// Package probe detects the operating system of a pulled image.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/image"

	"github.com/CZERTAINLY/Drydock/internal/process"
)

const Windows = "windows"

var ErrNoImage = errors.New("inspect returned no image")

// OS runs docker inspect on an already pulled image and returns its Os
// field. The result is never cached, as a tag may point to a different image
// on the next run.
func OS(ctx context.Context, drv process.Driver, docker, ref string, logger *slog.Logger) (string, error) {
	logger.InfoContext(ctx, "Checking image OS...")

	var mx sync.Mutex
	var out strings.Builder
	stdout := func(line string) {
		logger.DebugContext(ctx, line)
		mx.Lock()
		out.WriteString(line)
		out.WriteByte('\n')
		mx.Unlock()
	}
	cmd := process.Command{
		Path: docker,
		Args: []string{"inspect", ref},
	}
	res, err := drv.Execute(ctx, cmd, stdout, process.LogLines(ctx, logger, slog.LevelError), nil)
	if err != nil {
		return "", fmt.Errorf("inspecting image %s: %w", ref, err)
	}
	if err := res.CheckOK(); err != nil {
		return "", fmt.Errorf("inspecting image %s: %w", ref, err)
	}

	mx.Lock()
	raw := out.String()
	mx.Unlock()
	return Parse([]byte(raw))
}

// Parse extracts the Os field of the first element of docker inspect output.
func Parse(raw []byte) (string, error) {
	var inspects []image.InspectResponse
	if err := json.Unmarshal(raw, &inspects); err != nil {
		return "", fmt.Errorf("parsing inspect output: %w", err)
	}
	if len(inspects) == 0 {
		return "", ErrNoImage
	}
	if inspects[0].Os == "" {
		return "", errors.New("parsing inspect output: missing Os")
	}
	return inspects[0].Os, nil
}

// IsWindows reports whether os needs cmd.exe, every other value is treated
// as POSIX shell compatible.
func IsWindows(os string) bool {
	return os == Windows
}
