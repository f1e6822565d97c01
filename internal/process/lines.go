package process

import (
	"context"
	"log/slog"
)

// LogLines returns a LineFunc logging every line with given level.
func LogLines(ctx context.Context, logger *slog.Logger, level slog.Level) LineFunc {
	return func(line string) {
		logger.Log(ctx, level, line)
	}
}
