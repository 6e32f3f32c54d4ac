package app

import (
	"context"
	"log/slog"
)

// Run streams synthetic telemetry and detections to config.Address
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	return NewOrchestrator(config, WithLogger(logger)).Run(ctx)
}
