package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/costdesk/costdesk/pkg/checkpoint"
	"github.com/costdesk/costdesk/pkg/checkpoint/file"
	"github.com/costdesk/costdesk/pkg/checkpoint/postgresql"
	"github.com/costdesk/costdesk/pkg/checkpoint/redis"
)

var supportedCheckpointBackends = []string{"file", "redis", "postgres", "postgresql"}

// NewCheckpointStore selects a checkpoint backend by URL scheme. Anything
// unrecognized falls back to the file backend, treating the URL as a path.
func NewCheckpointStore(ctx context.Context, logger *slog.Logger, databaseURL string) (checkpoint.Store, error) {
	switch parseCheckpointBackend(databaseURL) {
	case "redis":
		return redis.NewStore(databaseURL)
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parseCheckpointBackend(databaseURL string) string {
	backend, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedCheckpointBackends {
		if backend == supported {
			return backend
		}
	}

	return "file"
}
