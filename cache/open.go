package cache

import (
	"context"
	"fmt"
	"os"

	"github.com/promptline/go-statusline/logger"
)

// OpenStore selects and opens the durable backend for dir. The choice
// is made once per process and is immutable afterwards.
//
// backend "sqlite" or "file" forces that implementation; "auto" probes
// SQLite (open + bind round-trip) and falls back to the flat-file store
// on any failure, logged once at warn.
func OpenStore(ctx context.Context, dir, backend string, log logger.Logger) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: failed to create cache dir %s: %w", dir, err)
	}
	switch backend {
	case "sqlite":
		return newSQLiteStore(ctx, dir)
	case "file":
		return newFileStore(dir)
	case "", "auto":
		store, err := newSQLiteStore(ctx, dir)
		if err == nil {
			return store, nil
		}
		log.Warn("sqlite backend unavailable, falling back to flat-file store: %v", err)
		return newFileStore(dir)
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", backend)
	}
}
