// Package lock provides directory-based advisory locks shared by every
// process that renders against the same cache directory. A lock is a
// directory whose existence is the lock: os.Mkdir is atomic, so exactly
// one of any set of concurrent creators observes success.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Suffix distinguishes lock directories from ordinary cache files in a
// shared cache directory.
const Suffix = ".lock.d"

// Coordinator manages advisory locks rooted at a single directory.
type Coordinator struct {
	dir string
}

// New returns a Coordinator rooted at dir, creating it if needed.
func New(dir string) (*Coordinator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: failed to create lock dir: %w", err)
	}
	return &Coordinator{dir: dir}, nil
}

func (c *Coordinator) path(name string) string {
	return filepath.Join(c.dir, name+Suffix)
}

// Acquire attempts to take the named lock. A lock younger than
// 2×timeout belongs to a presumed-live holder and acquisition fails. An
// older lock is treated as abandoned (crashed holder) and reclaimed
// before the atomic create decides any remaining race.
func (c *Coordinator) Acquire(name string, timeout time.Duration) bool {
	path := c.path(name)
	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) < 2*timeout {
			return false
		}
		// Stale; a concurrent reclaimer may get here first, which is fine.
		_ = os.RemoveAll(path)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		// A concurrent racer won, or the directory is unusable.
		return false
	}
	// Owner token for diagnostics only; the directory is the lock.
	owner := fmt.Sprintf("%s %d\n", uuid.New().String(), os.Getpid())
	_ = os.WriteFile(filepath.Join(path, "owner"), []byte(owner), 0o644)
	return true
}

// Release removes the named lock. Idempotent: releasing a lock that is
// already gone is not an error.
func (c *Coordinator) Release(name string) {
	_ = os.RemoveAll(c.path(name))
}

// Held reports whether the named lock currently exists, regardless of
// age or owner.
func (c *Coordinator) Held(name string) bool {
	_, err := os.Stat(c.path(name))
	return err == nil
}

// SweepStale removes every lock older than cutoff. Used by the janitor,
// which shares one cutoff across all task kinds rather than knowing each
// task's own timeout.
func (c *Coordinator) SweepStale(cutoff time.Duration) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	var removed int
	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > cutoff {
			if os.RemoveAll(filepath.Join(c.dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}
