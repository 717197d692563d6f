package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one cached fact: an opaque string value and the
// producer-side unix timestamp (seconds) of its computation. The
// timestamp drives freshness decisions only, never ordering across
// entries.
type Entry struct {
	Value     string
	Timestamp int64
}

// Age returns how long ago the entry was produced.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.Timestamp, 0))
}

// Freshness classifies an entry against its namespace TTL.
type Freshness int

const (
	// Fresh means the entry is within its TTL.
	Fresh Freshness = iota
	// Stale means the entry exists but its TTL has elapsed; it is still
	// the best available value and callers should trigger a refresh.
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Store is the durable cross-process backend contract. Get and Set are
// local-disk operations only; no implementation may ever touch the
// network. For any (namespace, key) at most one entry exists at a time,
// last write wins.
type Store interface {
	// Get returns the entry for (namespace, key). A miss is a normal
	// (Entry{}, false, nil) return, not an error.
	Get(ctx context.Context, namespace, key string) (Entry, bool, error)
	// Set replaces the entry for (namespace, key).
	Set(ctx context.Context, namespace, key, value string, timestamp int64) error
	// Prune deletes entries with timestamps before olderThan and, where
	// the backend has per-namespace files, caps each at maxRows newest
	// entries. maxRows <= 0 disables the cap.
	Prune(ctx context.Context, olderThan int64, maxRows int) error
	// Name identifies the backend for logging.
	Name() string
	Close() error
}

// storeKey joins namespace and key into the single durable key space.
func storeKey(namespace, key string) string {
	return namespace + ":" + key
}

// EncodeValue serializes a structured value into the opaque string form
// stored in an Entry (msgpack, base64). Consumers with structured facts
// (PR state, ahead/behind counts) use this with [DecodeValue] instead of
// hand-rolling string formats.
func EncodeValue[T any](val T) (string, error) {
	data, err := msgpack.Marshal(val)
	if err != nil {
		return "", fmt.Errorf("cache: failed to marshal value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeValue reverses [EncodeValue].
func DecodeValue[T any](value string) (T, error) {
	var result T
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return result, fmt.Errorf("cache: failed to decode value: %w", err)
	}
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("cache: failed to unmarshal value: %w", err)
	}
	return result, nil
}
