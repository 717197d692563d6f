package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteStore is the preferred durable backend: a single table keyed by
// "namespace:key" with a timestamp index, opened in WAL mode so
// independent processes can read while one writes.
type sqliteStore struct {
	db *sql.DB
}

var _ Store = (*sqliteStore)(nil)

// SQLiteFile is the database filename inside the cache directory.
const SQLiteFile = "statusline.db"

// hostile bytes a cached value may legitimately contain: shell paths,
// quotes, SQL metacharacters, the flat-file separator, multibyte runes.
const bindProbeValue = "it's \"quoted\" | ; DROP TABLE entries; -- \x1f\xc3\xa9 100%"

// newSQLiteStore opens (creating if needed) the database in dir and
// verifies parameter binding with a round-trip probe. A probe mismatch
// is returned as an error so the caller can fall back to the flat-file
// backend; silently corrupted values would be worse than the slower
// backend.
func newSQLiteStore(ctx context.Context, dir string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, SQLiteFile))
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open sqlite database: %w", err)
	}

	// WAL for concurrent renderers, busy_timeout so cross-process
	// writers queue instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to create entries table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to create timestamp index: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.probeBinding(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// probeBinding writes a value full of adversarial bytes through a bound
// parameter and reads it back. Anything but a byte-for-byte match
// rejects the backend.
func (s *sqliteStore) probeBinding(ctx context.Context) error {
	const probeKey = "__statusline__:bind_probe"
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, timestamp) VALUES (?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		probeKey, bindProbeValue,
	); err != nil {
		return fmt.Errorf("cache: bind probe write failed: %w", err)
	}
	var got string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE key = ?`, probeKey,
	).Scan(&got); err != nil {
		return fmt.Errorf("cache: bind probe read failed: %w", err)
	}
	if got != bindProbeValue {
		return fmt.Errorf("cache: bind probe round-trip mismatch, rejecting sqlite backend")
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, probeKey)
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, namespace, key string) (Entry, bool, error) {
	var entry Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT value, timestamp FROM entries WHERE key = ?`,
		storeKey(namespace, key),
	).Scan(&entry.Value, &entry.Timestamp)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: sqlite get failed: %w", err)
	}
	return entry, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, namespace, key, value string, timestamp int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp`,
		storeKey(namespace, key), value, timestamp,
	)
	if err != nil {
		return fmt.Errorf("cache: sqlite set failed: %w", err)
	}
	return nil
}

// Prune deletes entries older than the cutoff. The row cap is a
// flat-file concern; the relational backend relies on age pruning alone.
func (s *sqliteStore) Prune(ctx context.Context, olderThan int64, _ int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE timestamp < ?`, olderThan)
	if err != nil {
		return fmt.Errorf("cache: sqlite prune failed: %w", err)
	}
	return nil
}

func (s *sqliteStore) Name() string {
	return "sqlite"
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
