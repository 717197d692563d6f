package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// fileStore is the fallback durable backend: one record file per
// namespace, newline-separated lines of key/value/timestamp joined by
// the 0x1F unit separator. The separator is deliberately non-printable;
// a printable delimiter like "|" would collide with values that
// legitimately contain it (shell paths, remote-service responses).
//
// Reads take the last line matching the key: writes append after
// filtering, so last-write-wins per key. Every write lands via a temp
// file renamed into place; rename atomicity on POSIX filesystems means
// a concurrent reader sees the old file or the new one, never a partial
// rewrite. The sidecar flock is best-effort only: if it cannot be taken
// promptly the write proceeds, accepting that two racing writers may
// lose one update (the next refresh self-heals).
type fileStore struct {
	dir      string
	lockWait time.Duration
}

var _ Store = (*fileStore)(nil)

const (
	fileSep    = "\x1f"
	fileSuffix = ".rec"
)

type record struct {
	key       string
	value     string
	timestamp int64
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: failed to create cache dir: %w", err)
	}
	return &fileStore{dir: dir, lockWait: time.Second}, nil
}

func validNamespace(namespace string) error {
	if namespace == "" || strings.ContainsAny(namespace, "/\\\x00") {
		return fmt.Errorf("cache: invalid namespace %q", namespace)
	}
	return nil
}

func validField(field string) error {
	if strings.ContainsAny(field, fileSep+"\n") {
		return fmt.Errorf("cache: field contains separator or newline byte")
	}
	return nil
}

func (s *fileStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+fileSuffix)
}

func readRecords(path string) ([]record, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []record
	for _, line := range strings.Split(string(buf), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, fileSep, 3)
		if len(fields) != 3 {
			// Malformed line, likely a partial write from a crashed
			// unlocked writer. Skip rather than fail the whole file.
			continue
		}
		ts, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		records = append(records, record{key: fields[0], value: fields[1], timestamp: ts})
	}
	return records, nil
}

func writeRecords(path string, records []record) error {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r.key)
		sb.WriteString(fileSep)
		sb.WriteString(r.value)
		sb.WriteString(fileSep)
		sb.WriteString(strconv.FormatInt(r.timestamp, 10))
		sb.WriteString("\n")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// withFileLock runs fn while holding the namespace's sidecar flock if it
// can be taken within lockWait. Advisory and best-effort by contract.
func (s *fileStore) withFileLock(ctx context.Context, namespace string, fn func() error) error {
	lk := flock.New(s.path(namespace) + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	locked, err := lk.TryLockContext(lockCtx, 25*time.Millisecond)
	if err == nil && locked {
		defer lk.Unlock()
	}
	return fn()
}

func (s *fileStore) Get(ctx context.Context, namespace, key string) (Entry, bool, error) {
	if err := validNamespace(namespace); err != nil {
		return Entry{}, false, err
	}
	records, err := readRecords(s.path(namespace))
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: failed to read %s: %w", s.path(namespace), err)
	}
	var entry Entry
	var found bool
	for _, r := range records {
		if r.key == key {
			entry = Entry{Value: r.value, Timestamp: r.timestamp}
			found = true
		}
	}
	return entry, found, nil
}

func (s *fileStore) Set(ctx context.Context, namespace, key, value string, timestamp int64) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	if err := validField(key); err != nil {
		return fmt.Errorf("cache: invalid key %q: %w", key, err)
	}
	if err := validField(value); err != nil {
		return fmt.Errorf("cache: invalid value for key %q: %w", key, err)
	}
	path := s.path(namespace)
	return s.withFileLock(ctx, namespace, func() error {
		records, err := readRecords(path)
		if err != nil {
			return fmt.Errorf("cache: failed to read %s: %w", path, err)
		}
		kept := records[:0]
		for _, r := range records {
			if r.key != key {
				kept = append(kept, r)
			}
		}
		kept = append(kept, record{key: key, value: value, timestamp: timestamp})
		if err := writeRecords(path, kept); err != nil {
			return fmt.Errorf("cache: failed to rewrite %s: %w", path, err)
		}
		return nil
	})
}

// Prune drops records older than the cutoff from every namespace file
// and caps each file at maxRows newest records, oldest-timestamp-first
// eviction, as one rewrite per file.
func (s *fileStore) Prune(ctx context.Context, olderThan int64, maxRows int) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cache: failed to list cache dir: %w", err)
	}
	var firstErr error
	for _, dirEntry := range entries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		namespace := strings.TrimSuffix(name, fileSuffix)
		err := s.withFileLock(ctx, namespace, func() error {
			path := s.path(namespace)
			records, err := readRecords(path)
			if err != nil {
				return err
			}
			kept := records[:0]
			for _, r := range records {
				if r.timestamp >= olderThan {
					kept = append(kept, r)
				}
			}
			if maxRows > 0 && len(kept) > maxRows {
				sort.SliceStable(kept, func(i, j int) bool { return kept[i].timestamp < kept[j].timestamp })
				kept = kept[len(kept)-maxRows:]
			}
			return writeRecords(path, kept)
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cache: failed to prune namespace %s: %w", namespace, err)
		}
	}
	return firstErr
}

func (s *fileStore) Name() string {
	return "file"
}

func (s *fileStore) Close() error {
	return nil
}
