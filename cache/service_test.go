package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptline/go-statusline/config"
	"github.com/promptline/go-statusline/logger"
)

// spyStore counts durable reads so tests can prove the memory tier
// short-circuits them.
type spyStore struct {
	Store
	gets atomic.Int32
}

func (s *spyStore) Get(ctx context.Context, namespace, key string) (Entry, bool, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, namespace, key)
}

func testConfig(dir string) config.Config {
	return config.Config{
		Dir:        dir,
		Backend:    "file",
		DefaultTTL: config.Duration(300 * time.Second),
	}
}

func newService(t *testing.T, cfg config.Config, opts ...Option) *Service {
	t.Helper()
	opts = append(opts, WithLogger(logger.NewTestLogger()))
	svc, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestServiceMemoryHitSkipsDurable(t *testing.T) {
	dir := t.TempDir()
	inner, err := newFileStore(dir)
	require.NoError(t, err)
	spy := &spyStore{Store: inner}
	svc := newService(t, testConfig(dir), WithStore(spy))

	now := time.Now().Unix()
	svc.SetAsync("git_root", "/home/u/proj", "/home/u/proj", now)

	entry, freshness, found := svc.Get(context.Background(), "git_root", "/home/u/proj")
	assert.True(t, found)
	assert.Equal(t, Fresh, freshness)
	assert.Equal(t, "/home/u/proj", entry.Value)
	assert.Equal(t, int32(0), spy.gets.Load(), "fresh memory hit must not touch the durable store")
}

func TestServiceDurabilityAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	setAt := time.Now()

	first := newService(t, testConfig(dir))
	first.SetAsync("git_root", "/home/u/proj", "/home/u/proj", setAt.Unix())
	first.Flush()
	require.NoError(t, first.Close())

	// A fresh process has an empty memory tier and reads through.
	second := newService(t, testConfig(dir))
	entry, freshness, found := second.Get(context.Background(), "git_root", "/home/u/proj")
	require.True(t, found)
	assert.Equal(t, Fresh, freshness)
	assert.Equal(t, "/home/u/proj", entry.Value)
	assert.Equal(t, setAt.Unix(), entry.Timestamp)

	// After TTL expiry the same value is still served, flagged stale.
	expired := newService(t, testConfig(dir), WithClock(func() time.Time {
		return setAt.Add(301 * time.Second)
	}))
	entry, freshness, found = expired.Get(context.Background(), "git_root", "/home/u/proj")
	require.True(t, found)
	assert.Equal(t, Stale, freshness)
	assert.Equal(t, "/home/u/proj", entry.Value)
}

func TestServiceStaleMemoryPicksUpNewerDurable(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()
	svc := newService(t, testConfig(dir), WithClock(func() time.Time { return base }))

	// Memory holds a value already past its TTL.
	svc.mem.set("pr", "42", "open", base.Add(-10*time.Minute).Unix())

	// Another process's refresh landed a fresher durable value.
	require.NoError(t, svc.store.Set(context.Background(), "pr", "42", "merged", base.Unix()))

	entry, freshness, found := svc.Get(context.Background(), "pr", "42")
	require.True(t, found)
	assert.Equal(t, Fresh, freshness)
	assert.Equal(t, "merged", entry.Value)

	// The read-through refreshed the memory tier too.
	memEntry, ok := svc.mem.get("pr", "42")
	require.True(t, ok)
	assert.Equal(t, "merged", memEntry.Value)
}

func TestServiceGetAbsent(t *testing.T) {
	svc := newService(t, testConfig(t.TempDir()))
	_, _, found := svc.Get(context.Background(), "nope", "missing")
	assert.False(t, found)
}

func TestServiceScheduleRefreshWritesDurableOnly(t *testing.T) {
	svc := newService(t, testConfig(t.TempDir()))

	svc.ScheduleRefresh("ipinfo", "net", "public_ip", func(ctx context.Context) (string, bool) {
		return "203.0.113.7", true
	})
	svc.Flush()

	entry, found, err := svc.store.Get(context.Background(), "net", "public_ip")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "203.0.113.7", entry.Value)

	// The task communicates through the durable store only; this
	// process's memory tier fills on its next read-through.
	_, ok := svc.mem.get("net", "public_ip")
	assert.False(t, ok)

	got, freshness, found := svc.Get(context.Background(), "net", "public_ip")
	require.True(t, found)
	assert.Equal(t, Fresh, freshness)
	assert.Equal(t, "203.0.113.7", got.Value)
}

func TestServiceScheduleRefreshProducerRunsOnce(t *testing.T) {
	svc := newService(t, testConfig(t.TempDir()))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	producer := func(ctx context.Context) (string, bool) {
		calls.Add(1)
		close(started)
		<-release
		return "done", true
	}

	svc.ScheduleRefresh("pr_status", "pr", "42", producer)
	<-started
	svc.ScheduleRefresh("pr_status", "pr", "42", func(ctx context.Context) (string, bool) {
		calls.Add(1)
		return "dup", true
	})
	close(release)
	svc.Flush()

	assert.Equal(t, int32(1), calls.Load())
}

func TestServiceProducerFailureLeavesPriorEntry(t *testing.T) {
	svc := newService(t, testConfig(t.TempDir()))
	ctx := context.Background()

	prior := time.Now().Unix()
	require.NoError(t, svc.store.Set(ctx, "pr", "42", "open", prior))

	svc.ScheduleRefresh("pr_status", "pr", "42", func(ctx context.Context) (string, bool) {
		return "", false
	})
	svc.Flush()

	entry, found, err := svc.store.Get(ctx, "pr", "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "open", entry.Value)
	assert.Equal(t, prior, entry.Timestamp)
}

func TestServiceMemoizePerCycle(t *testing.T) {
	svc := newService(t, testConfig(t.TempDir()))
	svc.AdvanceRenderCycle()

	var calls int
	compute := func() any {
		calls++
		return "main"
	}
	assert.Equal(t, "main", svc.Memoize("git_branch", compute))
	assert.Equal(t, "main", svc.Memoize("git_branch", compute))
	assert.Equal(t, 1, calls)

	svc.AdvanceRenderCycle()
	assert.Equal(t, "main", svc.Memoize("git_branch", compute))
	assert.Equal(t, 2, calls)
}

func TestServiceJanitorOnRenderInterval(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()
	cfg := testConfig(dir)
	cfg.CleanupInterval = 2
	cfg.MaxEntryAge = config.Duration(time.Hour)
	cfg.StaleLockCutoff = config.Duration(10 * time.Minute)

	svc := newService(t, cfg, WithClock(func() time.Time { return base }))
	ctx := context.Background()

	require.NoError(t, svc.store.Set(ctx, "ns", "ancient", "v", base.Add(-2*time.Hour).Unix()))
	require.NoError(t, svc.store.Set(ctx, "ns", "recent", "v", base.Unix()))

	// An abandoned lock from a crashed process.
	require.True(t, svc.locks.Acquire("dead_task", time.Second))
	lockPath := dir + "/dead_task.lock.d"
	past := base.Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, past, past))

	// Cycle 1: no sweep yet.
	svc.AdvanceRenderCycle()
	svc.Flush()
	_, found, err := svc.store.Get(ctx, "ns", "ancient")
	require.NoError(t, err)
	assert.True(t, found)

	// Cycle 2: sweep fires.
	svc.AdvanceRenderCycle()
	svc.Flush()

	_, found, err = svc.store.Get(ctx, "ns", "ancient")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = svc.store.Get(ctx, "ns", "recent")
	require.NoError(t, err)
	assert.True(t, found)

	assert.False(t, svc.locks.Held("dead_task"))
}

func TestOpenStoreAutoFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	// A directory squatting on the database path makes SQLite unusable.
	require.NoError(t, os.MkdirAll(dir+"/"+SQLiteFile, 0o755))

	log := logger.NewTestLogger()
	store, err := OpenStore(context.Background(), dir, "auto", log)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "file", store.Name())

	var warned bool
	for _, e := range log.Entries() {
		if e.Severity == "WARN" {
			warned = true
		}
	}
	assert.True(t, warned, "fallback must be logged once at warn")
}

func TestOpenStoreForcedBackends(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	s, err := OpenStore(ctx, t.TempDir(), "sqlite", log)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Name())
	s.Close()

	s, err = OpenStore(ctx, t.TempDir(), "file", log)
	require.NoError(t, err)
	assert.Equal(t, "file", s.Name())
	s.Close()

	_, err = OpenStore(ctx, t.TempDir(), "redis", log)
	assert.Error(t, err)
}
