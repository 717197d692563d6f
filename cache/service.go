package cache

import (
	"context"
	"sync"
	"time"

	"github.com/promptline/go-statusline/config"
	"github.com/promptline/go-statusline/lock"
	"github.com/promptline/go-statusline/logger"
	"github.com/promptline/go-statusline/runner"
	"github.com/promptline/go-statusline/session"
)

// Producer computes a fact's value off the render path. It returns
// found=false when the value could not be obtained (timeout, subprocess
// failure); nothing is written in that case and the prior entry, if
// any, stays authoritative.
type Producer func(ctx context.Context) (string, bool)

// Service is the consumer-facing cache: a bounded in-process tier over
// a durable cross-process store, with per-render-cycle memoization,
// lock-gated background refresh, and a render-count-driven janitor.
// Construct one per process with configuration injected; there is no
// ambient global state.
type Service struct {
	cfg     config.Config
	log     logger.Logger
	mem     *memoryTier
	store   Store
	locks   *lock.Coordinator
	runner  *runner.Runner
	session *session.Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	now func() time.Time // test hook
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default console logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithStore injects a pre-opened durable backend, bypassing capability
// detection. Used by tests and by callers that already hold a Store.
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the cache service: opens (or accepts) the durable
// backend, the lock coordinator rooted at the same directory, the
// background runner, and an empty render session.
func New(parent context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:     cfg,
		log:     logger.NewConsoleLogger(),
		mem:     newMemoryTier(cfg.MemorySoftMax, cfg.MemoryThreshold),
		session: session.New(),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithPrefix("cache")

	if s.store == nil {
		store, err := OpenStore(ctx, cfg.Dir, cfg.Backend, s.log)
		if err != nil {
			cancel()
			return nil, err
		}
		s.store = store
	}

	locks, err := lock.New(cfg.Dir)
	if err != nil {
		cancel()
		s.store.Close()
		return nil, err
	}
	s.locks = locks
	s.runner = runner.New(ctx, locks, s.log)
	s.log.Debug("cache service ready, backend=%s dir=%s", s.store.Name(), cfg.Dir)
	return s, nil
}

// Get returns the best available value for (namespace, key): memory
// tier first, then the durable store. A fresh hit in either tier
// returns immediately; a stale memory hit still consults the durable
// store, since another process's refresh may have landed a newer value.
// The caller sees Stale as its cue to call ScheduleRefresh — the stale
// value renders now, the refreshed one on a later cycle.
func (s *Service) Get(ctx context.Context, namespace, key string) (Entry, Freshness, bool) {
	ttl := s.cfg.TTLFor(namespace)
	now := s.now()

	entry, found := s.mem.get(namespace, key)
	if found && entry.Age(now) <= ttl {
		return entry, Fresh, true
	}

	durable, ok, err := s.store.Get(ctx, namespace, key)
	if err != nil {
		s.log.Debug("durable read failed for %s:%s: %v", namespace, key, err)
	}
	if ok && (!found || durable.Timestamp >= entry.Timestamp) {
		entry, found = durable, true
		s.mem.set(namespace, key, durable.Value, durable.Timestamp)
	}
	if !found {
		return Entry{}, Stale, false
	}
	if entry.Age(now) <= ttl {
		return entry, Fresh, true
	}
	return entry, Stale, true
}

// SetAsync updates the memory tier synchronously and hands the durable
// write to a detached goroutine (write-back). A durable-write failure
// is logged and dropped: the memory update stands, and the value is
// rewritten on the next natural refresh. There is deliberately no
// durability guarantee for a crash between the two writes.
func (s *Service) SetAsync(namespace, key, value string, timestamp int64) {
	s.mem.set(namespace, key, value, timestamp)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.TaskTimeout.Std())
		defer cancel()
		if err := s.store.Set(ctx, namespace, key, value, timestamp); err != nil {
			s.log.Debug("durable write failed for %s:%s: %v", namespace, key, err)
		}
	}()
}

// ScheduleRefresh asks the runner to recompute (namespace, key) under
// lockName. It returns immediately; if a refresh is already in flight
// anywhere, the call is a no-op. On success the result is written to
// the durable store with the completion timestamp — not this process's
// memory tier, which picks it up on its next read-through.
func (s *Service) ScheduleRefresh(lockName, namespace, key string, producer Producer) {
	s.runner.Schedule(lockName, s.cfg.TaskTimeout.Std(), func(ctx context.Context) error {
		value, ok := producer(ctx)
		if !ok {
			s.log.Trace("producer for %s:%s returned nothing", namespace, key)
			return nil
		}
		return s.store.Set(ctx, namespace, key, value, s.now().Unix())
	})
}

// Memoize returns the per-render-cycle value for factID, computing it
// at most once per cycle.
func (s *Service) Memoize(factID string, compute func() any) any {
	return s.session.Memoize(factID, compute)
}

// Session exposes the render session for typed memoization via
// [session.Memoize].
func (s *Service) Session() *session.Session {
	return s.session
}

// AdvanceRenderCycle increments the render counter, invalidating every
// per-cycle memo, and ticks the janitor: every CleanupInterval cycles a
// sweep is scheduled through the runner so concurrent processes
// de-duplicate on the janitor lock.
func (s *Service) AdvanceRenderCycle() int64 {
	id := s.session.Advance()
	if s.cfg.CleanupInterval > 0 && id%int64(s.cfg.CleanupInterval) == 0 {
		s.scheduleJanitor()
	}
	return id
}

// Flush waits for in-flight durable writes and background tasks.
// Test and shutdown aid; the render path never calls it.
func (s *Service) Flush() {
	s.wg.Wait()
	s.runner.Wait()
}

// Store returns the active durable backend.
func (s *Service) Store() Store {
	return s.store
}

// Close stops background work and closes the durable store.
func (s *Service) Close() error {
	var err error
	s.once.Do(func() {
		s.runner.Close()
		s.wg.Wait()
		s.cancel()
		err = s.store.Close()
	})
	return err
}
