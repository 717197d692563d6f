package cache

import "context"

// JanitorLock is the lock name janitor sweeps contend on, shared across
// processes so at most one sweep runs at a time.
const JanitorLock = "janitor"

// scheduleJanitor runs one sweep through the runner: prune durable
// entries past MaxEntryAge (with the flat-file row cap), then reclaim
// locks older than the shared StaleLockCutoff. The cutoff is a fixed
// window distinct from any one task's 2×timeout, since every task kind
// shares this sweep. Triggered on a render-count interval, never a
// wall-clock timer, so an idle session does no background work.
func (s *Service) scheduleJanitor() {
	s.runner.Schedule(JanitorLock, s.cfg.TaskTimeout.Std(), func(ctx context.Context) error {
		cutoff := s.now().Add(-s.cfg.MaxEntryAge.Std()).Unix()
		if err := s.store.Prune(ctx, cutoff, s.cfg.FileMaxRows); err != nil {
			return err
		}
		if reclaimed := s.locks.SweepStale(s.cfg.StaleLockCutoff.Std()); reclaimed > 0 {
			s.log.Debug("janitor reclaimed %d stale locks", reclaimed)
		}
		return nil
	})
}
