// Package cache is the caching and background-refresh engine behind a
// terminal status line that redraws on every interactive command cycle.
// Every displayed fact (VCS state, remote-service status, tool
// versions) is expensive to recompute relative to the sub-millisecond
// render budget, so the cache makes repeated computations cheap without
// ever blocking the render path and without serving misleadingly stale
// data.
//
// # Tiers
//
// Reads go through three layers of increasing cost: the render
// session's per-cycle memo (see the session package), the process-local
// bounded memory tier, and a durable cross-process [Store]. Two Store
// implementations exist behind one contract — a SQLite database
// (preferred; WAL mode, parameter binding verified by a startup
// round-trip probe) and a flat record file per namespace with a
// non-printable field separator. The backend is chosen once at startup
// by [OpenStore] and never hot-swapped.
//
// # Freshness and refresh
//
// [Service.Get] returns the best available value immediately, flagged
// [Fresh] or [Stale] against the namespace TTL. Staleness is the
// caller's cue to invoke [Service.ScheduleRefresh], which recomputes
// the fact in a detached background task gated by an advisory
// cross-process lock; the refreshed value appears on a later render
// cycle. Nothing in this package propagates an error to the render
// path: every failure degrades to a stale or absent value.
//
// # Maintenance
//
// A janitor sweep runs every CleanupInterval render cycles (never on a
// wall-clock timer): it prunes aged durable entries, caps flat-file row
// counts, and reclaims abandoned locks. Sweeps de-duplicate across
// processes via the shared janitor lock.
package cache
