// Package journal provides SQLite-backed storage for build outcomes.
//
// Every optimize run can be recorded as one row in runs plus one row per
// program in outcomes. The journal is write-once per run: recording a run
// ID that already exists is a no-op.
//
// # Query Ordering
//
//   - Runs are listed newest first: ORDER BY started_at DESC, id DESC
//   - Outcomes keep input order: ORDER BY seq ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: outcomes reference runs
//   - A single open connection; SQLite has one writer anyway
package journal
