// Package runmanager reconciles lifecycle events into run, task and instance
// state and raises alerts.
//
// The Manager runs every event through a fixed pipeline of handlers sharing a
// per-event Context, all inside the caller's database transaction:
//   - Component identification (unresolvable events are dead-lettered)
//   - Run matching and state update (batch pipelines only)
//   - Instance resolution, START rules and close-run instance closure
//   - Unexpected status change and run status alerts
//   - Required task creation and run task state
//   - Test outcome persistence and test alerts
//   - Dataset operation persistence
//   - Incomplete and out-of-sequence instance checks
//
// State updates follow one rule for runs and run tasks alike: start_time only
// moves earlier, and once an end_time is recorded only strictly later events
// can change the status. Redelivered or reordered events therefore converge
// on the same state.
//
// Error handling:
//   - No component key and no known component id → Outcome.DeadLetter
//   - Invalid kind or status → ErrInvalidEvent
//   - Pipeline event left without a run → ErrRunNotResolved
//   - Store errors are wrapped with the handler name
//
// Scheduled events (ProcessScheduled) are turned into synthetic run status
// events for start checks and raise LATE_END directly for end checks.
package runmanager
