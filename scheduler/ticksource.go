package scheduler

// TickSource is the external contract this package is driven by: the
// tick source and interrupt gate themselves are out of scope to
// implement, but the scheduler needs to read the current tick and toggle
// round-robin preemption on it. A real machine simulator implements
// this; tests use a small in-memory fake (see fake_ticksource_test.go).
type TickSource interface {
	// Now returns the current tick count.
	Now() int
	// SetRoundRobin enables or disables quantum-based preemption. The
	// scheduler calls this every time FindNextToRun dispatches: true iff
	// the dispatched thread came from L3.
	SetRoundRobin(enabled bool)
}
