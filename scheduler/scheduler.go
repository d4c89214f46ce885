// Package scheduler implements the multilevel feedback scheduler: three
// ready queues (SJF, priority, FIFO), time-based priority aging, and
// selective preemption. It is driven by an external tick source and an
// external "interrupts disabled" gate — this package never blocks and
// never takes a lock, because the only caller of FindNextToRun is the
// scheduler itself re-entering through the wait path, and that must never
// happen.
package scheduler

import (
	"fmt"
	"io"
)

// AgingThreshold is the number of accumulated ready-ticks that earns a
// thread +10 priority.
const AgingThreshold = 1500

// AgingBonus is the priority increment a completed aging threshold buys.
const AgingBonus = 10

// RoundRobinQuantum is the number of ticks an L3 thread may run before
// being preempted when round-robin is enabled.
const RoundRobinQuantum = 100

// Scheduler is the multilevel feedback scheduler. ReadyToRun,
// FindNextToRun, Run and Aging require their caller to already hold
// interrupts disabled (Scheduler.interruptsOff == true); violating that
// precondition is a fatal assertion, matching
// Nachos's ASSERT(kernel->interrupt->getLevel() == IntOff).
type Scheduler struct {
	l1 *queue // SJF, 100-149
	l2 *queue // priority desc, 50-99
	l3 *queue // FIFO, 0-49

	current       *Thread
	toBeDestroyed *Thread
	dispatchTick  int

	ticks TickSource

	// interruptsOff is a capability the caller must present before
	// calling into the scheduler. It is not a mutex — setting it never
	// blocks.
	interruptsOff bool
}

// New constructs a Scheduler driven by the given tick source.
func New(ticks TickSource) *Scheduler {
	return &Scheduler{
		l1:    newQueue("L1", sjfLess),
		l2:    newQueue("L2", priorityLess),
		l3:    newQueue("L3", nil),
		ticks: ticks,
	}
}

// DisableInterrupts and EnableInterrupts are the gate an external caller
// (the interrupt dispatch shell, out of scope for this module) must
// operate around every entry point below. They exist so tests and callers
// have an explicit place to present the "interrupts disabled" capability,
// instead of a mutex.
func (s *Scheduler) DisableInterrupts() { s.interruptsOff = true }
func (s *Scheduler) EnableInterrupts() { s.interruptsOff = false }

func (s *Scheduler) assertInterruptsOff() {
	if !s.interruptsOff {
		panic("scheduler: entry point called with interrupts enabled")
	}
}

func (s *Scheduler) tick() int {
	if s.ticks == nil {
		return 0
	}
	return s.ticks.Now()
}

// Current returns the currently running thread, or nil.
func (s *Scheduler) Current() *Thread { return s.current }

// ReadyToRun marks thread ready and inserts it into the queue matching its
// current priority band.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.assertInterruptsOff()

	if t.Status == JustCreated {
		t.AgingCount = 0
	}
	t.Status = Ready
	t.CameReady = s.tick()

	q, idx := s.queueFor(t.Priority)
	q.Insert(t)
	s.trace(traceInsert, idx, t, fmt.Sprintf("Thread [%d] is inserted into queue L[%d]", t.ID, idx))
}

// queueFor returns the queue (and its index 1/2/3) that a thread at the
// given priority belongs to.
func (s *Scheduler) queueFor(priority int) (*queue, int) {
	switch Band(priority) {
	case 1:
		return s.l1, 1
	case 2:
		return s.l2, 2
	default:
		return s.l3, 3
	}
}

// FindNextToRun removes and returns the head of the highest-priority
// non-empty queue (L1 over L2 over L3), or nil if all are empty. Round
// robin is enabled on the tick source iff the selection came from L3.
func (s *Scheduler) FindNextToRun() *Thread {
	s.assertInterruptsOff()

	if !s.l1.IsEmpty() {
		s.setRoundRobin(false)
		t := s.l1.RemoveFront()
		s.trace(traceRemove, 1, t, fmt.Sprintf("Thread [%d] is removed from queue L[1]", t.ID))
		return t
	}
	if !s.l2.IsEmpty() {
		s.setRoundRobin(false)
		t := s.l2.RemoveFront()
		s.trace(traceRemove, 2, t, fmt.Sprintf("Thread [%d] is removed from queue L[2]", t.ID))
		return t
	}
	if !s.l3.IsEmpty() {
		s.setRoundRobin(true)
		t := s.l3.RemoveFront()
		s.trace(traceRemove, 3, t, fmt.Sprintf("Thread [%d] is removed from queue L[3]", t.ID))
		return t
	}
	return nil
}

func (s *Scheduler) setRoundRobin(enabled bool) {
	if s.ticks != nil {
		s.ticks.SetRoundRobin(enabled)
	}
}

// Run dispatches next onto the CPU. The caller must already have updated
// the previously running thread's status to Blocked, Ready, or Finished
// before calling. Context switch itself is machine-dependent and out of
// scope here: Run does the bookkeeping Nachos's Scheduler::Run does
// around the (absent) SWITCH primitive.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	s.assertInterruptsOff()

	old := s.current

	if finishing {
		if s.toBeDestroyed != nil {
			panic("scheduler: duplicate toBeDestroyed")
		}
		s.toBeDestroyed = old
	}

	// old.Space != nil would mean "save the user CPU state and address
	// space here"; the machine-dependent save routine is out of scope,
	// so there is nothing further to do in this package.

	s.current = next
	next.Status = Running
	s.dispatchTick = s.tick()

	prevID, prevExec := -1, 0
	if old != nil {
		prevID = old.ID
		prevExec = old.AccumExec
	}
	s.trace(traceDispatch, 0, next, fmt.Sprintf(
		"Thread [%d] is now selected for execution, thread [%d] is replaced, and it has executed [%d] ticks",
		next.ID, prevID, prevExec))

	// --- machine-dependent context switch primitive happens here ---
	// (out of scope: this module has no stacks or registers to swap)

	s.assertInterruptsOff()
	s.CheckToBeDestroyed()

	// next.Space != nil would mean "restore user state here"; same
	// out-of-scope note as above.
}

// CheckToBeDestroyed reclaims the thread that finished on the previous
// switch, deferred until now because it was still running on its own
// stack when it called Run(next, finishing=true).
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed != nil {
		s.toBeDestroyed = nil
	}
}

// Preemptive decides whether the timer should force a reschedule of the
// currently running thread, after an aging pass.
func (s *Scheduler) Preemptive() bool {
	cur := s.current
	if cur == nil {
		return false
	}
	switch {
	case cur.Priority >= L1Min && cur.Priority <= PriorityCeiling:
		if !s.l1.IsEmpty() {
			head := s.l1.Front()
			return sjfKey(head) < cur.Predict
		}
	case cur.Priority >= L2Min && cur.Priority < L1Min:
		return !s.l1.IsEmpty()
	}
	return false
}

// Debug writes the contents of the three ready queues, the pedagogical
// counterpart of Nachos's Scheduler::Print (supplemented from
// original_source/HW3/scheduler.cc).
func (s *Scheduler) Debug(w io.Writer) {
	fmt.Fprintln(w, "Ready list contents:")
	for idx, q := range []*queue{s.l1, s.l2, s.l3} {
		fmt.Fprintf(w, "  L%d:", idx+1)
		for _, t := range q.Snapshot() {
			fmt.Fprintf(w, " %d(p=%d)", t.ID, t.Priority)
		}
		fmt.Fprintln(w)
	}
}
