package scheduler

import "fmt"

// Aging runs one aging pass over L1, L2, then L3. Invoked periodically
// by the (out-of-scope) timer. The currently running thread is never
// aged.
func (s *Scheduler) Aging() {
	s.assertInterruptsOff()

	s.agingCheck(s.l1, 1)
	s.agingCheck(s.l2, 2)
	s.agingCheck(s.l3, 3)
}

// agingCheck ages every thread in q except the current one. It snapshots
// the queue first so that promoting a thread out of q mid-iteration
// neither skips nor repeats any other thread in q.
func (s *Scheduler) agingCheck(q *queue, queueIdx int) {
	now := s.tick()

	for _, t := range q.Snapshot() {
		if t == s.current {
			continue
		}

		t.AgingCount += now - t.CameReady
		t.CameReady = now

		for t.AgingCount >= AgingThreshold && t.Priority < PriorityCeiling {
			oldPriority := t.Priority
			t.AgingCount -= AgingThreshold
			t.Priority += AgingBonus
			if t.Priority > PriorityCeiling {
				t.Priority = PriorityCeiling
			}

			s.trace(tracePriorityChange, queueIdx, t, fmt.Sprintf(
				"Thread [%d] changes its priority from [%d] to [%d]", t.ID, oldPriority, t.Priority))
		}

		if newBand := Band(t.Priority); newBand != queueIdx {
			q.Remove(t)
			s.trace(traceRemove, queueIdx, t, fmt.Sprintf("Thread [%d] is removed from queue L[%d]", t.ID, queueIdx))

			dest, destIdx := s.queueFor(t.Priority)
			dest.Insert(t) // Insert, not Append: L3->L2 must land sorted
			s.trace(traceInsert, destIdx, t, fmt.Sprintf("Thread [%d] is inserted into queue L[%d]", t.ID, destIdx))
		}
	}
}
