package scheduler

import (
	log "github.com/sirupsen/logrus"
)

// Trace tags: every logical queue transition (including the implicit
// ones aging causes) emits exactly one of these, tagged with the tick,
// thread id, and queue index involved.
const (
	traceInsert         = "A" // inserted into a queue
	traceRemove         = "B" // removed from a queue
	tracePriorityChange = "C" // priority changed (aging promotion)
	traceDispatch       = "E" // dispatched for execution
)

func (s *Scheduler) trace(tag string, queueIndex int, t *Thread, extra string) {
	fields := log.Fields{
		"tick":   s.tick(),
		"thread": t.ID,
	}
	if queueIndex > 0 {
		fields["queue"] = queueIndex
	}
	log.WithFields(fields).Infof("[%s] %s", tag, extra)
}
