// Package queue implements the Queue primitive of spec.md §3/§4.1: a
// FIFO of IoRequests with a fixed one-cycle visibility delay, modeling
// the latched-FIFO wire delay that a UART FIFO or a keyboard
// scan-code buffer typically approximates with ad hoc booleans. Here
// the delay is explicit and driven by the shared event engine instead
// of being special-cased per device.
package queue

import (
	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
)

type entry struct {
	req           *ioreq.IoRequest
	visibleCycle  uint64
}

// Queue is a FIFO whose PushBack returns immediately but whose new head
// is not Head()-visible until the next cycle. Pushing (re)schedules a
// bound wake event at now+1; callers bind WakeEvent's Handler themselves
// to whatever should run when a new head becomes visible.
type Queue struct {
	Name      string
	WakeEvent *engine.ClockEvent

	items []entry
	head  int
}

// New creates a queue that re-triggers handler (bound to owner) when a
// pushed entry becomes visible.
func New(name string, owner any, handler engine.Handler) *Queue {
	return &Queue{
		Name:      name,
		WakeEvent: engine.NewEvent(name+".wake", owner, handler),
	}
}

// Bind creates a queue sharing an externally-owned wake event. Several
// input queues on the same router share one arbiter event so a cycle in
// which multiple directions receive flits only arbitrates once, not
// once per queue (see noc/router).
func Bind(name string, ev *engine.ClockEvent) *Queue {
	return &Queue{Name: name, WakeEvent: ev}
}

// PushBack appends req, to become visible at e.Now()+1, and re-arms the
// wake event for that cycle (earliest-of semantics handled by Engine).
func (q *Queue) PushBack(e *engine.Engine, req *ioreq.IoRequest) {
	q.items = append(q.items, entry{req: req, visibleCycle: e.Now() + 1})
	e.Enqueue(q.WakeEvent, 1)
}

// Size returns the raw occupancy including not-yet-visible entries,
// used for capacity/backpressure tests (spec.md §4.1, §5).
func (q *Queue) Size() int { return len(q.items) - q.head }

// Empty reports whether the queue has no entries at all, visible or not.
func (q *Queue) Empty() bool { return q.Size() == 0 }

// HeadVisible reports whether the head entry is present and its
// visibility cycle has passed.
func (q *Queue) HeadVisible(now uint64) bool {
	if q.Size() == 0 {
		return false
	}
	return q.items[q.head].visibleCycle <= now
}

// Head returns the head request. It is a programming error (panics) to
// call this when HeadVisible is false: "popping is only legal when
// size > 0 AND the head's visibility cycle has passed" (spec.md §3).
func (q *Queue) Head(now uint64) *ioreq.IoRequest {
	if !q.HeadVisible(now) {
		panic("queue: Head() called while head is not visible")
	}
	return q.items[q.head].req
}

// PopFront removes the head entry. Like Head, it requires the head to
// be visible.
func (q *Queue) PopFront(now uint64) *ioreq.IoRequest {
	r := q.Head(now)
	q.items[q.head].req = nil
	q.head++
	if q.head > 64 && q.head*2 > len(q.items) {
		// Amortize: compact once the consumed prefix dominates.
		q.items = append([]entry(nil), q.items[q.head:]...)
		q.head = 0
	}
	return r
}

// Compact trims an emptied queue's backing array, primarily to keep
// long-running simulations from growing an ever-larger drained prefix.
func (q *Queue) Compact() {
	if q.head == len(q.items) {
		q.items = nil
		q.head = 0
	}
}
