// Package engine implements the discrete-event scheduling substrate that
// the NoC fabric and the iDMA pipeline are built on: an absolute-cycle
// priority queue of clocked events driving a single logical thread of
// execution. No component in this module may block; work that cannot
// complete in the current cycle is deferred by re-enqueuing a future
// event.
package engine

import (
	"container/heap"

	"github.com/sirupsen/logrus"
)

// Handler is invoked when a ClockEvent fires. It receives the engine so
// handlers can re-enqueue themselves or other events.
type Handler func(e *Engine)

// ClockEvent is a (cycle, handler) pair. Re-enqueuing an event that is
// already scheduled keeps the earliest of the two requested cycles
// ("earliest-of" semantics); enqueuing an event already due for the
// requested cycle or earlier is a no-op.
type ClockEvent struct {
	Name    string
	Owner   any
	Handler Handler

	scheduled bool
	cycle     uint64
	seq       uint64
	index     int // heap index, maintained by container/heap
}

// Scheduled reports whether the event currently sits in the engine's
// pending queue.
func (ev *ClockEvent) Scheduled() bool { return ev.scheduled }

// NewEvent creates an event bound to owner, to be run by handler.
func NewEvent(name string, owner any, handler Handler) *ClockEvent {
	return &ClockEvent{Name: name, Owner: owner, Handler: handler}
}

type eventHeap []*ClockEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].cycle != h[j].cycle {
		return h[i].cycle < h[j].cycle
	}
	return h[i].seq < h[j].seq // FIFO among events scheduled for the same cycle
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	ev := x.(*ClockEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Engine drives the simulation: an absolute-cycle priority queue of
// events, cooperatively run by a single caller.
type Engine struct {
	Log *logrus.Entry

	now     uint64
	seq     uint64
	pending eventHeap
}

// New creates an Engine starting at cycle 0.
func New(log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{Log: log.WithField("component", "engine")}
	heap.Init(&e.pending)
	return e
}

// Now returns the current absolute cycle.
func (e *Engine) Now() uint64 { return e.now }

// Enqueue schedules ev to fire at now+offset. If ev is already scheduled
// for an earlier or equal cycle, this is a no-op; if it is scheduled for
// a later cycle, the new earlier cycle wins (earliest-of semantics).
func (e *Engine) Enqueue(ev *ClockEvent, offset uint64) {
	target := e.now + offset
	if ev.scheduled {
		if ev.cycle <= target {
			return
		}
		heap.Fix(&e.pending, ev.index)
		ev.cycle = target
		heap.Fix(&e.pending, ev.index)
		return
	}
	ev.cycle = target
	ev.scheduled = true
	ev.seq = e.seq
	e.seq++
	heap.Push(&e.pending, ev)
}

// Cancel removes ev from the pending queue if present. Per spec.md §4.1,
// in-flight I/O requests are never cancelled; this exists for components
// that rebind a wake event to a new owner state (e.g. a stalled NI
// that no longer needs to re-check once unstalled by another path).
func (e *Engine) Cancel(ev *ClockEvent) {
	if !ev.scheduled {
		return
	}
	heap.Remove(&e.pending, ev.index)
	ev.scheduled = false
}

// Step runs every event scheduled for the earliest pending cycle and
// advances Now to that cycle. It returns false if there was nothing
// pending. Events scheduled for the same cycle run in FIFO order of
// registration (spec.md §5); a handler firing during Step may enqueue
// further events for the same cycle, which also run before Step
// returns, preserving "settle fully before advancing" semantics.
func (e *Engine) Step() bool {
	if e.pending.Len() == 0 {
		return false
	}
	cycle := e.pending[0].cycle
	e.now = cycle
	for e.pending.Len() > 0 && e.pending[0].cycle == cycle {
		ev := heap.Pop(&e.pending).(*ClockEvent)
		ev.scheduled = false
		ev.Handler(e)
	}
	return true
}

// Run drives the engine until either no events remain pending or until
// is has advanced past untilCycle (exclusive). It returns the final
// cycle reached.
func (e *Engine) Run(untilCycle uint64) uint64 {
	for e.pending.Len() > 0 && e.pending[0].cycle < untilCycle {
		e.Step()
	}
	return e.now
}

// RunUntilIdle drains every pending event regardless of cycle. Used by
// scenario drivers once all initiators have stopped issuing new work.
func (e *Engine) RunUntilIdle(maxCycles uint64) uint64 {
	for e.pending.Len() > 0 {
		if e.now > maxCycles {
			panic(InvariantError{Msg: "engine did not quiesce within maxCycles"})
		}
		e.Step()
	}
	return e.now
}

// InvariantError is raised when a modeled invariant (spec.md §7) is
// violated. These are fatal: the simulator's output no longer means
// anything once an invariant breaks, so we panic rather than limp on.
type InvariantError struct {
	Msg string
}

func (err InvariantError) Error() string { return "invariant violation: " + err.Msg }
