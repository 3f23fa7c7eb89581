package backend

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
)

// Range is a half-open address range, e.g. the local scratchpad's
// address window.
type Range struct {
	Base, Size uint64
}

func (r Range) contains(addr uint64) bool { return addr >= r.Base && addr < r.Base+r.Size }

// MiddleEnd is the back-end core's upward contract toward the
// middle-end (spec.md §4.6): NotifyReady is called once
// current_transfer.size reaches zero so another may be pushed;
// AckTransfer is called once a transfer's ack_size reaches zero.
type MiddleEnd interface {
	NotifyReady()
	AckTransfer(t *Transfer)
}

// Config wires the four protocol instances the core selects between
// by address range and direction (spec.md §4.4: "Selection is
// independent for reads and writes, so the four combinations... are
// modeled by four protocol instances").
type Config struct {
	LocalRange Range

	LocalRead, LocalWrite         Protocol
	ExternalRead, ExternalWrite   Protocol
}

// ackEntry tracks which transfer a chunk en route to the destination
// protocol belongs to, so the core can route the eventual OnAck back
// to the right Transfer.AckBurst (spec.md §4.4's data plane).
type ackEntry struct {
	t    *Transfer
	size uint64
}

// Core is the iDMA back-end core.
type Core struct {
	cfg Config
	log *logrus.Entry
	me  MiddleEnd

	regulation []*Transfer
	current    *Transfer
	curSrc     Protocol
	curDst     Protocol

	// draining holds transfers that are no longer current but still
	// have bursts in flight whose acks have not yet arrived, used by
	// source-conflict avoidance when promoting the next transfer.
	draining []*Transfer
	drainSrc map[*Transfer]Protocol

	ackQueue []ackEntry

	wake *engine.ClockEvent
}

// New creates a Core. cfg's four protocols must already be
// constructed with Callbacks routing into this Core's OnSourceData/
// OnDestAck methods.
func New(cfg Config, me MiddleEnd, log *logrus.Entry) *Core {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Core{
		cfg:      cfg,
		log:      log.WithField("component", "idma.backend"),
		me:       me,
		drainSrc: make(map[*Transfer]Protocol),
	}
	c.wake = engine.NewEvent("idma.backend.tick", c, func(e *engine.Engine) { c.tick(e) })
	return c
}

// EnqueueTransfer admits t into the regulation queue (spec.md §4.4).
func (c *Core) EnqueueTransfer(e *engine.Engine, t *Transfer) {
	c.regulation = append(c.regulation, t)
	e.Enqueue(c.wake, 0)
}

func (c *Core) srcProtocol(addr uint64) Protocol {
	if c.cfg.LocalRange.contains(addr) {
		return c.cfg.LocalRead
	}
	return c.cfg.ExternalRead
}

func (c *Core) dstProtocol(addr uint64) Protocol {
	if c.cfg.LocalRange.contains(addr) {
		return c.cfg.LocalWrite
	}
	return c.cfg.ExternalWrite
}

// tick runs the FSM of spec.md §4.4.
func (c *Core) tick(e *engine.Engine) {
	if c.current == nil {
		c.promote(e)
	}
	if c.current == nil {
		return
	}

	if c.current.Size == 0 {
		c.me.NotifyReady()
		c.promote(e)
		return
	}

	if !c.curSrc.CanAcceptBurst() || !c.curDst.CanAcceptBurst() {
		return
	}

	legal := c.curSrc.BurstSize(c.current.Src, c.current.Size)
	if d := c.curDst.BurstSize(c.current.Dst, c.current.Size); d < legal {
		legal = d
	}
	if legal == 0 {
		return
	}

	t := c.current
	c.curSrc.ReadBurst(e, t, t.Src, legal)
	c.curDst.WriteBurst(e, t, t.Dst, legal)
	t.Src += legal
	t.Dst += legal
	t.Size -= legal
	t.AckSize += legal

	if t.Size == 0 {
		c.draining = append(c.draining, t)
		c.drainSrc[t] = c.curSrc
	}

	e.Enqueue(c.wake, 0)
}

// promote moves the regulation queue's head into current, subject to
// source-conflict avoidance: a candidate may only be promoted if no
// still-draining transfer (one whose acks are still outstanding) used a
// different source protocol. Whether that protocol still has reads
// queued is not consulted.
func (c *Core) promote(e *engine.Engine) {
	if c.current != nil && c.current.Size == 0 {
		c.current = nil
	}
	if c.current != nil || len(c.regulation) == 0 {
		return
	}
	candidate := c.regulation[0]
	candidateSrc := c.srcProtocol(candidate.Src)

	for _, d := range c.draining {
		if c.drainSrc[d] != candidateSrc && d.AckSize > 0 {
			return // conflicting source back-end still in flight
		}
	}

	c.regulation = c.regulation[1:]
	c.current = candidate
	c.curSrc = candidateSrc
	c.curDst = c.dstProtocol(candidate.Dst)
	e.Enqueue(c.wake, 0)
}

// OnSourceData implements the data-plane forwarding half of spec.md
// §4.4: a chunk read by the currently active source protocol is
// pushed to the currently active destination protocol once it signals
// readiness. The chunk is credited to the oldest transfer that still
// has issued bytes not yet received: a draining transfer whose AckSize
// exceeds what ackQueue already holds for it, else the current one.
func (c *Core) OnSourceData(e *engine.Engine, data []byte) {
	if c.curDst == nil || !c.curDst.IsReadyToAcceptData() {
		panic(engine.InvariantError{Msg: "idma.backend: source delivered data with no ready destination"})
	}
	owner := c.current
	for _, d := range c.draining {
		var queued uint64
		for _, a := range c.ackQueue {
			if a.t == d {
				queued += a.size
			}
		}
		if d.AckSize > queued {
			owner = d
			break
		}
	}
	c.ackQueue = append(c.ackQueue, ackEntry{t: owner, size: uint64(len(data))})
	c.curDst.WriteData(e, data)
}

// OnDestAck implements the other half: the destination protocol has
// durably written a chunk; forward the ack to the owning transfer and,
// once its ack_size reaches zero, report completion upward.
func (c *Core) OnDestAck(e *engine.Engine, data []byte) {
	if len(c.ackQueue) == 0 {
		panic(engine.InvariantError{Msg: "idma.backend: ack with no outstanding chunk"})
	}
	head := c.ackQueue[0]
	c.ackQueue = c.ackQueue[1:]

	head.t.AckBurst(head.size)
	if head.t.AckSize == 0 {
		c.removeDraining(head.t)
		c.me.AckTransfer(head.t)
	}
	if c.current != nil {
		e.Enqueue(c.wake, 0)
	}
}

func (c *Core) removeDraining(t *Transfer) {
	for i, d := range c.draining {
		if d == t {
			c.draining = append(c.draining[:i], c.draining[i+1:]...)
			delete(c.drainSrc, t)
			return
		}
	}
}
