// Package ni implements the Network Interface of spec.md §4.3: the
// boundary between an initiator/target on one side and the mesh router
// fabric on the other. It fragments an admitted IoRequest ("burst")
// into NoC-width child requests, injects them into its local router,
// and reassembles the response once every child has round-tripped.
//
// Both the origin role (an initiator pushed a burst into this NI) and
// the destination role (the local router delivered a forwarded child
// request to this NI) are handled by the same NI type, the way
// devices/ne2000.go handles both transmit and receive through one
// device: a child request travels out tagged as a forward and comes
// back, the very same object, tagged IsResponseFlit so the owning NI
// recognizes it on return instead of allocating a second object
// (spec.md §9, "back-pointers... as an explicit ownership protocol").
//
// port.Target.Req and ioreq.ResponsePort.Resp/Grant are defined
// without an *engine.Engine parameter, since a target must not block
// and a later Resp/Grant callback may arrive from deep inside event
// processing with no natural call-site to thread an engine through.
// The NI therefore holds its engine by reference, set once at
// construction, the way a device holds a reference to its owning
// host for the same reason.
package ni

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
	"example.com/meshcore/noc/router"
)

// pending tracks one admitted burst while its children are emitted and
// acknowledged.
type pending struct {
	burst    *ioreq.Burst
	sent     bool                        // the single address-phase child has been emitted
	issued   uint64                      // data-phase bytes already dispatched, acked or not
	inFlight map[*ioreq.IoRequest]uint64 // child -> byte count, for outstanding data children
}

// Config holds the fixed parameters of one Network Interface.
type Config struct {
	X, Y, Z         int
	NocWidth        uint64 // bytes per data-phase child request
	OutstandingReqs int    // ni_outstanding_reqs (spec.md §4.3)
}

// targetCallback adapts an NI to ioreq.ResponsePort for its role as the
// initiator of requests sent to its own locally attached target. It
// exists only to avoid a method-name collision: router.LocalSink also
// requires a method named Grant, but with a different signature
// (it carries an explicit *engine.Engine), so NI cannot implement both
// contracts with its own methods directly.
type targetCallback struct{ n *NI }

func (c *targetCallback) Resp(r *ioreq.IoRequest)  { c.n.onTargetResp(r) }
func (c *targetCallback) Grant(r *ioreq.IoRequest) { c.n.onTargetGrant(r) }

// NI is one node's Network Interface.
type NI struct {
	cfg Config
	log *logrus.Entry
	eng *engine.Engine

	router *router.Router
	mm     *MemoryMap
	target port.Target // nil for a node with no locally attached device
	cb     *targetCallback

	wake             *engine.ClockEvent
	injectionStalled bool // our own router's LOCAL input queue is over capacity

	queue       []*pending
	denied      *pending                       // the single burst held back by an outstanding-budget DENIED
	outstanding map[*ioreq.IoRequest]*pending   // child request -> owning burst, for the return leg
	atTarget    map[*ioreq.IoRequest]struct{}   // forwarded requests awaiting our own target's Resp/Grant
}

// New creates an NI bound to eng, router r (its own node's router), and
// mm (the mesh-wide memory map). target may be nil if no device is
// attached at this node.
func New(cfg Config, eng *engine.Engine, r *router.Router, mm *MemoryMap, target port.Target, log *logrus.Entry) *NI {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	n := &NI{
		cfg:         cfg,
		log:         log.WithFields(logrus.Fields{"component": "ni", "x": cfg.X, "y": cfg.Y, "z": cfg.Z}),
		eng:         eng,
		router:      r,
		mm:          mm,
		target:      target,
		outstanding: make(map[*ioreq.IoRequest]*pending),
		atTarget:    make(map[*ioreq.IoRequest]struct{}),
	}
	n.cb = &targetCallback{n: n}
	n.wake = engine.NewEvent("ni.process", n, func(e *engine.Engine) { n.process(e) })
	return n
}

// Req implements port.Target: the initiator-facing entry point
// (spec.md §4.3 step 2). It admits or denies a burst depending on the
// outstanding-request budget.
func (n *NI) Req(req *ioreq.IoRequest) ioreq.Status {
	e := n.eng
	if len(n.queue) >= n.cfg.OutstandingReqs {
		n.denied = &pending{
			burst:    ioreq.NewBurst(req, n.cfg.X, n.cfg.Y, n.cfg.Z, e.Now()+req.Latency),
			inFlight: make(map[*ioreq.IoRequest]uint64),
		}
		return ioreq.StatusDenied
	}
	p := &pending{
		burst:    ioreq.NewBurst(req, n.cfg.X, n.cfg.Y, n.cfg.Z, e.Now()+req.Latency),
		inFlight: make(map[*ioreq.IoRequest]uint64),
	}
	n.queue = append(n.queue, p)
	e.Enqueue(n.wake, req.Latency)
	return ioreq.StatusPending
}

// Retry re-admits a previously DENIED burst, mirroring the
// denied/grant handshake an initiator would get from any other Target
// (spec.md §4.1): call this once the initiator has been told it may
// retry.
func (n *NI) Retry() {
	if n.denied == nil {
		return
	}
	p := n.denied
	n.denied = nil
	n.queue = append(n.queue, p)
	n.eng.Enqueue(n.wake, 0)
}

// process drains the head of the admitted-burst queue: it emits the
// single address-phase child first, then one data-phase child per
// NocWidth-sized chunk, one per cycle, without waiting for each to
// round-trip before sending the next (spec.md §4.3 steps 3-4: sustained
// NocWidth bytes/cycle throughput, latency hidden by pipelining rather
// than serializing one child's full round trip per cycle). Completion
// still waits for every child's ack, tracked by p.burst.Remaining.
func (n *NI) process(e *engine.Engine) {
	if len(n.queue) == 0 {
		return
	}
	p := n.queue[0]
	if e.Now() < p.burst.EarliestCycle {
		e.Enqueue(n.wake, p.burst.EarliestCycle-e.Now())
		return
	}
	if n.injectionStalled {
		return // UnstallQueue re-wakes us once the router drains
	}

	entry, ok := n.mm.Lookup(p.burst.Req.Address, p.burst.Req.Size)
	if !ok {
		p.burst.Poison()
		n.complete(p)
		return
	}

	if !p.sent {
		p.sent = true
		child := n.newChild(p, entry, 0, 1)
		n.outstanding[child] = p
		p.inFlight[child] = 0
		if !n.inject(e, child) {
			e.Enqueue(n.wake, 1)
		}
		return
	}

	if p.issued < p.burst.Req.Size {
		size := n.cfg.NocWidth
		if remaining := p.burst.Req.Size - p.issued; size > remaining {
			size = remaining
		}
		child := n.newChild(p, entry, size, 0)
		n.outstanding[child] = p
		p.inFlight[child] = size
		p.issued += size
		if !n.inject(e, child) {
			e.Enqueue(n.wake, 1)
		}
		return
	}

	if p.burst.Remaining == 0 {
		// Every data child has round-tripped; nothing left to send or
		// wait on.
		n.complete(p)
	}
}

// newChild builds a forwarded child request carrying size bytes
// (size==0, isAddress==1 for the address-phase header) toward the NI
// that owns entry.
func (n *NI) newChild(p *pending, entry Entry, size uint64, isAddress uint64) *ioreq.IoRequest {
	c := ioreq.New()
	c.Address = p.burst.Req.Address
	c.Size = size
	c.IsWrite = p.burst.Req.IsWrite
	c.Initiator = p.burst.Req.Initiator
	c.SetScratch(ioreq.SlotSrcX, uint64(n.cfg.X))
	c.SetScratch(ioreq.SlotSrcY, uint64(n.cfg.Y))
	c.SetScratch(ioreq.SlotSrcZ, uint64(n.cfg.Z))
	c.SetScratch(ioreq.SlotDestX, uint64(entry.X))
	c.SetScratch(ioreq.SlotDestY, uint64(entry.Y))
	c.SetScratch(ioreq.SlotDestZ, uint64(entry.Z))
	c.SetScratch(ioreq.SlotIsAddress, isAddress)
	return c
}

// inject pushes a freshly built child onto our own router's LOCAL
// input, i.e. "this NI sends toward the mesh" (router.HandleRequest is
// the same entry point whether the sender is a peer router or the
// node's own NI, spec.md §4.2). It reports whether that push left the
// queue over capacity, in which case the caller must stop injecting
// until UnstallQueue calls back.
func (n *NI) inject(e *engine.Engine, req *ioreq.IoRequest) bool {
	full := n.router.HandleRequest(e, req, n.cfg.X, n.cfg.Y, n.cfg.Z)
	n.injectionStalled = full
	return full
}

// complete releases a finished (or poisoned) burst back to its
// initiator. When that drops a full budget back below OutstandingReqs,
// the initiator of the held-back DENIED burst is granted so it may
// retry.
func (n *NI) complete(p *pending) {
	n.queue = n.queue[1:]
	if p.burst.Req.RespPort != nil {
		p.burst.Req.RespPort.Resp(p.burst.Req)
	}
	if n.denied != nil && len(n.queue) == n.cfg.OutstandingReqs-1 {
		if rp := n.denied.burst.Req.RespPort; rp != nil {
			rp.Grant(n.denied.burst.Req)
		}
	}
	if len(n.queue) > 0 {
		n.eng.Enqueue(n.wake, 0)
	}
}

// HandleRequest implements router.Neighbor. An NI never receives a
// push on a non-local link; it is only ever the LOCAL sink of its own
// router, never a peer of another router. This stub exists solely to
// satisfy the interface.
func (n *NI) HandleRequest(e *engine.Engine, req *ioreq.IoRequest, fromX, fromY, fromZ int) bool {
	return false
}

// UnstallQueue implements router.Neighbor: our own router's LOCAL input
// queue has drained back below capacity, so resume injecting.
func (n *NI) UnstallQueue(e *engine.Engine, fromX, fromY, fromZ int) {
	n.injectionStalled = false
	e.Enqueue(n.wake, 0)
}

// StallQueue implements router.Neighbor; unused on the NI side since
// the router never force-stalls its own LOCAL input queue.
func (n *NI) StallQueue(fromX, fromY, fromZ int) {}

// ReqFromRouter implements router.LocalSink: our own router delivers a
// flit whose destination coordinates match ours. It may be a fresh
// forwarded child (we are the destination NI) or a response flit
// returning to the NI that originated it (IsResponseFlit).
func (n *NI) ReqFromRouter(e *engine.Engine, req *ioreq.IoRequest) ioreq.Status {
	if req.IsResponseFlit {
		n.onChildReturn(req)
		return ioreq.StatusOK
	}
	return n.forwardToTarget(req)
}

// Grant implements router.LocalSink: the router's previously stalled
// LOCAL output (because we denied a delivery) may now be retried. That
// can only happen once our own target has in turn granted us, so this
// simply re-runs the same forward attempt.
func (n *NI) Grant(e *engine.Engine, req *ioreq.IoRequest) {
	n.forwardToTarget(req)
}

// forwardToTarget is the destination-NI half of one child's journey:
// subtract the memory map's remove_offset and call the locally
// attached device (spec.md §4.3, "destination NI").
func (n *NI) forwardToTarget(req *ioreq.IoRequest) ioreq.Status {
	entry, ok := n.mm.Lookup(req.Address, req.Size)
	if !ok {
		req.Status = ioreq.StatusInvalid
		n.turnAround(req)
		return ioreq.StatusInvalid
	}
	if n.target == nil {
		panic(engine.InvariantError{Msg: fmt.Sprintf("ni(%d,%d,%d): forwarded request to node with no attached target", n.cfg.X, n.cfg.Y, n.cfg.Z)})
	}
	req.Address -= entry.RemoveOffset
	req.RespPort = n.cb
	status := n.target.Req(req)
	switch status {
	case ioreq.StatusPending, ioreq.StatusDenied:
		n.atTarget[req] = struct{}{}
	case ioreq.StatusOK:
		n.turnAround(req)
	}
	return status
}

// onTargetResp implements the PENDING leg of our own target's
// callback: the request we forwarded has completed.
func (n *NI) onTargetResp(req *ioreq.IoRequest) {
	delete(n.atTarget, req)
	n.turnAround(req)
}

// onTargetGrant implements the DENIED leg of our own target's
// callback: capacity freed up, retry the forward.
func (n *NI) onTargetGrant(req *ioreq.IoRequest) {
	delete(n.atTarget, req)
	n.forwardToTarget(req)
	n.router.Grant(n.eng, req)
}

// turnAround mutates a forwarded child in place into its own response
// and re-injects it toward the coordinates it came from (spec.md
// §4.3, "backward path").
func (n *NI) turnAround(req *ioreq.IoRequest) {
	srcX := req.Scratch(ioreq.SlotSrcX)
	srcY := req.Scratch(ioreq.SlotSrcY)
	srcZ := req.Scratch(ioreq.SlotSrcZ)
	req.SetScratch(ioreq.SlotDestX, srcX)
	req.SetScratch(ioreq.SlotDestY, srcY)
	req.SetScratch(ioreq.SlotDestZ, srcZ)
	req.IsResponseFlit = true
	n.inject(n.eng, req)
}

// onChildReturn is the origin-NI half: a child we sent has come home.
// It advances the owning burst's phase/byte accounting and, once the
// whole burst is satisfied, completes it. A response carrying
// StatusInvalid poisons the burst immediately instead of being
// accounted as a completed phase.
func (n *NI) onChildReturn(req *ioreq.IoRequest) {
	p, ok := n.outstanding[req]
	if !ok {
		panic(engine.InvariantError{Msg: "ni: response flit returned with no owning burst"})
	}
	delete(n.outstanding, req)
	size := p.inFlight[req]
	delete(p.inFlight, req)

	if req.Status == ioreq.StatusInvalid {
		p.burst.Poison()
		n.completeIfHead(p)
		return
	}

	if req.Scratch(ioreq.SlotIsAddress) == 1 {
		// Address-phase ack: writes count it toward the two required
		// phases; reads only require the data phase (spec.md §3).
		if p.burst.Req.IsWrite {
			p.burst.ObservePhase()
		}
	} else {
		p.burst.Remaining -= size
		p.burst.AckChild(size)
		if p.burst.Remaining == 0 {
			// The data phase as a whole is observed once, when its last
			// child lands, not once per NocWidth-sized child.
			p.burst.ObservePhase()
		}
	}

	n.eng.Enqueue(n.wake, 0)
}

// completeIfHead finishes p if it is still the head of the admitted
// queue (it always should be, since only one burst is in flight at a
// time), used by the poison path which can fire before process() would
// otherwise have noticed Remaining==0.
func (n *NI) completeIfHead(p *pending) {
	if len(n.queue) > 0 && n.queue[0] == p {
		n.complete(p)
		return
	}
	n.eng.Enqueue(n.wake, 0)
}

// Outstanding reports the number of bursts currently admitted but not
// yet completed, used by tests asserting the outstanding-budget
// invariant (spec.md §8 property 11).
func (n *NI) Outstanding() int { return len(n.queue) }
