package backend

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
)

// AxiPageSize is the page boundary an AXI burst may never cross
// (spec.md §4.5.1, invariant 9 of spec.md §8).
const AxiPageSize = 4096

// AxiConfig configures one Axi protocol instance.
type AxiConfig struct {
	BurstQueueSize int // static read-pool size
	Master         port.Target
}

type axiReadBurst struct {
	base, size, delivered uint64
	slot                  *ioreq.IoRequest // parent-burst scratch slot, spec.md §9 design note iv
}

type axiWriteBurst struct {
	base, remaining uint64
	slot            *ioreq.IoRequest // parent-burst scratch slot, spec.md §9 design note iv
}

// setTransferScratch and transferFromScratch round-trip a *Transfer
// through an IoRequest's opaque scratch slot (spec.md §9 design note
// iv: "the AXI back-end stores the transfer pointer into a scratch
// slot on both the child request and the parent burst"). The encoded
// pointer stays valid only as long as the core itself keeps the
// Transfer reachable (via current/draining), which holds for the
// entire time either slot is read.
func setTransferScratch(req *ioreq.IoRequest, t *Transfer) {
	req.SetScratch(ioreq.SlotTransfer, uint64(uintptr(unsafe.Pointer(t))))
}

func transferFromScratch(req *ioreq.IoRequest) *Transfer {
	if req == nil {
		return nil
	}
	return (*Transfer)(unsafe.Pointer(uintptr(req.Scratch(ioreq.SlotTransfer))))
}

// resolveTransfer implements the ack-path's dual-slot resolution: the
// child request's own slot takes priority, since it is always
// reachable from an ack callback; the parent-burst slot is the
// fallback for sites that still hold the burst descriptor directly.
// tick/WriteData pass both (so the child slot wins); axiCallback.Resp
// passes only the child, with parent nil.
func resolveTransfer(child, parent *ioreq.IoRequest) *Transfer {
	if t := transferFromScratch(child); t != nil {
		return t
	}
	return transferFromScratch(parent)
}

// Axi implements Protocol against a remote AXI-style interconnect
// (spec.md §4.5.1): a static pool of BurstQueueSize request objects
// serves reads, writes allocate per-chunk requests dynamically, and no
// burst may cross a 4096-byte page.
//
// Grounded on devices/ne2000.go's remote-DMA register
// pair (RSAR/RBCR): a fixed small pool of in-flight descriptors,
// drained one at a time against an external bus, with the response
// arriving either synchronously or via a later callback.
type Axi struct {
	cfg AxiConfig
	log *logrus.Entry
	eng *engine.Engine
	cb  Callbacks

	freeSlots int
	reads     []*axiReadBurst
	writes    []*axiWriteBurst

	wake      *engine.ClockEvent
	cbAdapter *axiCallback
}

// NewAxi creates an Axi protocol instance bound to cb. eng is held for
// use inside Resp/Grant callbacks, which (like ioreq.ResponsePort in
// general) carry no *engine.Engine parameter of their own.
func NewAxi(eng *engine.Engine, cfg AxiConfig, cb Callbacks, log *logrus.Entry) *Axi {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	a := &Axi{
		cfg:       cfg,
		log:       log.WithField("component", "idma.axi"),
		eng:       eng,
		cb:        cb,
		freeSlots: cfg.BurstQueueSize,
	}
	a.cbAdapter = &axiCallback{a: a}
	a.wake = engine.NewEvent("idma.axi.tick", a, func(e *engine.Engine) { a.tick(e) })
	return a
}

// CanAcceptBurst implements Protocol.
func (a *Axi) CanAcceptBurst() bool { return a.freeSlots > 0 }

// BurstSize implements Protocol: spec.md §4.5.1's
// min(size, AXI_PAGE_SIZE, next_page_boundary(base) - base).
func (a *Axi) BurstSize(base, size uint64) uint64 {
	toBoundary := AxiPageSize - (base % AxiPageSize)
	burst := size
	if burst > AxiPageSize {
		burst = AxiPageSize
	}
	if burst > toBoundary {
		burst = toBoundary
	}
	return burst
}

// ReadBurst implements Protocol.
func (a *Axi) ReadBurst(e *engine.Engine, t *Transfer, base, size uint64) {
	if a.freeSlots == 0 {
		panic(engine.InvariantError{Msg: "idma.axi: ReadBurst called with no free slot"})
	}
	a.freeSlots--
	slot := ioreq.New()
	setTransferScratch(slot, t)
	a.reads = append(a.reads, &axiReadBurst{base: base, size: size, slot: slot})
	e.Enqueue(a.wake, 0)
}

// WriteBurst implements Protocol.
func (a *Axi) WriteBurst(e *engine.Engine, t *Transfer, base, size uint64) {
	slot := ioreq.New()
	setTransferScratch(slot, t)
	a.writes = append(a.writes, &axiWriteBurst{base: base, remaining: size, slot: slot})
	e.Enqueue(a.wake, 0)
}

// IsReadyToAcceptData implements Protocol: there must be a write
// burst descriptor waiting to receive chunks.
func (a *Axi) IsReadyToAcceptData() bool { return len(a.writes) > 0 }

// WriteData implements Protocol: allocate a request matching the
// chunk size and send it immediately against the AXI master port.
func (a *Axi) WriteData(e *engine.Engine, data []byte) {
	if len(a.writes) == 0 {
		panic(engine.InvariantError{Msg: "idma.axi: WriteData with no pending write burst"})
	}
	head := a.writes[0]
	n := uint64(len(data))
	if n > head.remaining {
		panic(engine.InvariantError{Msg: fmt.Sprintf("idma.axi: write chunk %d exceeds burst remainder %d", n, head.remaining)})
	}

	req := ioreq.New()
	req.Address = head.base
	req.Size = n
	req.IsWrite = true
	req.Data = data
	req.RespPort = a.cbAdapter
	setTransferScratch(req, transferFromScratch(head.slot))

	status := a.cfg.Master.Req(req)
	head.base += n
	head.remaining -= n
	if head.remaining == 0 {
		a.writes = a.writes[1:]
	}

	switch status {
	case ioreq.StatusOK:
		if resolveTransfer(req, head.slot) == nil {
			panic(engine.InvariantError{Msg: "idma.axi: write ack with no resolvable transfer back-pointer"})
		}
		a.cb.OnAck(e, data)
	case ioreq.StatusPending:
		// a.cbAdapter.Resp will call back with the original data slice.
	default:
		panic(engine.InvariantError{Msg: fmt.Sprintf("idma.axi: unexpected write status %s", status)})
	}
}

// Update implements Protocol.
func (a *Axi) Update(e *engine.Engine) { e.Enqueue(a.wake, 0) }

// tick drains one pending read per cycle against the master port,
// matching "the FSM dequeues and issues one read per cycle" (spec.md
// §4.5.1).
func (a *Axi) tick(e *engine.Engine) {
	if len(a.reads) == 0 {
		return
	}
	head := a.reads[0]
	remaining := head.size - head.delivered
	if remaining == 0 {
		a.reads = a.reads[1:]
		a.freeSlots++
		if len(a.reads) > 0 {
			e.Enqueue(a.wake, 1)
		}
		return
	}

	chunk := remaining
	if chunk > AxiPageSize {
		chunk = AxiPageSize
	}
	req := ioreq.New()
	req.Address = head.base + head.delivered
	req.Size = chunk
	req.Data = make([]byte, chunk)
	req.RespPort = a.cbAdapter
	setTransferScratch(req, transferFromScratch(head.slot))

	status := a.cfg.Master.Req(req)
	switch status {
	case ioreq.StatusOK:
		if resolveTransfer(req, head.slot) == nil {
			panic(engine.InvariantError{Msg: "idma.axi: read ack with no resolvable transfer back-pointer"})
		}
		head.delivered += chunk
		a.cb.OnData(e, req.Data)
		e.Enqueue(a.wake, 1)
	case ioreq.StatusPending:
		// onReadData advances head.delivered once the response arrives.
	default:
		panic(engine.InvariantError{Msg: fmt.Sprintf("idma.axi: unexpected read status %s", status)})
	}
}

// onReadData is invoked by axiCallback.Resp for a PENDING read.
func (a *Axi) onReadData(e *engine.Engine, req *ioreq.IoRequest) {
	if len(a.reads) == 0 {
		panic(engine.InvariantError{Msg: "idma.axi: read response with no pending read burst"})
	}
	head := a.reads[0]
	head.delivered += req.Size
	a.cb.OnData(e, req.Data)
	e.Enqueue(a.wake, 1)
}

// axiCallback adapts Axi to ioreq.ResponsePort for its role as the
// initiator toward the AXI master port, so the two-method contract is
// carried by the adapter instead of Axi itself.
type axiCallback struct{ a *Axi }

// Resp fires asynchronously, possibly after the parent burst
// descriptor that issued req has already drained and been discarded
// (see WriteData: a.writes is advanced past head before this can run).
// Only the child request's own slot is reachable here, so resolution
// has no parent fallback to try — this is the dual-slot path's other
// order from the one exercised synchronously in tick/WriteData.
func (c *axiCallback) Resp(req *ioreq.IoRequest) {
	if resolveTransfer(req, nil) == nil {
		panic(engine.InvariantError{Msg: "idma.axi: async ack with no resolvable transfer back-pointer"})
	}
	if req.IsWrite {
		c.a.cb.OnAck(c.a.eng, req.Data)
		return
	}
	c.a.onReadData(c.a.eng, req)
}

func (c *axiCallback) Grant(req *ioreq.IoRequest) {
	// The AXI master is modeled as never denying; retained to satisfy
	// ioreq.ResponsePort.
}
