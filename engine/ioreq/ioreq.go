// Package ioreq defines IoRequest and Burst, the universal carriers of a
// memory transaction across routers, network interfaces, and the iDMA
// pipeline (spec.md §3). The NI keeps its own child-to-Burst table
// rather than storing a back-pointer on the child; the AXI back-end
// encodes its owning transfer in the SlotTransfer scratch slot.
package ioreq

import "fmt"

// Status is the outcome of a request as observed by its initiator.
type Status int

const (
	// StatusNone is the zero value: no response has arrived yet.
	StatusNone Status = iota
	// StatusOK is a synchronous success; latency is already set.
	StatusOK
	// StatusPending means the target will later call resp() exactly once.
	StatusPending
	// StatusDenied means the target is at capacity and will later call
	// grant() exactly once, after which the initiator may retry.
	StatusDenied
	// StatusInvalid means the address did not decode to any target.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusPending:
		return "PENDING"
	case StatusDenied:
		return "DENIED"
	case StatusInvalid:
		return "INVALID"
	default:
		return "NONE"
	}
}

// Opcode is an opaque enumeration used for atomics; the core does not
// interpret it beyond routing it alongside address/size/data.
type Opcode uint8

const (
	OpNone Opcode = iota
	OpSwap
	OpAdd
	OpCompareAndSwap
)

// Slot indexes the fixed-size scratch array on IoRequest (spec.md §6).
// The number of slots is fixed at compile time; ownership of each slot
// is documented per leg below.
type Slot int

const (
	// SlotBurst holds a *Burst back-pointer: owned by the NI that
	// fragmented the burst; read-only to everyone else.
	SlotBurst Slot = iota
	// SlotSrcNI / SlotDestNI hold NI identifiers, owned by the
	// originator and destination NI respectively.
	SlotSrcNI
	SlotDestNI
	// SlotSrcX/Y/Z and SlotDestX/Y/Z hold mesh coordinates, written
	// once by the NI that creates the child request and read-only
	// downstream.
	SlotSrcX
	SlotSrcY
	SlotSrcZ
	SlotDestX
	SlotDestY
	SlotDestZ
	// SlotIsAddress is the 0/1/2 address/data phase counter, owned by
	// the originating NI's burst tracking.
	SlotIsAddress
	// SlotWide is the 0/1 channel tag (narrow vs. wide NoC flit),
	// owned by the originating NI.
	SlotWide
	// SlotRouter / SlotQueue record the router and input-queue id that
	// denied this request, owned by the router that recorded them, for
	// use solely by that router's own Grant().
	SlotRouter
	SlotQueue
	// SlotNI records the NI instance servicing a burst (used by the
	// router to call back into the NI on a local delivery).
	SlotNI
	// SlotSrcTile records the originating tile id, set once by the
	// initiator and read-only thereafter.
	SlotSrcTile
	// SlotTransfer holds an opaque pointer-encoded back-reference to the
	// iDMA transfer a child request belongs to, owned by whichever
	// back-end protocol created the request (spec.md §9, design note
	// iv). The pointed-to type lives outside this package, so callers
	// encode/decode it themselves.
	SlotTransfer

	numSlots
)

// NumSlots is the fixed slot count (spec.md §3: "the number of slots is
// fixed at compile/configuration time").
const NumSlots = int(numSlots)

// ResponsePort is satisfied by any component that can receive a
// completed request back (resp) or a retry grant (grant). Network
// Interfaces, back-end protocols, and the top-level initiators in test
// scenarios all implement it.
type ResponsePort interface {
	Resp(r *IoRequest)
	Grant(r *IoRequest)
}

// IoRequest is the unit of communication described in spec.md §3.
type IoRequest struct {
	Address     uint64
	Size        uint64
	IsWrite     bool
	Opcode      Opcode
	Data        []byte
	SecondData  []byte
	Latency     uint64
	Duration    uint64
	Status      Status
	RespPort    ResponsePort
	Initiator   string

	// IsResponseFlit marks a child request that an NI has turned
	// around and re-injected on the backward path (spec.md §4.3): the
	// same object travels out as a forwarded request and back as its
	// own response, so the owning NI can recognize it on return by
	// identity rather than by allocating a second object.
	IsResponseFlit bool

	scratch [numSlots]uint64
}

// New creates a zeroed IoRequest.
func New() *IoRequest {
	return &IoRequest{}
}

// IncLatency accumulates cycles monotonically (spec.md §6).
func (r *IoRequest) IncLatency(n uint64) { r.Latency += n }

// SetDuration max-accumulates cycles (spec.md §6).
func (r *IoRequest) SetDuration(n uint64) {
	if n > r.Duration {
		r.Duration = n
	}
}

// Scratch reads a typed scratch slot.
func (r *IoRequest) Scratch(s Slot) uint64 { return r.scratch[s] }

// SetScratch writes a typed scratch slot.
func (r *IoRequest) SetScratch(s Slot, v uint64) { r.scratch[s] = v }

// Burst is an IoRequest that an NI received directly from an initiator.
// The NI attaches a remaining-size counter and a two-bit phase counter
// (0 -> 1 -> 2) so that writes require both the address and data phase
// to complete while reads require only the data phase (spec.md §3).
type Burst struct {
	Req       *IoRequest
	Remaining uint64
	Phase     int // 0 = nothing observed, 1 = one phase observed, 2 = both observed
	ChildSum  uint64

	OriginX, OriginY, OriginZ int
	EarliestCycle             uint64
}

// NewBurst wraps req as a freshly-admitted burst.
func NewBurst(req *IoRequest, originX, originY, originZ int, earliest uint64) *Burst {
	return &Burst{
		Req:           req,
		Remaining:     req.Size,
		OriginX:       originX,
		OriginY:       originY,
		OriginZ:       originZ,
		EarliestCycle: earliest,
	}
}

// RequiredPhases returns how many phases must complete before the
// burst is releasable: 2 for writes (address + data), 1 for reads
// (data only).
func (b *Burst) RequiredPhases() int {
	if b.Req.IsWrite {
		return 2
	}
	return 1
}

// ObservePhase advances the phase counter by one. It panics if the
// counter has already reached RequiredPhases.
func (b *Burst) ObservePhase() {
	if b.Phase >= b.RequiredPhases() {
		panic(fmt.Sprintf("ioreq: burst observed more phases than required (phase=%d required=%d)", b.Phase, b.RequiredPhases()))
	}
	b.Phase++
}

// Done reports whether the burst has no remaining bytes to emit and has
// observed every required phase (spec.md §3 invariant).
func (b *Burst) Done() bool {
	return b.Remaining == 0 && b.Phase >= b.RequiredPhases()
}

// AckChild records that a child request carrying n bytes has completed,
// checking the burst invariant sum(child sizes acked) == size - remaining.
func (b *Burst) AckChild(n uint64) {
	b.ChildSum += n
	if b.ChildSum+b.Remaining != b.Req.Size {
		panic(fmt.Sprintf("ioreq: burst accounting invariant broken: acked=%d remaining=%d size=%d", b.ChildSum, b.Remaining, b.Req.Size))
	}
}

// Poison marks the burst's underlying request as INVALID, the outcome
// of any child address-decode failure (spec.md §7): invalid status on
// any child poisons the whole burst.
func (b *Burst) Poison() {
	b.Req.Status = StatusInvalid
}
