// Package router implements the dimension-ordered mesh router of
// spec.md §4.2: per-direction input/output queues, round-robin
// arbitration, per-output stall bits, and XY (or Z-X-Y) next-hop
// computation. It generalizes a flat I/O-port dispatch (one map
// lookup, one call) into a multi-port arbiter, and borrows the
// priority-scan idiom of devices/pic.go's GetInterruptVector
// (scan candidates in a fixed rotating order, stop at the first
// eligible one) for the round-robin input scan.
package router

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/queue"
)

// Direction enumerates the compass directions a router can move a flit
// in, plus LOCAL for delivery to/from the node's own Network Interface.
type Direction int

const (
	Left Direction = iota
	Right
	Up
	Down
	Local
	ZPlus
	ZMinus
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Local:
		return "LOCAL"
	case ZPlus:
		return "Z+"
	case ZMinus:
		return "Z-"
	default:
		return "?"
	}
}

var directions2D = []Direction{Left, Right, Up, Down, Local}
var directions3D = []Direction{ZPlus, ZMinus, Left, Right, Up, Down, Local}

// Neighbor is the contract a router requires of whatever sits across
// each of its non-local links (another router) and across its local
// link (the node's Network Interface, which additionally implements
// LocalSink).
type Neighbor interface {
	// HandleRequest pushes req onto the input queue facing the sender
	// at (fromX,fromY,fromZ) and returns true iff that queue is now
	// over capacity, signaling the sender to stall its own output.
	HandleRequest(e *engine.Engine, req *ioreq.IoRequest, fromX, fromY, fromZ int) bool
	// UnstallQueue marks the sender's output queue toward
	// (fromX,fromY,fromZ) as unstalled and re-wakes its arbiter.
	UnstallQueue(e *engine.Engine, fromX, fromY, fromZ int)
	// StallQueue force-stalls that same output queue.
	StallQueue(fromX, fromY, fromZ int)
}

// LocalSink additionally accepts terminal delivery: a flit whose
// destination coordinates match this router's own coordinates.
type LocalSink interface {
	Neighbor
	// ReqFromRouter forwards req to the local target/initiator and
	// returns its outcome, which may be OK, PENDING, DENIED, or
	// INVALID (spec.md §4.1, §4.3).
	ReqFromRouter(e *engine.Engine, req *ioreq.IoRequest) ioreq.Status
	// Grant notifies the local sink that a previously DENIED delivery
	// may now be retried.
	Grant(e *engine.Engine, req *ioreq.IoRequest)
}

// Config holds per-router construction parameters.
type Config struct {
	X, Y, Z   int
	Is3D      bool
	QueueSize int // capacity before a predecessor is told to stall
}

// Router is one node of the mesh fabric.
type Router struct {
	cfg Config
	log *logrus.Entry

	directions []Direction
	arbiter    *engine.ClockEvent

	inQueues  map[Direction]*queue.Queue
	outQueues map[Direction]*queue.Queue
	stalled   map[Direction]bool

	neighbors map[Direction]Neighbor
	local     LocalSink

	cursor int
}

// New creates a Router at cfg.X,cfg.Y,cfg.Z. Neighbors and the local
// sink are wired in separately via Connect/ConnectLocal once the full
// mesh has been constructed (spec.md §4.2's routing needs every
// router's address before any of them can compute next hops).
func New(cfg Config, log *logrus.Entry) *Router {
	dirs := directions2D
	if cfg.Is3D {
		dirs = directions3D
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Router{
		cfg:        cfg,
		log:        log.WithFields(logrus.Fields{"component": "router", "x": cfg.X, "y": cfg.Y, "z": cfg.Z}),
		directions: dirs,
		inQueues:   make(map[Direction]*queue.Queue, len(dirs)),
		outQueues:  make(map[Direction]*queue.Queue, len(dirs)),
		stalled:    make(map[Direction]bool, len(dirs)),
		neighbors:  make(map[Direction]Neighbor, len(dirs)),
	}
	r.arbiter = engine.NewEvent("router.tick", r, func(e *engine.Engine) { r.tick(e) })
	for _, d := range dirs {
		r.inQueues[d] = queue.Bind(fmt.Sprintf("in[%s]", d), r.arbiter)
		r.outQueues[d] = queue.Bind(fmt.Sprintf("out[%s]", d), r.arbiter)
	}
	return r
}

// Coords returns the router's mesh position.
func (r *Router) Coords() (int, int, int) { return r.cfg.X, r.cfg.Y, r.cfg.Z }

// Connect wires the neighbor reachable in direction d.
func (r *Router) Connect(d Direction, n Neighbor) { r.neighbors[d] = n }

// ConnectLocal wires this node's Network Interface as the LOCAL sink.
func (r *Router) ConnectLocal(sink LocalSink) {
	r.local = sink
	r.neighbors[Local] = sink
}

// HandleRequest implements Neighbor: push req onto the input queue
// facing (fromX,fromY,fromZ), derived from which of our neighbors sent
// it (or Local if it came from our own NI).
func (r *Router) HandleRequest(e *engine.Engine, req *ioreq.IoRequest, fromX, fromY, fromZ int) bool {
	d := r.directionOf(fromX, fromY, fromZ)
	q := r.inQueues[d]
	q.PushBack(e, req)
	if q.Size() > r.cfg.QueueSize+1 {
		panic(engine.InvariantError{Msg: fmt.Sprintf("router(%d,%d,%d): input queue %s overflowed capacity+1", r.cfg.X, r.cfg.Y, r.cfg.Z, d)})
	}
	return q.Size() > r.cfg.QueueSize
}

// UnstallQueue implements Neighbor: unstall our output queue that faces
// (fromX,fromY,fromZ) and re-wake the arbiter so delivery resumes.
func (r *Router) UnstallQueue(e *engine.Engine, fromX, fromY, fromZ int) {
	d := r.directionOf(fromX, fromY, fromZ)
	r.stalled[d] = false
	e.Enqueue(r.arbiter, 0)
}

// StallQueue implements Neighbor: force-stall our output queue facing
// (fromX,fromY,fromZ), used when the downstream NI has a
// target-denied request outstanding.
func (r *Router) StallQueue(fromX, fromY, fromZ int) {
	d := r.directionOf(fromX, fromY, fromZ)
	r.stalled[d] = true
}

// Grant implements the local-sink-facing half of the denied/grant
// handshake: a previously DENIED delivery on our LOCAL output may now
// be retried.
func (r *Router) Grant(e *engine.Engine, req *ioreq.IoRequest) {
	r.stalled[Local] = false
	e.Enqueue(r.arbiter, 0)
}

// directionOf maps a neighbor's coordinates to the direction it is
// reachable at, used to identify which queue an inbound push or an
// unstall/stall call refers to.
func (r *Router) directionOf(x, y, z int) Direction {
	switch {
	case x == r.cfg.X && y == r.cfg.Y && z == r.cfg.Z:
		return Local
	case r.cfg.Is3D && z != r.cfg.Z:
		if z > r.cfg.Z {
			return ZPlus // the sender is reachable via our Z+ port
		}
		return ZMinus
	case x != r.cfg.X:
		if x > r.cfg.X {
			return Right // the sender is reachable via our Right port
		}
		return Left
	default:
		if y > r.cfg.Y {
			return Up // the sender is reachable via our Up port
		}
		return Down
	}
}

// nextHop computes the direction to forward req toward, using
// dimension-ordered routing: Z first (3D only), then X, then Y
// (spec.md §4.2).
func (r *Router) nextHop(req *ioreq.IoRequest) Direction {
	dx := int(req.Scratch(ioreq.SlotDestX))
	dy := int(req.Scratch(ioreq.SlotDestY))
	dz := int(req.Scratch(ioreq.SlotDestZ))

	if r.cfg.Is3D && dz != r.cfg.Z {
		if dz > r.cfg.Z {
			return ZPlus
		}
		return ZMinus
	}
	if dx != r.cfg.X {
		if dx > r.cfg.X {
			return Right
		}
		return Left
	}
	if dy != r.cfg.Y {
		if dy > r.cfg.Y {
			return Up
		}
		return Down
	}
	return Local
}

// tick runs the per-cycle round-robin scan described in spec.md §4.2:
// starting at the cursor, move at most one flit per output direction
// per cycle, then deliver whatever output heads are visible and
// unstalled. Both stages run from the same wake event, matching the
// single per-cycle arbitration process spec.md describes.
//
// Open issue (spec.md §9.i), preserved deliberately: the cursor
// advances unconditionally at the end of the scan, even on a cycle
// where no flit moved at all.
func (r *Router) tick(e *engine.Engine) {
	n := len(r.directions)
	acceptedOutput := make(map[Direction]bool, n)

	for i := 0; i < n; i++ {
		d := r.directions[(r.cursor+i)%n]
		inQ := r.inQueues[d]
		if inQ.Empty() || !inQ.HeadVisible(e.Now()) {
			continue
		}
		req := inQ.Head(e.Now())
		dOut := r.nextHop(req)
		if acceptedOutput[dOut] {
			continue
		}
		outQ := r.outQueues[dOut]
		if r.stalled[dOut] || outQ.Size() >= r.cfg.QueueSize {
			continue
		}

		inQ.PopFront(e.Now())
		outQ.PushBack(e, req)
		acceptedOutput[dOut] = true

		if inQ.Size() == r.cfg.QueueSize {
			r.unstallPredecessor(e, d)
		}
	}
	r.cursor = (r.cursor + 1) % n

	r.deliver(e)
}

// unstallPredecessor tells whichever neighbor feeds our input queue in
// direction d that it may resume sending.
func (r *Router) unstallPredecessor(e *engine.Engine, d Direction) {
	neighbor := r.neighbors[d]
	if neighbor == nil {
		return // LOCAL direction with no NI wired yet, e.g. in unit tests
	}
	neighbor.UnstallQueue(e, r.cfg.X, r.cfg.Y, r.cfg.Z)
}

// deliver pushes ready output heads downstream, one per direction per
// cycle (bandwidth enforcement, spec.md §5).
func (r *Router) deliver(e *engine.Engine) {
	for _, d := range r.directions {
		outQ := r.outQueues[d]
		if outQ.Empty() || !outQ.HeadVisible(e.Now()) || r.stalled[d] {
			continue
		}
		req := outQ.Head(e.Now())

		if d == Local {
			if r.local == nil {
				continue
			}
			status := r.local.ReqFromRouter(e, req)
			switch status {
			case ioreq.StatusDenied:
				r.stalled[Local] = true
				// req stays queued; Grant() will unstall and retry.
			default:
				outQ.PopFront(e.Now())
			}
			continue
		}

		neighbor := r.neighbors[d]
		if neighbor == nil {
			continue
		}
		full := neighbor.HandleRequest(e, req, r.cfg.X, r.cfg.Y, r.cfg.Z)
		if full {
			r.stalled[d] = true
		} else {
			outQ.PopFront(e.Now())
		}
	}
}

// InputOccupancy reports the current raw occupancy of the input queue
// in direction d, used by tests asserting the queue_size+1 invariant
// (spec.md §8 property 3).
func (r *Router) InputOccupancy(d Direction) int { return r.inQueues[d].Size() }
