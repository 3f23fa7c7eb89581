// Package fractalsync implements the fractal synchronizer tree of
// spec.md §4.8: each node serves four compass-direction slave ports
// and aggregates requests pairwise across the north-south and
// east-west axes, forwarding upward or broadcasting a wake response
// depending on the request's one-hot `aggr` level encoding.
package fractalsync

import (
	"github.com/sirupsen/logrus"
)

// Direction names one of a node's four slave-facing compass ports.
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Axis groups the two opposite directions a node aggregates together.
type Axis int

const (
	AxisNS Axis = iota
	AxisEW
)

// Request is a synchronization barrier request arriving at a slave
// port. Aggr is a one-hot-terminated bitmask (spec.md §9: "the top set
// bit indicates the level at which the barrier terminates" — keep this
// encoding on the wire exactly, never reimplement as a count).
type Request struct {
	Aggr  uint32
	IDReq uint64
}

// Response is what a node sends back down to a slave once its barrier
// resolves.
type Response struct {
	Wake  bool
	Error bool
}

// Slave receives a node's downward response.
type Slave interface {
	Deliver(dir Direction, resp Response)
}

// Master receives a node's upward request on one axis.
type Master interface {
	Forward(axis Axis, req Request)
}

// topSetBit returns the position of the highest set bit, or -1 if v==0.
func topSetBit(v uint32) int {
	if v == 0 {
		return -1
	}
	bit := -1
	for i := 0; i < 32; i++ {
		if v&(1<<uint(i)) != 0 {
			bit = i
		}
	}
	return bit
}

// Node is one level of the fractal synchronizer tree.
//
// Grounded on devices/pic.go's interrupt-aggregation idiom
// (multiple IRQ sources latched independently, then reconciled into a
// single vector) generalized from an 8-line priority scan to a
// two-axis pairwise barrier.
type Node struct {
	level int
	log   *logrus.Entry

	nsMaster Master
	ewMaster Master
	slaves   [4]Slave

	arrived [4]map[uint64]Request // per-direction, keyed by id_req

	// currentAggr is a secondary, diagnostics-only snapshot of the most
	// recently latched aggr value per direction, queried via PortAggr.
	// It is not consulted by the accumulation/completion path above.
	currentAggr [4]map[uint64]uint32
}

// New creates a Node at the given tree level, forwarding upward via
// nsMaster/ewMaster and replying downward via slaves (indexed by
// Direction; nil entries are leaf ports with nothing to reply to).
func New(level int, nsMaster, ewMaster Master, slaves [4]Slave, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	n := &Node{
		level:    level,
		log:      log.WithField("component", "fractalsync"),
		nsMaster: nsMaster,
		ewMaster: ewMaster,
		slaves:   slaves,
	}
	for i := range n.arrived {
		n.arrived[i] = make(map[uint64]Request)
		n.currentAggr[i] = make(map[uint64]uint32)
	}
	return n
}

// Request handles a request arriving at slave port dir.
func (n *Node) Request(dir Direction, req Request) {
	n.latchCurrentAggr(dir, req)

	if req.Aggr&(1<<uint(n.level)) == 0 {
		// This node's level doesn't participate; pass straight through
		// on the same axis without accumulating.
		n.forwardAxis(axisOf(dir), req)
		return
	}

	n.arrived[dir][req.IDReq] = req
	partner := opposite(dir)
	partnerReq, ok := n.arrived[partner][req.IDReq]
	if !ok {
		return // waiting on the opposite-direction port
	}

	axis := axisOf(dir)
	n.completeAxis(axis, req, partnerReq)
}

// latchCurrentAggr updates the diagnostics snapshot. This is the one
// place the SLAVE_WEST_REQ defect of spec.md §9.iii is preserved: a
// West-port arrival is latched into the East slot instead of its own,
// so PortAggr(West, id) never reflects a genuine West arrival while
// PortAggr(East, id) silently absorbs both. The completion path above
// does not use this snapshot and is unaffected.
func (n *Node) latchCurrentAggr(dir Direction, req Request) {
	slot := dir
	if dir == West {
		slot = East
	}
	n.currentAggr[slot][req.IDReq] = req.Aggr
}

// PortAggr is the diagnostic accessor exposing latchCurrentAggr's
// snapshot, analogous to the register-mapped front-end's status word.
func (n *Node) PortAggr(dir Direction, idReq uint64) (uint32, bool) {
	v, ok := n.currentAggr[dir][idReq]
	return v, ok
}

func (n *Node) completeAxis(axis Axis, a, b Request) {
	delete(n.arrived[axisDirections(axis)[0]], a.IDReq)
	delete(n.arrived[axisDirections(axis)[1]], a.IDReq)

	top := topSetBit(a.Aggr)
	if top == n.level {
		resp := Response{Wake: true}
		for _, d := range axisDirections(axis) {
			if s := n.slaves[d]; s != nil {
				s.Deliver(d, resp)
			}
		}
		return
	}

	n.forwardAxis(orthogonal(axis), Request{Aggr: a.Aggr, IDReq: a.IDReq})
}

func (n *Node) forwardAxis(axis Axis, req Request) {
	switch axis {
	case AxisNS:
		if n.nsMaster != nil {
			n.nsMaster.Forward(AxisNS, req)
		}
	case AxisEW:
		if n.ewMaster != nil {
			n.ewMaster.Forward(AxisEW, req)
		}
	}
}

func axisOf(dir Direction) Axis {
	if dir == North || dir == South {
		return AxisNS
	}
	return AxisEW
}

func axisDirections(axis Axis) [2]Direction {
	if axis == AxisNS {
		return [2]Direction{North, South}
	}
	return [2]Direction{East, West}
}

func orthogonal(axis Axis) Axis {
	if axis == AxisNS {
		return AxisEW
	}
	return AxisNS
}

func opposite(dir Direction) Direction {
	switch dir {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}
