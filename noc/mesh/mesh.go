// Package mesh assembles routers and Network Interfaces into the grid
// described by spec.md §4.2/§4.3: one router and one NI per node,
// wired LEFT/RIGHT/UP/DOWN (plus Z+/Z- in the 3D variant) to their
// neighbors, each router's LOCAL port bound to its own node's NI.
package mesh

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
	"example.com/meshcore/noc/ni"
	"example.com/meshcore/noc/router"
)

// Config describes the grid to build.
type Config struct {
	DimX, DimY, DimZ int
	Is3D             bool
	QueueSize        int    // router per-direction input queue capacity
	NocWidth         uint64 // NI data-phase flit size
	OutstandingReqs  int    // NI outstanding-burst budget
}

// coord is the map key for a node's (x, y, z) position.
type coord struct{ x, y, z int }

// Mesh owns every router and NI in the grid and the shared memory map
// used for address decode.
type Mesh struct {
	cfg     Config
	log     *logrus.Entry
	routers map[coord]*router.Router
	nis     map[coord]*ni.NI
	memMap  *ni.MemoryMap
}

// New builds the full grid and wires it up. targets supplies the
// locally attached device (if any) for each node; a node absent from
// targets has no attached device and can only originate bursts, never
// serve as a destination.
func New(cfg Config, eng *engine.Engine, memMap *ni.MemoryMap, targets map[[3]int]port.Target, log *logrus.Entry) *Mesh {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if !cfg.Is3D {
		cfg.DimZ = 1
	}
	m := &Mesh{
		cfg:     cfg,
		log:     log.WithField("component", "mesh"),
		routers: make(map[coord]*router.Router),
		nis:     make(map[coord]*ni.NI),
		memMap:  memMap,
	}

	for z := 0; z < cfg.DimZ; z++ {
		for y := 0; y < cfg.DimY; y++ {
			for x := 0; x < cfg.DimX; x++ {
				c := coord{x, y, z}
				m.routers[c] = router.New(router.Config{X: x, Y: y, Z: z, Is3D: cfg.Is3D, QueueSize: cfg.QueueSize}, log)
			}
		}
	}

	for z := 0; z < cfg.DimZ; z++ {
		for y := 0; y < cfg.DimY; y++ {
			for x := 0; x < cfg.DimX; x++ {
				c := coord{x, y, z}
				r := m.routers[c]
				if x > 0 {
					left := m.routers[coord{x - 1, y, z}]
					r.Connect(router.Left, left)
					left.Connect(router.Right, r)
				}
				if y > 0 {
					down := m.routers[coord{x, y - 1, z}]
					r.Connect(router.Down, down)
					down.Connect(router.Up, r)
				}
				if cfg.Is3D && z > 0 {
					below := m.routers[coord{x, y, z - 1}]
					r.Connect(router.ZMinus, below)
					below.Connect(router.ZPlus, r)
				}
			}
		}
	}

	for z := 0; z < cfg.DimZ; z++ {
		for y := 0; y < cfg.DimY; y++ {
			for x := 0; x < cfg.DimX; x++ {
				c := coord{x, y, z}
				var target port.Target
				if targets != nil {
					target = targets[[3]int{x, y, z}]
				}
				n := ni.New(ni.Config{X: x, Y: y, Z: z, NocWidth: cfg.NocWidth, OutstandingReqs: cfg.OutstandingReqs}, eng, m.routers[c], memMap, target, log)
				m.nis[c] = n
				m.routers[c].ConnectLocal(n)
			}
		}
	}

	return m
}

// NI returns the Network Interface at (x, y, z), or nil if out of
// range.
func (m *Mesh) NI(x, y, z int) *ni.NI { return m.nis[coord{x, y, z}] }

// Router returns the router at (x, y, z), or nil if out of range.
func (m *Mesh) Router(x, y, z int) *router.Router { return m.routers[coord{x, y, z}] }

// String aids debugging test failures by naming the grid shape.
func (m *Mesh) String() string {
	return fmt.Sprintf("mesh(%dx%dx%d)", m.cfg.DimX, m.cfg.DimY, m.cfg.DimZ)
}

// TargetPort is the thin destination-side wrapper of spec.md §2:
// it forwards a request to whatever actual memory or device is
// attached (Device), or, if none is attached, answers with a fixed
// zero-byte-semantics OK after Latency cycles — standing in for the
// out-of-scope "accelerator engine" traffic sink (spec.md §1) in
// scenarios that only care about NoC/iDMA timing, not the target's own
// functional behavior.
type TargetPort struct {
	Device  port.Target
	Latency uint64
}

// Req implements port.Target.
func (t *TargetPort) Req(r *ioreq.IoRequest) ioreq.Status {
	if t.Device != nil {
		return t.Device.Req(r)
	}
	r.IncLatency(t.Latency)
	r.Status = ioreq.StatusOK
	return ioreq.StatusOK
}
