// Package scenario assembles the named scenarios of spec.md §8 into
// runnable checks: each builds a minimal system out of this module's
// real components, drives it to quiescence, and reports whether the
// documented expectation held.
//
// Grounded on its virtual_machine.go: a single constructor
// that assembles every component with sensible defaults before running
// (NewVirtualMachine's memSize/numVCPUs defaulting), generalized from
// one fixed VM shape to a family of named, parameterized systems.
package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
	"example.com/meshcore/fractalsync"
	"example.com/meshcore/idma/backend"
	"example.com/meshcore/idma/frontend"
	"example.com/meshcore/idma/middleend"
	"example.com/meshcore/noc/mesh"
	"example.com/meshcore/noc/ni"
	"example.com/meshcore/noc/router"
	"example.com/meshcore/timer"
)

// Result reports one scenario's outcome.
type Result struct {
	Name    string
	Passed  bool
	Detail  string
	Cycles  uint64
}

// Names lists every scenario in spec.md §8 order.
var Names = []string{"A", "B", "C", "D", "E", "F"}

// Run executes the named scenario and returns its result. An unknown
// name is an error, not a failing Result.
func Run(name string, log *logrus.Entry) (Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	switch name {
	case "A":
		return scenarioA(log), nil
	case "B":
		return scenarioB(log), nil
	case "C":
		return scenarioC(log), nil
	case "D":
		return scenarioD(log), nil
	case "E":
		return scenarioE(log), nil
	case "F":
		return scenarioF(log), nil
	default:
		return Result{}, fmt.Errorf("scenario: unknown scenario %q", name)
	}
}

type capturingInitiator struct{ resps []*ioreq.IoRequest }

func (c *capturingInitiator) Resp(r *ioreq.IoRequest)  { c.resps = append(c.resps, r) }
func (c *capturingInitiator) Grant(r *ioreq.IoRequest) {}

// scenarioA: two disjoint 256 KiB streams crossing at the center
// router — NI(0,2) pushes horizontally to NI(3,2) while NI(2,0) pushes
// vertically to NI(2,3). XY routing sends the first stream entirely
// horizontally and the second entirely vertically, so neither stalls
// the other; at NocWidth bytes/cycle sustained throughput the expected
// completion time is streamSize/NocWidth cycles, plus the mesh's hop
// pipeline depth and per-burst (address-phase) overhead.
func scenarioA(log *logrus.Entry) Result {
	e := engine.New(log)
	const (
		dim        = 4
		nocWidth   = 8
		streamSize = 256 * 1024
	)
	entries := make([]ni.Entry, 0, dim*dim)
	targets := make(map[[3]int]port.Target, dim*dim)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			base := uint64(x+y*dim) * 0x100000 // 1 MiB apart: room for a 256 KiB stream per node
			entries = append(entries, ni.Entry{Base: base, Size: streamSize, X: x, Y: y, Z: 0})
			targets[[3]int{x, y, 0}] = &mesh.TargetPort{}
		}
	}
	mm := ni.NewMemoryMap(entries...)
	m := mesh.New(mesh.Config{DimX: dim, DimY: dim, QueueSize: 8, NocWidth: nocWidth, OutstandingReqs: 1}, e, mm, targets, log)

	addrOf := func(x, y int) uint64 { return uint64(x+y*dim) * 0x100000 }

	hOrigin, hDest := m.NI(0, 2, 0), addrOf(dim-1, 2)
	hReq := ioreq.New()
	hReq.Address = hDest
	hReq.Size = streamSize
	hInit := &capturingInitiator{}
	hReq.RespPort = hInit

	vOrigin, vDest := m.NI(2, 0, 0), addrOf(2, dim-1)
	vReq := ioreq.New()
	vReq.Address = vDest
	vReq.Size = streamSize
	vInit := &capturingInitiator{}
	vReq.RespPort = vInit

	hStatus := hOrigin.Req(hReq)
	vStatus := vOrigin.Req(vReq)
	e.RunUntilIdle(100000)

	expected := uint64(streamSize / nocWidth) // 32768, spec.md §8
	hops := uint64(dim - 1)
	tolerance := 4*hops + 32 // round-trip pipeline fill/drain plus address-phase overhead

	withinBudget := e.Now() >= expected && e.Now() <= expected+tolerance
	passed := hStatus == ioreq.StatusPending && vStatus == ioreq.StatusPending &&
		len(hInit.resps) == 1 && len(vInit.resps) == 1 &&
		hReq.Status != ioreq.StatusInvalid && vReq.Status != ioreq.StatusInvalid &&
		withinBudget

	return Result{Name: "A", Passed: passed, Cycles: e.Now(),
		Detail: fmt.Sprintf("status=%s/%s resps=%d/%d final=%s/%s cycles=%d want=%d..%d",
			hStatus, vStatus, len(hInit.resps), len(vInit.resps), hReq.Status, vReq.Status,
			e.Now(), expected, expected+tolerance)}
}

// scenarioB: AXI burst legalization never crosses a page boundary.
func scenarioB(log *logrus.Entry) Result {
	a := &backend.Axi{}
	size := a.BurstSize(0x1000_0F80, 256)
	passed := size == 128
	return Result{Name: "B", Passed: passed,
		Detail: fmt.Sprintf("burst size at 0x10000F80 for 256 bytes = %d (want 128)", size)}
}

// middleEndRef defers binding to a *middleend.MiddleEnd that does not
// exist yet at the point a front-end needs one, resolving the
// front-end/middle-end construction cycle (each needs a handle to the
// other).
type middleEndRef struct{ ptr **middleend.MiddleEnd }

func (r middleEndRef) EnqueueTransfer(e *engine.Engine, t *backend.Transfer) bool {
	return (*r.ptr).EnqueueTransfer(e, t)
}

// coreRef resolves the matching middle-end/back-end construction cycle.
type coreRef struct{ ptr **backend.Core }

func (r coreRef) EnqueueTransfer(e *engine.Engine, t *backend.Transfer) {
	(*r.ptr).EnqueueTransfer(e, t)
}

// newDmaChannel builds one complete register-mapped front-end /
// middle-end / local-scratchpad back-end pipeline, for use as one side
// of a frontend.TwoChannel dispatcher (spec.md §6's two-channel iDMA
// wrapper: each direction owns an independent pipeline behind a shared
// register window).
func newDmaChannel(e *engine.Engine, log *logrus.Entry) *frontend.RegisterMapped {
	mem := &memStub{}

	var core *backend.Core
	scratch := backend.NewScratchpad(backend.ScratchpadConfig{Width: 8, BurstQueueSize: 4, Memory: mem},
		backend.Callbacks{
			OnData: func(e *engine.Engine, data []byte) { core.OnSourceData(e, data) },
			OnAck:  func(e *engine.Engine, data []byte) { core.OnDestAck(e, data) },
		}, log)

	var mid *middleend.MiddleEnd
	rm := frontend.NewRegisterMapped(e, middleEndRef{&mid}, nil, log)
	mid = middleend.New(4, coreRef{&core}, rm, log)
	core = backend.New(backend.Config{
		LocalRange:    backend.Range{Base: 0, Size: 1 << 24},
		LocalRead:     scratch,
		LocalWrite:    scratch,
		ExternalRead:  scratch,
		ExternalWrite: scratch,
	}, mid, log)
	return rm
}

// scenarioC: two independent 2D transfers driven through a single
// frontend.TwoChannel register window, one per direction bit, each
// reaching its own register-mapped front-end, middle-end splitting,
// and local scratchpad back-end — proving the two channels complete
// independently rather than sharing transfer state.
func scenarioC(log *logrus.Entry) Result {
	e := engine.New(log)
	const directionBit = 0x200
	rm := frontend.NewTwoChannel(newDmaChannel(e, log), newDmaChannel(e, log))

	must := func(status ioreq.Status) {
		if status != ioreq.StatusOK {
			panic(fmt.Sprintf("scenario C register write failed: %s", status))
		}
	}
	write := func(channel, offset uint64, v uint32) {
		b := make([]byte, 4)
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
		must(rm.Req(&ioreq.IoRequest{Address: channel | offset, Size: 4, IsWrite: true, Data: b}))
	}
	latch := func(channel uint64) uint32 {
		req := &ioreq.IoRequest{Address: channel | 0x44, Size: 4, Data: make([]byte, 4)}
		must(rm.Req(req))
		return uint32(req.Data[0]) | uint32(req.Data[1])<<8 | uint32(req.Data[2])<<16 | uint32(req.Data[3])<<24
	}
	done := func(channel uint64) uint32 {
		req := &ioreq.IoRequest{Address: channel | 0x84, Size: 4, Data: make([]byte, 4)}
		must(rm.Req(req))
		return uint32(req.Data[0]) | uint32(req.Data[1])<<8 | uint32(req.Data[2])<<16 | uint32(req.Data[3])<<24
	}
	drive := func(channel uint64, src, dst uint32) uint32 {
		write(channel, 0x00, backend.ConfigBit2D)
		write(channel, 0xD8, src)  // src
		write(channel, 0xD0, dst)  // dst
		write(channel, 0xE0, 16)   // length per rep
		write(channel, 0xF0, 64)   // src stride
		write(channel, 0xE8, 128)  // dst stride
		write(channel, 0xF8, 3)    // reps
		return latch(channel)
	}

	wantL2toL1 := drive(0, 0, 0x8000)
	wantL1toL2 := drive(directionBit, 1024, 0x9000)

	e.RunUntilIdle(10000)

	doneL2toL1 := done(0)
	doneL1toL2 := done(directionBit)

	passed := doneL2toL1 == wantL2toL1 && doneL1toL2 == wantL1toL2
	return Result{Name: "C", Passed: passed, Cycles: e.Now(),
		Detail: fmt.Sprintf("L2->L1 want=%d got=%d; L1->L2 want=%d got=%d",
			wantL2toL1, doneL2toL1, wantL1toL2, doneL1toL2)}
}

type memStub struct{}

func (m *memStub) Req(r *ioreq.IoRequest) ioreq.Status { return ioreq.StatusOK }

type fakeTarget struct{}

func (fakeTarget) Req(r *ioreq.IoRequest) ioreq.Status { r.Status = ioreq.StatusOK; return ioreq.StatusOK }

// scenarioD: NI outstanding-burst budget denies beyond capacity; the
// denied burst completes once retried.
func scenarioD(log *logrus.Entry) Result {
	e := engine.New(log)
	r := router.New(router.Config{X: 0, Y: 0, Z: 0, QueueSize: 8}, log)
	mm := ni.NewMemoryMap(ni.Entry{Base: 0, Size: 0x1000, X: 0, Y: 0, Z: 0})
	n := ni.New(ni.Config{X: 0, Y: 0, Z: 0, NocWidth: 8, OutstandingReqs: 2}, e, r, mm, fakeTarget{}, log)
	r.ConnectLocal(n)

	statuses := make([]ioreq.Status, 0, 3)
	inits := make([]*capturingInitiator, 0, 3)
	for i := 0; i < 3; i++ {
		req := ioreq.New()
		req.Address = 0
		req.Size = 8
		ci := &capturingInitiator{}
		req.RespPort = ci
		inits = append(inits, ci)
		statuses = append(statuses, n.Req(req))
	}
	e.RunUntilIdle(2000)
	n.Retry()
	e.RunUntilIdle(4000)

	passed := statuses[0] != ioreq.StatusDenied && statuses[1] != ioreq.StatusDenied && statuses[2] == ioreq.StatusDenied &&
		len(inits[2].resps) == 1
	return Result{Name: "D", Passed: passed, Cycles: e.Now(),
		Detail: fmt.Sprintf("statuses=%v", statuses)}
}

// scenarioE: cascaded 64-bit timer hits compare at cycle 1,000,000.
func scenarioE(log *logrus.Entry) Result {
	e := engine.New(log)
	irq := &pulseIRQ{eng: e}
	tm := timer.New(e, irq, nil, log)
	tm.SetCascade(e, true)
	tm.Lo.Configure(e, timer.CounterConfig{Enable: true, IRQEnable: true})
	tm.Lo.SetCompare(e, 1_000_000)

	e.RunUntilIdle(2_000_000)

	passed := len(irq.hits) == 1 && irq.hits[0] == 1_000_000
	return Result{Name: "E", Passed: passed, Cycles: e.Now(),
		Detail: fmt.Sprintf("irq hits=%v", irq.hits)}
}

type pulseIRQ struct {
	hits []uint64
	eng  *engine.Engine
}

func (p *pulseIRQ) Assert() { p.hits = append(p.hits, p.eng.Now()) }

// scenarioF: level-1 fractal sync node aggregates all four cardinal
// ports and broadcasts a wake.
func scenarioF(log *logrus.Entry) Result {
	slaves := [4]fractalsync.Slave{&recSlave{}, &recSlave{}, &recSlave{}, &recSlave{}}
	node := fractalsync.New(1, &recMaster{}, &recMaster{}, slaves, log)

	req := fractalsync.Request{Aggr: 0b11, IDReq: 1}
	node.Request(fractalsync.North, req)
	node.Request(fractalsync.East, req)
	node.Request(fractalsync.South, req)
	node.Request(fractalsync.West, req)

	passed := true
	for _, s := range slaves {
		rs := s.(*recSlave)
		if len(rs.resps) != 1 || !rs.resps[0].Wake || rs.resps[0].Error {
			passed = false
		}
	}
	return Result{Name: "F", Passed: passed, Detail: "all four slaves woken"}
}

type recSlave struct{ resps []fractalsync.Response }

func (r *recSlave) Deliver(dir fractalsync.Direction, resp fractalsync.Response) {
	r.resps = append(r.resps, resp)
}

type recMaster struct{ fwd []fractalsync.Request }

func (m *recMaster) Forward(axis fractalsync.Axis, req fractalsync.Request) {
	m.fwd = append(m.fwd, req)
}
