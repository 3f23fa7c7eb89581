package frontend

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/idma/backend"
)

// Funct7 selects the custom-instruction operation (spec.md §4.7, §6:
// opcode 0x2B, funct3 0b000).
type Funct7 int

const (
	FuncDmsrc Funct7 = iota
	FuncDmdst
	FuncDmcpy
	FuncDmcpyi
	FuncDmstat
	FuncDmstati
	FuncDmstr
	FuncDmrep
)

// GrantWire receives the completed-id pulse that unblocks a core
// stalled on a denied dmcpy (spec.md §4.7: "emits a grant wire pulse
// with the completed id").
type GrantWire interface {
	Pulse(id uint64)
}

// CustomInstruction is the custom-instruction iDMA front-end. Unlike
// RegisterMapped it has no bus address space: each operation arrives
// as a direct method call carrying its 32-bit operands, mirroring how
// a decoded RISC-V custom-1 instruction would be dispatched by funct7
// in an instruction-set simulator.
//
// Grounded on devices/pic.go's command-byte dispatch
// (`switch cmd { case ICW1, ICW2, ... }`) generalized from the 8259's
// initialization-command-word sequence to this front-end's funct7
// operation set.
type CustomInstruction struct {
	log   *logrus.Entry
	eng   *engine.Engine
	me    MiddleEnd
	grant GrantWire

	src, dst               uint64
	srcStride2, dstStride2 uint64
	reps2                  uint64

	nextID uint64
	doneID uint64
	busy   bool

	stalled *backend.Transfer
}

// NewCustomInstruction creates a CustomInstruction front-end. grant
// may be nil if nothing needs the ungrant/grant stall signal.
func NewCustomInstruction(eng *engine.Engine, me MiddleEnd, grant GrantWire, log *logrus.Entry) *CustomInstruction {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CustomInstruction{
		log:   log.WithField("component", "idma.frontend.custominsn"),
		eng:   eng,
		me:    me,
		grant: grant,
	}
}

// Dmsrc sets the source address (two concatenated 32-bit registers,
// spec.md §4.7).
func (c *CustomInstruction) Dmsrc(hi, lo uint32) { c.src = uint64(hi)<<32 | uint64(lo) }

// Dmdst sets the destination address.
func (c *CustomInstruction) Dmdst(hi, lo uint32) { c.dst = uint64(hi)<<32 | uint64(lo) }

// Dmstr sets the 2D source/destination strides.
func (c *CustomInstruction) Dmstr(srcStride, dstStride uint32) {
	c.srcStride2 = uint64(srcStride)
	c.dstStride2 = uint64(dstStride)
}

// Dmrep sets the repetition count for a 2D transfer.
func (c *CustomInstruction) Dmrep(reps uint32) { c.reps2 = uint64(reps) }

// Dmcpy issues a transfer using the previously-set source/destination/
// strides/reps and returns (id, accepted). If the middle-end is full
// the instruction is held (Retry() must be called once capacity
// frees up) and the front-end reports not-accepted so the issuing
// core can assert its stall.
func (c *CustomInstruction) Dmcpy(size, config uint32) (uint64, bool) {
	return c.dmcpyWithReps(size, config, c.reps2 > 0)
}

// Dmcpyi is dmcpy's immediate-size variant; the encoding difference
// (size as an immediate rather than a register operand) is a decode
// concern the caller already resolved, so it shares dmcpy's body.
func (c *CustomInstruction) Dmcpyi(size, config uint32) (uint64, bool) {
	return c.dmcpyWithReps(size, config, c.reps2 > 0)
}

func (c *CustomInstruction) dmcpyWithReps(size, config uint32, is2D bool) (uint64, bool) {
	if c.stalled != nil {
		return 0, false
	}
	cfg := config
	if is2D {
		cfg |= backend.ConfigBit2D
	}
	t := &backend.Transfer{
		Src: c.src, Dst: c.dst, Size: uint64(size),
		SrcStride: c.srcStride2, DstStride: c.dstStride2, Reps: c.reps2,
		Config: cfg,
		ID:     c.nextID + 1,
	}
	if !c.me.EnqueueTransfer(c.eng, t) {
		c.stalled = t
		c.busy = true
		return 0, false
	}
	c.nextID = t.ID
	c.busy = true
	return t.ID, true
}

// Retry re-attempts a previously held dmcpy once the middle-end may
// have drained (spec.md §4.7: "when the middle-end drains, it emits a
// grant wire pulse with the completed id").
func (c *CustomInstruction) Retry() bool {
	if c.stalled == nil {
		return false
	}
	t := c.stalled
	if !c.me.EnqueueTransfer(c.eng, t) {
		return false
	}
	c.nextID = t.ID
	c.stalled = nil
	if c.grant != nil {
		c.grant.Pulse(t.ID)
	}
	return true
}

// Dmstat returns the status word: (doneID, nextID, busy, accepted).
func (c *CustomInstruction) Dmstat() (doneID, nextID uint64, busy, accepted bool) {
	return c.doneID, c.nextID, c.busy, c.stalled == nil
}

// Dmstati is the immediate-operand status variant, selecting one field
// by sub-operation rather than returning all four; modeled here as
// returning the same tuple since this simulator has no separate
// instruction-decode stage to narrow it.
func (c *CustomInstruction) Dmstati() (doneID, nextID uint64, busy, accepted bool) {
	return c.Dmstat()
}

// AckParent implements middleend.FrontEnd.
func (c *CustomInstruction) AckParent(t *backend.Transfer) {
	c.doneID = t.ID
	if c.stalled == nil {
		c.busy = false
	}
}
