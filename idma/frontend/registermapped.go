// Package frontend implements the two iDMA front-end variants of
// spec.md §4.7: a register-mapped variant addressed like any other bus
// target, and a custom-instruction variant dispatched by funct7.
package frontend

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/idma/backend"
)

// Register offsets, spec.md §6.
const (
	offConfig      = 0x00
	offStatus      = 0x04
	offNextID      = 0x44
	offDoneID      = 0x84
	offDstAddrLow  = 0xD0
	offSrcAddrLow  = 0xD8
	offLength      = 0xE0
	offDstStride2  = 0xE8
	offSrcStride2  = 0xF0
	offReps2       = 0xF8
	offDstStride3  = 0x100
	offSrcStride3  = 0x108
	offReps3       = 0x110

	directionBit = 0x200
)

// MiddleEnd is the upward-facing contract a front-end pushes completed
// descriptors into.
type MiddleEnd interface {
	EnqueueTransfer(e *engine.Engine, t *backend.Transfer) bool
}

// IRQLine receives a level-sensitive assertion when a transfer
// completes, if bound (spec.md §4.7: "raise a level-sensitive IRQ if
// the line is bound").
type IRQLine interface {
	Assert()
}

// RegisterMapped is the register-mapped iDMA front-end of spec.md §4.7
// and §6. It implements port.Target directly: Req's r.Address is the
// byte offset, r.Size must be 4, and r.IsWrite selects direction.
//
// Grounded on devices/serial.go's register-offset switch
// (a dense `switch offset { case ...}` dispatch over a small, mostly
// flat register file) generalized from 8-bit UART registers to this
// front-end's 32-bit transfer-descriptor fields.
type RegisterMapped struct {
	log *logrus.Entry
	eng *engine.Engine
	me  MiddleEnd
	irq IRQLine

	config, status      uint32
	dstAddrLow, srcAddrLow uint32
	length                 uint32
	dstStride2, srcStride2 uint32
	reps2                  uint32
	dstStride3, srcStride3 uint32
	reps3                  uint32

	nextID uint64
	doneID uint64
}

// NewRegisterMapped creates a RegisterMapped front-end. irq may be nil
// (no IRQ line bound).
func NewRegisterMapped(eng *engine.Engine, me MiddleEnd, irq IRQLine, log *logrus.Entry) *RegisterMapped {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RegisterMapped{
		log: log.WithField("component", "idma.frontend.regmap"),
		eng: eng,
		me:  me,
		irq: irq,
	}
}

// Req implements port.Target.
func (r *RegisterMapped) Req(req *ioreq.IoRequest) ioreq.Status {
	offset := req.Address &^ directionBit
	if req.Size != 4 {
		return ioreq.StatusInvalid
	}
	if req.IsWrite {
		return r.write(offset, req)
	}
	return r.read(offset, req)
}

func (r *RegisterMapped) write(offset uint64, req *ioreq.IoRequest) ioreq.Status {
	v := decodeWord(req.Data)
	switch offset {
	case offConfig:
		r.config = v
	case offDstAddrLow:
		r.dstAddrLow = v
	case offSrcAddrLow:
		r.srcAddrLow = v
	case offLength:
		r.length = v
	case offDstStride2:
		r.dstStride2 = v
	case offSrcStride2:
		r.srcStride2 = v
	case offReps2:
		r.reps2 = v
	case offDstStride3:
		r.dstStride3 = v
	case offSrcStride3:
		r.srcStride3 = v
	case offReps3:
		r.reps3 = v
	case offStatus, offNextID, offDoneID:
		return ioreq.StatusInvalid // read-only offsets
	default:
		return ioreq.StatusInvalid
	}
	return ioreq.StatusOK
}

func (r *RegisterMapped) read(offset uint64, req *ioreq.IoRequest) ioreq.Status {
	var v uint32
	switch offset {
	case offConfig:
		v = r.config
	case offStatus:
		v = r.status
	case offNextID:
		return r.latchTransfer(req)
	case offDoneID:
		v = uint32(r.doneID)
	case offDstAddrLow:
		v = r.dstAddrLow
	case offSrcAddrLow:
		v = r.srcAddrLow
	case offLength:
		v = r.length
	case offDstStride2:
		v = r.dstStride2
	case offSrcStride2:
		v = r.srcStride2
	case offReps2:
		v = r.reps2
	case offDstStride3:
		v = r.dstStride3
	case offSrcStride3:
		v = r.srcStride3
	case offReps3:
		v = r.reps3
	default:
		return ioreq.StatusInvalid
	}
	encodeWord(req.Data, v)
	return ioreq.StatusOK
}

// latchTransfer implements the next_id side effect: capture the
// current registers into a new descriptor, assign an incrementing id,
// and attempt to enqueue it with the middle-end.
func (r *RegisterMapped) latchTransfer(req *ioreq.IoRequest) ioreq.Status {
	t := &backend.Transfer{
		Src:       uint64(r.srcAddrLow),
		Dst:       uint64(r.dstAddrLow),
		Size:      uint64(r.length),
		SrcStride: uint64(r.srcStride2),
		DstStride: uint64(r.dstStride2),
		Reps:      uint64(r.reps2),
		Config:    r.config,
		ID:        r.nextID + 1,
	}
	if !r.me.EnqueueTransfer(r.eng, t) {
		r.status |= 1 // aggregated outstanding bit stays set
		return ioreq.StatusDenied
	}
	r.nextID = t.ID
	r.status |= 1
	encodeWord(req.Data, uint32(t.ID))
	return ioreq.StatusOK
}

// AckParent implements middleend.FrontEnd: a completed transfer bumps
// done_id and, if bound, asserts the IRQ line (spec.md §4.7).
func (r *RegisterMapped) AckParent(t *backend.Transfer) {
	r.doneID = t.ID
	r.status &^= 1
	if r.irq != nil {
		r.irq.Assert()
	}
}

func decodeWord(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
}

func encodeWord(data []byte, v uint32) {
	if len(data) < 4 {
		return
	}
	data[0] = byte(v)
	data[1] = byte(v >> 8)
	data[2] = byte(v >> 16)
	data[3] = byte(v >> 24)
}
