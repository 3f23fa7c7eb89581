package frontend

import (
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
)

// TwoChannel implements the two-channel iDMA wrapper of spec.md §6: a
// thin dispatcher in front of two independent front-end instances
// sharing one register window. Bit directionBit of the address selects
// which channel a request targets — clear for L2->L1, set for L1->L2 —
// and each channel owns its own register file, middle-end, and
// back-end pipeline beneath it; only the address decode is shared.
type TwoChannel struct {
	L2toL1 port.Target
	L1toL2 port.Target
}

// NewTwoChannel wraps two already-constructed front-ends as the two
// directions of one register-addressed iDMA wrapper.
func NewTwoChannel(l2toL1, l1toL2 port.Target) *TwoChannel {
	return &TwoChannel{L2toL1: l2toL1, L1toL2: l1toL2}
}

// Req implements port.Target: dispatch on directionBit. The selected
// channel's own RegisterMapped.Req masks the bit back out of the
// offset, so it is not stripped here.
func (t *TwoChannel) Req(req *ioreq.IoRequest) ioreq.Status {
	if req.Address&directionBit != 0 {
		return t.L1toL2.Req(req)
	}
	return t.L2toL1.Req(req)
}
