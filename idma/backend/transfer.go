// Package backend implements the iDMA back-end core of spec.md §4.4:
// it turns a stream of transfer descriptors into per-burst read/write
// commands against one of two back-end protocols (AXI-style remote,
// or local scratchpad), picked by address range, while preserving
// source-side write ordering.
package backend

import "fmt"

// Transfer is the front-end-to-back-end descriptor (spec.md §3,
// IdmaTransfer). Middle-end-owned accounting fields (NbBursts,
// BurstsSent, AckSize, Parent) are mutated only by the middle-end and
// the back-end core, per the leg that owns them.
type Transfer struct {
	ID  uint64
	Src uint64
	Dst uint64
	// Size is the remaining byte count still to be split into bursts;
	// it is decremented as the core admits bursts (spec.md §4.4 step 1).
	Size uint64

	SrcStride uint64
	DstStride uint64
	Reps      uint64
	Config    uint32

	NbBursts   uint64
	BurstsSent bool
	AckSize    uint64

	Parent *Transfer
}

const (
	// ConfigBit2D is bit 1 of the IdmaTransfer config bitfield.
	ConfigBit2D uint32 = 1 << 1
	// ConfigBitQuant is bit 4 (streamout/quantization).
	ConfigBitQuant uint32 = 1 << 4
)

// Is2D reports whether the 2D-enable bit is set.
func (t *Transfer) Is2D() bool { return t.Config&ConfigBit2D != 0 }

// AckBurst records that one burst has completed, decrementing
// AckSize. Per spec.md §4.4, AckSize must never go negative; doing so
// is a protocol violation and fatal.
func (t *Transfer) AckBurst(n uint64) {
	if n > t.AckSize {
		panic(fmt.Sprintf("backend: transfer %d ack_size underflow: acked %d, had %d", t.ID, n, t.AckSize))
	}
	t.AckSize -= n
}

// Done reports whether every burst of this transfer has been sent and
// acknowledged (spec.md §3: "a parent is acknowledged... iff
// bursts_sent && nb_bursts == 0", generalized here to the leaf
// transfer's own accounting).
func (t *Transfer) Done() bool { return t.Size == 0 && t.AckSize == 0 }
