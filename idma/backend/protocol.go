package backend

import "example.com/meshcore/engine"

// DataHandler receives a data chunk moving through the back-end: the
// source protocol delivers bytes read from its side, and the same
// signature acknowledges bytes written on the destination side
// (spec.md §4.4's write_data / ack_data pair share one shape).
type DataHandler func(e *engine.Engine, data []byte)

// Protocol is one of the two back-end transports (AXI-style remote,
// or local scratchpad) described in spec.md §4.5. The back-end core
// holds one Protocol instance per (address-range, direction) combination
// and mediates data between a source and a destination Protocol; the
// protocols never reference each other directly.
type Protocol interface {
	// CanAcceptBurst reports whether the protocol has a free slot to
	// admit another burst right now.
	CanAcceptBurst() bool
	// BurstSize returns the largest legal burst size starting at base,
	// capped by size and by whatever alignment/page rule the protocol
	// enforces (spec.md §4.4, "burst legalization").
	BurstSize(base, size uint64) uint64
	// ReadBurst issues a burst of size bytes starting at base on behalf
	// of t. As data becomes available it is delivered via the core's
	// registered onData handler, once per chunk, until size bytes have
	// been delivered.
	ReadBurst(e *engine.Engine, t *Transfer, base, size uint64)
	// WriteBurst issues a burst of size bytes starting at base on
	// behalf of t. The back-end core later calls WriteData to push
	// chunks for it.
	WriteBurst(e *engine.Engine, t *Transfer, base, size uint64)
	// IsReadyToAcceptData reports whether the protocol can currently
	// accept a chunk via WriteData.
	IsReadyToAcceptData() bool
	// WriteData pushes a chunk of write data into the head burst.
	WriteData(e *engine.Engine, data []byte)
	// Update re-wakes the protocol's internal FSM, used by the core
	// after an external event the protocol itself could not observe.
	Update(e *engine.Engine)
}

// Callbacks is how the back-end core wires itself into a Protocol
// instance: OnData fires once per chunk read, OnAck fires once per
// chunk (or burst) the destination protocol has durably written.
type Callbacks struct {
	OnData DataHandler
	OnAck  DataHandler
}
