package backend

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
)

// ScratchpadConfig configures one Scratchpad protocol instance.
type ScratchpadConfig struct {
	Width          uint64 // bus width in bytes; bursts split into lines of this size
	BurstQueueSize int
	Memory         port.Target
}

type lineBurst struct {
	base, remaining uint64
}

// writeJob is one WriteData chunk in flight, drained one line per
// cycle against the head write burst descriptor.
type writeJob struct {
	data   []byte
	offset uint64
}

// Scratchpad implements Protocol against a local memory of fixed bus
// width (spec.md §4.5.2): unbounded burst size, but every burst is
// split into width-sized (or boundary-limited) lines, one issued per
// cycle; asynchronous replies are not permitted at this layer. Reads
// and writes are independent queues — a pending read never blocks
// IsReadyToAcceptData for a concurrently outstanding write, and vice
// versa, since the real bus keeps separate channels for each.
//
// Grounded on devices/serial.go's line-at-a-time FIFO
// drain (one byte/line per cycle against a fixed-width register),
// generalized from 1 byte to a configurable bus width.
type Scratchpad struct {
	cfg ScratchpadConfig
	log *logrus.Entry
	cb  Callbacks

	reads         []*lineBurst
	writes        []*lineBurst
	pendingWrites []*writeJob

	readWake  *engine.ClockEvent
	writeWake *engine.ClockEvent
}

// NewScratchpad creates a Scratchpad protocol instance bound to cb.
func NewScratchpad(cfg ScratchpadConfig, cb Callbacks, log *logrus.Entry) *Scratchpad {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Scratchpad{
		cfg: cfg,
		log: log.WithField("component", "idma.scratchpad"),
		cb:  cb,
	}
	s.readWake = engine.NewEvent("idma.scratchpad.read_tick", s, func(e *engine.Engine) { s.tickRead(e) })
	s.writeWake = engine.NewEvent("idma.scratchpad.write_tick", s, func(e *engine.Engine) { s.tickWrite(e) })
	return s
}

// CanAcceptBurst implements Protocol: the read and write queues share
// one capacity ceiling, matching the single `burst_queue_maxsize`
// spec.md §4.5.2 names.
func (s *Scratchpad) CanAcceptBurst() bool {
	return len(s.reads)+len(s.writes) < s.cfg.BurstQueueSize
}

// BurstSize implements Protocol: no cap (line splitting happens later).
func (s *Scratchpad) BurstSize(base, size uint64) uint64 { return size }

// ReadBurst implements Protocol. The scratchpad is always local to its
// own core, which already tracks the owning transfer directly, so t is
// unused here; it exists on the interface for the AXI protocol's
// ack-path resolution (spec.md §9, design note iv).
func (s *Scratchpad) ReadBurst(e *engine.Engine, t *Transfer, base, size uint64) {
	if !s.CanAcceptBurst() {
		panic(engine.InvariantError{Msg: "idma.scratchpad: ReadBurst called at capacity"})
	}
	s.reads = append(s.reads, &lineBurst{base: base, remaining: size})
	e.Enqueue(s.readWake, 0)
}

// WriteBurst implements Protocol. Nothing is driven off this call
// directly; ticking starts once WriteData delivers a chunk against the
// new descriptor.
func (s *Scratchpad) WriteBurst(e *engine.Engine, t *Transfer, base, size uint64) {
	if !s.CanAcceptBurst() {
		panic(engine.InvariantError{Msg: "idma.scratchpad: WriteBurst called at capacity"})
	}
	s.writes = append(s.writes, &lineBurst{base: base, remaining: size})
}

// IsReadyToAcceptData implements Protocol.
func (s *Scratchpad) IsReadyToAcceptData() bool { return len(s.writes) > 0 }

// WriteData implements Protocol: queue the chunk for draining one line
// per cycle against the head write burst, matching the read side's
// pacing. s.cb.OnAck fires once the whole chunk has been written.
func (s *Scratchpad) WriteData(e *engine.Engine, data []byte) {
	if !s.IsReadyToAcceptData() {
		panic(engine.InvariantError{Msg: "idma.scratchpad: WriteData with no pending write burst"})
	}
	s.pendingWrites = append(s.pendingWrites, &writeJob{data: data})
	e.Enqueue(s.writeWake, 0)
}

// Update implements Protocol.
func (s *Scratchpad) Update(e *engine.Engine) {
	e.Enqueue(s.readWake, 0)
	e.Enqueue(s.writeWake, 0)
}

// lineSize computes min(width, remaining, next_line_boundary-base).
func (s *Scratchpad) lineSize(base, remaining uint64) uint64 {
	toBoundary := s.cfg.Width - (base % s.cfg.Width)
	n := remaining
	if n > s.cfg.Width {
		n = s.cfg.Width
	}
	if n > toBoundary {
		n = toBoundary
	}
	return n
}

// tickRead issues one read line per cycle against the local memory
// port (spec.md §4.5.2: "issues one line per cycle").
func (s *Scratchpad) tickRead(e *engine.Engine) {
	if len(s.reads) == 0 {
		return
	}
	head := s.reads[0]
	if head.remaining == 0 {
		s.reads = s.reads[1:]
		if len(s.reads) > 0 {
			e.Enqueue(s.readWake, 1)
		}
		return
	}
	line := s.lineSize(head.base, head.remaining)
	req := ioreq.New()
	req.Address = head.base
	req.Size = line
	req.Data = make([]byte, line)
	status := s.cfg.Memory.Req(req)
	if status == ioreq.StatusPending {
		panic(engine.InvariantError{Msg: "idma.scratchpad: asynchronous replies are not permitted"})
	}
	head.base += line
	head.remaining -= line
	s.cb.OnData(e, req.Data)
	e.Enqueue(s.readWake, 1)
}

// tickWrite issues one write line per cycle against the local memory
// port, draining the head of pendingWrites against the head write
// burst descriptor. s.cb.OnAck fires once a whole WriteData chunk has
// been fully written, independent of how many lines it took.
func (s *Scratchpad) tickWrite(e *engine.Engine) {
	if len(s.pendingWrites) == 0 {
		return
	}
	job := s.pendingWrites[0]
	head := s.writes[0]

	line := s.lineSize(head.base, head.remaining)
	if remaining := uint64(len(job.data)) - job.offset; line > remaining {
		line = remaining
	}
	req := ioreq.New()
	req.Address = head.base
	req.Size = line
	req.IsWrite = true
	req.Data = job.data[job.offset : job.offset+line]
	status := s.cfg.Memory.Req(req)
	if status == ioreq.StatusPending {
		panic(engine.InvariantError{Msg: "idma.scratchpad: asynchronous replies are not permitted"})
	}
	head.base += line
	head.remaining -= line
	job.offset += line

	if job.offset == uint64(len(job.data)) {
		s.pendingWrites = s.pendingWrites[1:]
		s.cb.OnAck(e, job.data)
	}
	if head.remaining == 0 {
		s.writes = s.writes[1:]
	}
	if len(s.pendingWrites) > 0 {
		e.Enqueue(s.writeWake, 1)
	}
}
