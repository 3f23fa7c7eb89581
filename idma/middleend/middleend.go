// Package middleend implements the iDMA middle-end of spec.md §4.6: it
// decomposes a 2D transfer descriptor into a stream of 1D child
// transfers and tracks parent/child acknowledgment so the front-end
// sees one completion per parent, not per child.
package middleend

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
	"example.com/meshcore/idma/backend"
)

// Backend is the downward contract toward the back-end core.
type Backend interface {
	EnqueueTransfer(e *engine.Engine, t *backend.Transfer)
}

// FrontEnd is the upward contract: AckParent is called exactly once
// per parent transfer, when every child it was split into has been
// acknowledged by the back-end (spec.md §3: "a parent is acknowledged
// to the front-end iff bursts_sent && nb_bursts == 0").
type FrontEnd interface {
	AckParent(t *backend.Transfer)
}

// MiddleEnd holds a bounded queue of parent transfers (spec.md §4.6:
// "queue of up to transfer_queue_size parent transfers").
type MiddleEnd struct {
	queueSize int
	log       *logrus.Entry
	be        Backend
	fe        FrontEnd

	queue       []*backend.Transfer
	nextID      uint64
	childToParent map[*backend.Transfer]*backend.Transfer
}

// New creates a MiddleEnd bound to be (the back-end core it pushes
// child transfers into) and fe (the front-end it reports completions
// to).
func New(queueSize int, be Backend, fe FrontEnd, log *logrus.Entry) *MiddleEnd {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MiddleEnd{
		queueSize:     queueSize,
		log:           log.WithField("component", "idma.middleend"),
		be:            be,
		fe:            fe,
		childToParent: make(map[*backend.Transfer]*backend.Transfer),
	}
}

// Full reports whether the parent queue has reached queueSize.
func (m *MiddleEnd) Full() bool { return len(m.queue) >= m.queueSize }

// EnqueueTransfer admits parent (spec.md §4.6) and immediately splits
// it into its 1D children, pushing each into the back-end. A
// zero-size (or reps==0 2D) transfer completes immediately without
// enqueuing any burst (spec.md §8 property 10).
func (m *MiddleEnd) EnqueueTransfer(e *engine.Engine, parent *backend.Transfer) bool {
	if m.Full() {
		return false
	}
	m.queue = append(m.queue, parent)

	reps := uint64(1)
	if parent.Is2D() {
		reps = parent.Reps
	}

	if parent.Size == 0 || reps == 0 {
		parent.BurstsSent = true
		parent.NbBursts = 0
		m.ackParent(parent)
		return true
	}

	parent.NbBursts = reps
	src := parent.Src
	dst := parent.Dst
	for i := uint64(0); i < reps; i++ {
		child := &backend.Transfer{
			ID:      parent.ID,
			Src:     src,
			Dst:     dst,
			Size:    parent.Size,
			Config:  parent.Config &^ backend.ConfigBit2D,
			Parent:  parent,
		}
		m.childToParent[child] = parent
		m.be.EnqueueTransfer(e, child)
		src += parent.SrcStride
		dst += parent.DstStride
	}
	parent.BurstsSent = true
	return true
}

// AckTransfer implements backend.MiddleEnd: called once a child
// transfer's ack_size reaches zero.
func (m *MiddleEnd) AckTransfer(child *backend.Transfer) {
	parent := m.childToParent[child]
	if parent == nil {
		parent = child // a transfer this middle-end did not split has no recorded parent
	}
	delete(m.childToParent, child)
	if parent.NbBursts > 0 {
		parent.NbBursts--
	}
	if parent.BurstsSent && parent.NbBursts == 0 {
		m.ackParent(parent)
	}
}

// NotifyReady implements backend.MiddleEnd; the middle-end itself has
// no regulation queue of its own to drain on this signal (all of a
// parent's children are pushed to the back-end eagerly at admission),
// so this is a no-op hook kept to satisfy the interface.
func (m *MiddleEnd) NotifyReady() {}

func (m *MiddleEnd) ackParent(parent *backend.Transfer) {
	for i, t := range m.queue {
		if t == parent {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	m.fe.AckParent(parent)
}
