package middleend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/meshcore/engine"
	"example.com/meshcore/idma/backend"
)

type fakeBackend struct {
	enqueued []*backend.Transfer
}

func (f *fakeBackend) EnqueueTransfer(e *engine.Engine, t *backend.Transfer) {
	f.enqueued = append(f.enqueued, t)
}

type fakeFrontEnd struct {
	acked []*backend.Transfer
}

func (f *fakeFrontEnd) AckParent(t *backend.Transfer) {
	f.acked = append(f.acked, t)
}

func TestTwoDTransferSplitsIntoOneChildPerRep(t *testing.T) {
	e := engine.New(nil)
	be := &fakeBackend{}
	fe := &fakeFrontEnd{}
	m := New(4, be, fe, nil)

	parent := &backend.Transfer{
		ID: 1, Src: 0, Dst: 0x1000, Size: 64,
		SrcStride: 128, DstStride: 256, Reps: 3,
		Config: backend.ConfigBit2D,
	}
	ok := m.EnqueueTransfer(e, parent)
	require.True(t, ok)

	require.Len(t, be.enqueued, 3)
	assert.Equal(t, uint64(0), be.enqueued[0].Src)
	assert.Equal(t, uint64(128), be.enqueued[1].Src)
	assert.Equal(t, uint64(256), be.enqueued[2].Src)
	assert.Equal(t, uint64(0x1000), be.enqueued[0].Dst)
	assert.Equal(t, uint64(0x1000+256), be.enqueued[1].Dst)
	assert.False(t, be.enqueued[0].Is2D(), "children are plain 1D transfers")
	assert.True(t, parent.BurstsSent)
	assert.Equal(t, uint64(3), parent.NbBursts)
}

func TestParentAckedOnceAllChildrenAck(t *testing.T) {
	e := engine.New(nil)
	be := &fakeBackend{}
	fe := &fakeFrontEnd{}
	m := New(4, be, fe, nil)

	parent := &backend.Transfer{
		ID: 1, Src: 0, Dst: 0x1000, Size: 16, Reps: 2,
		Config: backend.ConfigBit2D,
	}
	m.EnqueueTransfer(e, parent)
	require.Len(t, be.enqueued, 2)

	m.AckTransfer(be.enqueued[0])
	assert.Empty(t, fe.acked, "must not ack parent until every child acks")

	m.AckTransfer(be.enqueued[1])
	require.Len(t, fe.acked, 1)
	assert.Same(t, parent, fe.acked[0])
}

func TestOneDTransferPassesThroughAsSingleChild(t *testing.T) {
	e := engine.New(nil)
	be := &fakeBackend{}
	fe := &fakeFrontEnd{}
	m := New(4, be, fe, nil)

	parent := &backend.Transfer{ID: 7, Src: 0, Dst: 0x2000, Size: 32}
	m.EnqueueTransfer(e, parent)
	require.Len(t, be.enqueued, 1)

	m.AckTransfer(be.enqueued[0])
	require.Len(t, fe.acked, 1)
}

func TestZeroSizeTransferAcksImmediately(t *testing.T) {
	e := engine.New(nil)
	be := &fakeBackend{}
	fe := &fakeFrontEnd{}
	m := New(4, be, fe, nil)

	parent := &backend.Transfer{ID: 9, Size: 0}
	m.EnqueueTransfer(e, parent)

	assert.Empty(t, be.enqueued)
	require.Len(t, fe.acked, 1)
}

func TestQueueRejectsBeyondCapacity(t *testing.T) {
	e := engine.New(nil)
	be := &fakeBackend{}
	fe := &fakeFrontEnd{}
	m := New(1, be, fe, nil)

	first := &backend.Transfer{ID: 1, Size: 16}
	second := &backend.Transfer{ID: 2, Size: 16}

	assert.True(t, m.EnqueueTransfer(e, first))
	assert.False(t, m.EnqueueTransfer(e, second), "queue is at capacity until the first transfer's child acks")

	m.AckTransfer(be.enqueued[0]) // drains the queue back to empty
	assert.True(t, m.EnqueueTransfer(e, second))
}
