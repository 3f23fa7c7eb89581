package fractalsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSlave struct {
	resps []Response
	dirs  []Direction
}

func (r *recordingSlave) Deliver(dir Direction, resp Response) {
	r.dirs = append(r.dirs, dir)
	r.resps = append(r.resps, resp)
}

type recordingMaster struct {
	forwarded []Request
	axes      []Axis
}

func (m *recordingMaster) Forward(axis Axis, req Request) {
	m.axes = append(m.axes, axis)
	m.forwarded = append(m.forwarded, req)
}

func TestLevelTwoFractalSyncBroadcastsWakeOnAllFourPorts(t *testing.T) {
	slaves := [4]Slave{&recordingSlave{}, &recordingSlave{}, &recordingSlave{}, &recordingSlave{}}
	ns := &recordingMaster{}
	ew := &recordingMaster{}
	node := New(1, ns, ew, slaves, nil)

	req := Request{Aggr: 0b11, IDReq: 42}
	node.Request(North, req)
	node.Request(East, req)
	node.Request(South, req)
	node.Request(West, req)

	for d, s := range slaves {
		rs := s.(*recordingSlave)
		require.Len(t, rs.resps, 1, "direction %d did not receive a response", d)
		assert.True(t, rs.resps[0].Wake)
		assert.False(t, rs.resps[0].Error)
	}
	assert.Empty(t, ns.forwarded, "level matched the top set bit: no upward forward expected")
	assert.Empty(t, ew.forwarded)
}

func TestRequestBelowNodeLevelPassesThroughWithoutAccumulating(t *testing.T) {
	slaves := [4]Slave{&recordingSlave{}, &recordingSlave{}, &recordingSlave{}, &recordingSlave{}}
	ns := &recordingMaster{}
	ew := &recordingMaster{}
	node := New(3, ns, ew, slaves, nil)

	req := Request{Aggr: 0b1, IDReq: 7} // bit 3 not set
	node.Request(North, req)

	require.Len(t, ns.forwarded, 1)
	assert.Equal(t, req, ns.forwarded[0])
	for _, s := range slaves {
		assert.Empty(t, s.(*recordingSlave).resps)
	}
}

func TestAxisCompletesAndForwardsUpwardWhenTopBitAboveLevel(t *testing.T) {
	slaves := [4]Slave{&recordingSlave{}, &recordingSlave{}, &recordingSlave{}, &recordingSlave{}}
	ns := &recordingMaster{}
	ew := &recordingMaster{}
	node := New(1, ns, ew, slaves, nil)

	req := Request{Aggr: 0b110, IDReq: 9} // top bit is 2, above this node's level 1
	node.Request(North, req)
	node.Request(South, req)

	require.Len(t, ew.forwarded, 1, "NS axis completion forwards upward on the orthogonal EW axis")
	assert.Equal(t, uint64(9), ew.forwarded[0].IDReq)
	for _, s := range slaves {
		assert.Empty(t, s.(*recordingSlave).resps)
	}
}

func TestSlaveWestDefectLatchesIntoEastDiagnosticSlot(t *testing.T) {
	slaves := [4]Slave{&recordingSlave{}, &recordingSlave{}, &recordingSlave{}, &recordingSlave{}}
	node := New(1, &recordingMaster{}, &recordingMaster{}, slaves, nil)

	node.Request(West, Request{Aggr: 0b11, IDReq: 5})

	_, westOK := node.PortAggr(West, 5)
	eastVal, eastOK := node.PortAggr(East, 5)
	assert.False(t, westOK, "the preserved defect means West's own arrival is never latched under West")
	require.True(t, eastOK)
	assert.Equal(t, uint32(0b11), eastVal)
}
