package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
)

// recordingSink counts deliveries and always returns OK.
type recordingSink struct {
	delivered []*ioreq.IoRequest
	status    ioreq.Status
}

func (s *recordingSink) HandleRequest(e *engine.Engine, req *ioreq.IoRequest, fromX, fromY, fromZ int) bool {
	return false
}
func (s *recordingSink) UnstallQueue(e *engine.Engine, fromX, fromY, fromZ int) {}
func (s *recordingSink) StallQueue(fromX, fromY, fromZ int)                    {}
func (s *recordingSink) Grant(e *engine.Engine, req *ioreq.IoRequest)          {}
func (s *recordingSink) ReqFromRouter(e *engine.Engine, req *ioreq.IoRequest) ioreq.Status {
	s.delivered = append(s.delivered, req)
	if s.status == ioreq.StatusNone {
		return ioreq.StatusOK
	}
	return s.status
}

func reqTo(x, y, z int) *ioreq.IoRequest {
	r := ioreq.New()
	r.SetScratch(ioreq.SlotDestX, uint64(x))
	r.SetScratch(ioreq.SlotDestY, uint64(y))
	r.SetScratch(ioreq.SlotDestZ, uint64(z))
	return r
}

func TestSingleHopDeliversToLocal(t *testing.T) {
	e := engine.New(nil)
	r := New(Config{X: 0, Y: 0, QueueSize: 4}, nil)
	sink := &recordingSink{}
	r.ConnectLocal(sink)

	req := reqTo(0, 0, 0)
	full := r.HandleRequest(e, req, 0, 0, 0) // injected by "self" (NI at same coords)
	require.False(t, full)

	e.Run(10)
	require.Len(t, sink.delivered, 1)
	assert.Same(t, req, sink.delivered[0])
}

func TestXYRoutingReducesXFirst(t *testing.T) {
	e := engine.New(nil)
	origin := New(Config{X: 0, Y: 0, QueueSize: 4}, nil)
	right := New(Config{X: 1, Y: 0, QueueSize: 4}, nil)
	origin.Connect(Right, right)
	right.Connect(Left, origin)

	sink := &recordingSink{}
	origin.ConnectLocal(&recordingSink{})
	right.ConnectLocal(sink)

	req := reqTo(1, 0, 0)
	origin.HandleRequest(e, req, 0, 0, 0)

	e.Run(10)
	require.Len(t, sink.delivered, 1)
}

func TestInputQueueOverflowIsFatal(t *testing.T) {
	e := engine.New(nil)
	r := New(Config{X: 0, Y: 0, QueueSize: 1}, nil)
	sink := &recordingSink{status: ioreq.StatusDenied}
	r.ConnectLocal(sink)

	// Stall local output immediately so the input queue backs up.
	r.StallQueue(0, 0, 0)

	assert.Panics(t, func() {
		for i := 0; i < 5; i++ {
			r.HandleRequest(e, reqTo(0, 0, 0), 0, 0, 0)
		}
	})
}

func TestHandleRequestSignalsFullAtCeiling(t *testing.T) {
	e := engine.New(nil)
	r := New(Config{X: 0, Y: 0, QueueSize: 1}, nil)
	r.StallQueue(0, 0, 0)

	full1 := r.HandleRequest(e, reqTo(0, 0, 0), 0, 0, 0)
	assert.False(t, full1)
	full2 := r.HandleRequest(e, reqTo(0, 0, 0), 0, 0, 0)
	assert.True(t, full2, "queue now exceeds queue_size, predecessor must stall")
}

func TestDeniedLocalDeliveryStallsUntilGrant(t *testing.T) {
	e := engine.New(nil)
	r := New(Config{X: 0, Y: 0, QueueSize: 4}, nil)
	sink := &recordingSink{status: ioreq.StatusDenied}
	r.ConnectLocal(sink)

	req := reqTo(0, 0, 0)
	r.HandleRequest(e, req, 0, 0, 0)
	e.Run(10)

	require.Len(t, sink.delivered, 1, "the denied request is still delivered once for the target to observe")

	// Nothing else should be delivered while stalled, even with a second
	// request queued behind it.
	req2 := reqTo(0, 0, 0)
	r.HandleRequest(e, req2, 0, 0, 0)
	e.Run(20)
	assert.Len(t, sink.delivered, 1, "stalled output must not advance past the denied head")

	sink.status = ioreq.StatusOK
	r.Grant(e, req)
	e.Run(30)
	assert.Len(t, sink.delivered, 3, "grant retries the denied head, then the second request follows")
}

func TestRoundRobinDeliversEveryInput(t *testing.T) {
	// Property 5 (spec.md §8): with every input non-empty and all
	// outputs free, each input is arbitrated at least once within
	// num_directions cycles.
	e := engine.New(nil)
	origin := New(Config{X: 1, Y: 1, QueueSize: 8}, nil)
	left := New(Config{X: 0, Y: 1, QueueSize: 8}, nil)
	right := New(Config{X: 2, Y: 1, QueueSize: 8}, nil)
	up := New(Config{X: 1, Y: 2, QueueSize: 8}, nil)
	down := New(Config{X: 1, Y: 0, QueueSize: 8}, nil)
	origin.Connect(Left, left)
	origin.Connect(Right, right)
	origin.Connect(Up, up)
	origin.Connect(Down, down)

	sink := &recordingSink{}
	origin.ConnectLocal(sink)

	origin.HandleRequest(e, reqTo(1, 1, 0), 0, 1, 0)
	origin.HandleRequest(e, reqTo(1, 1, 0), 2, 1, 0)
	origin.HandleRequest(e, reqTo(1, 1, 0), 1, 2, 0)
	origin.HandleRequest(e, reqTo(1, 1, 0), 1, 0, 0)

	e.Run(20)
	assert.Len(t, sink.delivered, 4, "all four inputs destined locally must each be serviced")
}
