package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
	"example.com/meshcore/engine/port"
	"example.com/meshcore/noc/ni"
)

type capturingInitiator struct {
	resps []*ioreq.IoRequest
}

func (c *capturingInitiator) Resp(r *ioreq.IoRequest)  { c.resps = append(c.resps, r) }
func (c *capturingInitiator) Grant(r *ioreq.IoRequest) {}

func buildGrid(t *testing.T, dim int) (*engine.Engine, *Mesh) {
	t.Helper()
	e := engine.New(nil)

	entries := make([]ni.Entry, 0, dim*dim)
	targets := make(map[[3]int]port.Target, dim*dim)
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			base := uint64(x+y*dim) * 0x1000
			entries = append(entries, ni.Entry{Base: base, Size: 0x1000, X: x, Y: y, Z: 0})
			targets[[3]int{x, y, 0}] = &TargetPort{}
		}
	}
	mm := ni.NewMemoryMap(entries...)
	m := New(Config{DimX: dim, DimY: dim, QueueSize: 8, NocWidth: 8, OutstandingReqs: 4}, e, mm, targets, nil)
	return e, m
}

func TestCrossMeshDeliveryReachesFarCorner(t *testing.T) {
	e, m := buildGrid(t, 4)

	origin := m.NI(0, 0, 0)
	destBase := uint64(3+3*4) * 0x1000 // NI(3,3)'s range

	req := ioreq.New()
	req.Address = destBase
	req.Size = 32
	init := &capturingInitiator{}
	req.RespPort = init

	status := origin.Req(req)
	require.Equal(t, ioreq.StatusPending, status)

	e.RunUntilIdle(5000)

	require.Len(t, init.resps, 1)
	assert.NotEqual(t, ioreq.StatusInvalid, req.Status)
}

func TestUnmappedAddressPoisonsAcrossMesh(t *testing.T) {
	e, m := buildGrid(t, 2)
	origin := m.NI(0, 0, 0)

	req := ioreq.New()
	req.Address = 0xDEAD0000
	req.Size = 8
	init := &capturingInitiator{}
	req.RespPort = init

	origin.Req(req)
	e.RunUntilIdle(2000)

	require.Len(t, init.resps, 1)
	assert.Equal(t, ioreq.StatusInvalid, req.Status)
}
