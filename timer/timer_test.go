package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/meshcore/engine"
)

type recordingIRQ struct {
	e   *engine.Engine
	hit []uint64
}

func (r *recordingIRQ) Assert() { r.hit = append(r.hit, r.e.Now()) }

func TestCascadedTimerHitsCompareAtOneMillionCycles(t *testing.T) {
	e := engine.New(nil)
	irq := &recordingIRQ{e: e}
	tm := New(e, irq, nil, nil)
	tm.SetCascade(e, true)

	tm.Lo.Configure(e, CounterConfig{Enable: true, IRQEnable: true})
	tm.Lo.SetCompare(e, 1_000_000)

	e.RunUntilIdle(2_000_000)

	require.Len(t, irq.hit, 1)
	assert.Equal(t, uint64(1_000_000), irq.hit[0])
}

func TestOneShotDisablesCounterAfterMatch(t *testing.T) {
	e := engine.New(nil)
	irq := &recordingIRQ{e: e}
	tm := New(e, irq, nil, nil)

	tm.Lo.Configure(e, CounterConfig{Enable: true, IRQEnable: true, OneShot: true, CompareClear: true})
	tm.Lo.SetCompare(e, 100)

	e.RunUntilIdle(1000)

	require.Len(t, irq.hit, 1)
	assert.False(t, tm.Lo.cfg.Enable)
	assert.Equal(t, uint64(0), tm.Lo.value)
}

func TestCompareClearResetsValueWithoutDisabling(t *testing.T) {
	e := engine.New(nil)
	irq := &recordingIRQ{e: e}
	tm := New(e, irq, nil, nil)
	tm.Lo.Configure(e, CounterConfig{Enable: true, IRQEnable: true, CompareClear: true})
	tm.Lo.SetCompare(e, 50)

	e.Run(2000)

	assert.GreaterOrEqual(t, len(irq.hit), 2, "repeatedly matching and clearing fires the IRQ more than once")
	assert.True(t, tm.Lo.cfg.Enable)
}

func TestPrescalerSlowsCounterAdvance(t *testing.T) {
	e := engine.New(nil)
	irq := &recordingIRQ{e: e}
	tm := New(e, irq, nil, nil)
	tm.Lo.Configure(e, CounterConfig{Enable: true, IRQEnable: true, PrescalerEnable: true, PrescalerValue: 4})
	tm.Lo.SetCompare(e, 10)

	e.RunUntilIdle(1000)

	require.Len(t, irq.hit, 1)
	assert.Equal(t, uint64(40), irq.hit[0], "10 counts at prescaler/4 land at sim-cycle 40")
}

func TestRefClockSourcedCounterIgnoresSimClock(t *testing.T) {
	e := engine.New(nil)
	irq := &recordingIRQ{e: e}
	tm := New(e, irq, nil, nil)
	tm.Lo.Configure(e, CounterConfig{Enable: true, IRQEnable: true, RefClock: true})
	tm.Lo.SetCompare(e, 3)

	e.Run(1000) // advance the sim clock with no ref edges delivered
	assert.Empty(t, irq.hit)

	for i := 0; i < 3; i++ {
		tm.Lo.OnRefEdge(e)
	}
	assert.Len(t, irq.hit, 1)
}
