package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineOrdersByCycleThenFIFO(t *testing.T) {
	e := New(nil)
	var order []string

	later := NewEvent("later", nil, func(e *Engine) { order = append(order, "later") })
	first := NewEvent("first", nil, func(e *Engine) { order = append(order, "first") })
	second := NewEvent("second", nil, func(e *Engine) { order = append(order, "second") })

	e.Enqueue(later, 5)
	e.Enqueue(first, 1)
	e.Enqueue(second, 1)

	e.Run(2)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.EqualValues(t, 1, e.Now())

	e.Run(10)
	assert.Equal(t, []string{"first", "second", "later"}, order)
	assert.EqualValues(t, 5, e.Now())
}

func TestEnqueueIsNoOpIfAlreadyScheduledEarlier(t *testing.T) {
	e := New(nil)
	calls := 0
	ev := NewEvent("ev", nil, func(e *Engine) { calls++ })

	e.Enqueue(ev, 10)
	e.Enqueue(ev, 20) // later request must not push the cycle back
	require.True(t, ev.Scheduled())

	e.Run(100)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 10, e.Now())
}

func TestEnqueueEarliestOfWins(t *testing.T) {
	e := New(nil)
	var fired uint64
	ev := NewEvent("ev", nil, func(e *Engine) { fired = e.Now() })

	e.Enqueue(ev, 20)
	e.Enqueue(ev, 5) // earlier request must win
	e.Run(100)

	assert.EqualValues(t, 5, fired)
}

func TestCancelRemovesPendingEvent(t *testing.T) {
	e := New(nil)
	calls := 0
	ev := NewEvent("ev", nil, func(e *Engine) { calls++ })
	e.Enqueue(ev, 1)
	e.Cancel(ev)
	assert.False(t, ev.Scheduled())
	e.Run(100)
	assert.Equal(t, 0, calls)
}

func TestRunUntilIdlePanicsOnRunaway(t *testing.T) {
	e := New(nil)
	var ev *ClockEvent
	ev = NewEvent("self-requeue", nil, func(e *Engine) {
		e.Enqueue(ev, 1)
	})
	e.Enqueue(ev, 1)

	assert.Panics(t, func() {
		e.RunUntilIdle(5)
	})
}
