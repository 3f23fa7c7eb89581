package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/meshcore/engine"
	"example.com/meshcore/engine/ioreq"
)

func TestHeadNotVisibleUntilNextCycle(t *testing.T) {
	e := engine.New(nil)
	wakes := 0
	q := New("q", nil, func(e *engine.Engine) { wakes++ })

	req := ioreq.New()
	q.PushBack(e, req)

	assert.Equal(t, 1, q.Size(), "size counts pushed-but-not-yet-visible entries")
	assert.False(t, q.HeadVisible(e.Now()))

	e.Run(10)
	assert.Equal(t, 1, wakes)
	assert.True(t, q.HeadVisible(e.Now()))
	assert.Same(t, req, q.Head(e.Now()))
}

func TestPopFrontRequiresVisibility(t *testing.T) {
	e := engine.New(nil)
	q := New("q", nil, func(e *engine.Engine) {})
	q.PushBack(e, ioreq.New())

	assert.Panics(t, func() { q.Head(e.Now()) })

	e.Run(10)
	require.True(t, q.HeadVisible(e.Now()))
	popped := q.PopFront(e.Now())
	require.NotNil(t, popped)
	assert.Equal(t, 0, q.Size())
}

func TestFIFOOrdering(t *testing.T) {
	e := engine.New(nil)
	q := New("q", nil, func(e *engine.Engine) {})

	a, b, c := ioreq.New(), ioreq.New(), ioreq.New()
	a.Address, b.Address, c.Address = 1, 2, 3
	q.PushBack(e, a)
	q.PushBack(e, b)
	q.PushBack(e, c)

	e.Run(10)
	assert.EqualValues(t, 1, q.PopFront(e.Now()).Address)
	assert.EqualValues(t, 2, q.PopFront(e.Now()).Address)
	assert.EqualValues(t, 3, q.PopFront(e.Now()).Address)
}
