// Package timer implements the programmable timer block of spec.md
// §4.8: two 32-bit counters, optionally cascaded into 64-bit mode,
// each independently configurable for compare-clear, one-shot,
// prescaling, and a simulation-clock or external reference-clock
// source.
package timer

import (
	"github.com/sirupsen/logrus"

	"example.com/meshcore/engine"
)

// IRQLine receives a level-sensitive assertion when a counter's
// compare value is matched and IRQ is enabled.
type IRQLine interface {
	Assert()
}

// CounterConfig mirrors the single configuration register spec.md
// §4.8 describes per counter.
type CounterConfig struct {
	Enable          bool
	IRQEnable       bool
	CompareClear    bool // clear the counter to 0 on compare match
	OneShot         bool // disable the counter on compare match
	PrescalerEnable bool
	PrescalerValue  uint64
	// RefClock selects the external reference-clock wire as the
	// counting source instead of the simulation clock; the prescaler
	// then counts reference edges rather than cycles.
	RefClock bool
}

// Counter is one 32-bit lane. Its value is kept lazily in sync with
// the simulation clock: reads/writes call sync() first rather than
// this package scheduling a per-cycle decrement event, matching
// spec.md §4.8's "sync-on-access lazy update".
//
// Grounded on devices/pit.go's counter-register pair
// (reload/value/mode), generalized from an 8-bit I/O port interface to
// a cycle-driven counter with an absolute compare target instead of a
// countdown-to-zero.
type Counter struct {
	cfg     CounterConfig
	value   uint64
	compare uint64

	lastSyncCycle uint64
	prescaleAcc   uint64

	// onWrap, if set, fires whenever this counter is cleared by a
	// compare match (cascade fan-out into the next lane up).
	onWrap wrapHook

	irq  IRQLine
	wake *engine.ClockEvent
}

// wrapHook is invoked when a counter wraps on compare-clear.
type wrapHook func(e *engine.Engine)

// Timer holds both counter lanes and the cascade bit.
type Timer struct {
	log *logrus.Entry
	eng *engine.Engine

	Lo, Hi  *Counter
	cascade bool
}

// New creates a Timer with both lanes disabled. irqLo/irqHi may each
// be nil.
func New(eng *engine.Engine, irqLo, irqHi IRQLine, log *logrus.Entry) *Timer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "timer")
	t := &Timer{log: log, eng: eng}
	t.Lo = newCounter(eng, irqLo)
	t.Hi = newCounter(eng, irqHi)
	return t
}

func newCounter(eng *engine.Engine, irq IRQLine) *Counter {
	c := &Counter{irq: irq}
	c.wake = engine.NewEvent("timer.compare", c, func(e *engine.Engine) { c.onCompareDue(e) })
	return c
}

// SetCascade enables/disables 64-bit cascaded mode: Hi advances one
// tick every time Lo wraps past its compare value while Lo's
// compare-clear is set (spec.md §4.8: "two 32-bit counters optionally
// cascaded into 64-bit mode").
func (t *Timer) SetCascade(e *engine.Engine, on bool) {
	t.cascade = on
	if on {
		t.Lo.onWrap = func(e *engine.Engine) { t.Hi.advance(e, 1) }
	} else {
		t.Lo.onWrap = nil
	}
}

// Configure sets the configuration register of one lane and
// reschedules its compare-due wake.
func (c *Counter) Configure(e *engine.Engine, cfg CounterConfig) {
	c.sync(e)
	c.cfg = cfg
	c.prescaleAcc = 0
	c.reschedule(e)
}

// SetCompare sets the compare target and reschedules.
func (c *Counter) SetCompare(e *engine.Engine, v uint64) {
	c.sync(e)
	c.compare = v
	c.reschedule(e)
}

// Value returns the up-to-date counter value.
func (c *Counter) Value(e *engine.Engine) uint64 {
	c.sync(e)
	return c.value
}

// OnRefEdge is called once per rising edge observed on the external
// reference-clock wire, for lanes configured with RefClock (spec.md
// §4.8: "driven... by an external reference-clock wire's rising edge,
// in which case the prescaler counts reference edges").
func (c *Counter) OnRefEdge(e *engine.Engine) {
	if !c.cfg.Enable || !c.cfg.RefClock {
		return
	}
	c.advance(e, 1)
}

// sync folds elapsed simulation cycles into value for clock-sourced
// counters; reference-clock-sourced counters only advance via
// OnRefEdge and are a no-op here.
func (c *Counter) sync(e *engine.Engine) {
	if !c.cfg.Enable || c.cfg.RefClock {
		c.lastSyncCycle = e.Now()
		return
	}
	elapsed := e.Now() - c.lastSyncCycle
	c.lastSyncCycle = e.Now()
	if elapsed > 0 {
		c.advance(e, elapsed)
	}
}

func (c *Counter) advance(e *engine.Engine, n uint64) {
	if !c.cfg.Enable {
		return
	}
	step := n
	if c.cfg.PrescalerEnable && c.cfg.PrescalerValue > 0 {
		c.prescaleAcc += n
		step = c.prescaleAcc / c.cfg.PrescalerValue
		c.prescaleAcc %= c.cfg.PrescalerValue
		if step == 0 {
			return
		}
	}
	c.value += step
	if c.value >= c.compare {
		c.onMatch(e)
	}
}

func (c *Counter) onMatch(e *engine.Engine) {
	if c.cfg.IRQEnable && c.irq != nil {
		c.irq.Assert()
	}
	if c.cfg.CompareClear {
		c.value = 0
		if c.onWrap != nil {
			c.onWrap(e)
		}
	}
	if c.cfg.OneShot {
		c.cfg.Enable = false
	}
}

func (c *Counter) reschedule(e *engine.Engine) {
	e.Cancel(c.wake)
	if !c.cfg.Enable || c.cfg.RefClock || c.value >= c.compare {
		return
	}
	remaining := c.compare - c.value
	if c.cfg.PrescalerEnable && c.cfg.PrescalerValue > 0 {
		remaining = remaining*c.cfg.PrescalerValue - c.prescaleAcc
	}
	e.Enqueue(c.wake, remaining)
}

// onCompareDue re-syncs (which folds in elapsed cycles and fires
// onMatch via advance) when the scheduled compare-due wake arrives.
func (c *Counter) onCompareDue(e *engine.Engine) {
	c.sync(e)
	c.reschedule(e)
}
