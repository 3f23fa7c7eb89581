package engine

// ResetPolicy controls what a Register becomes when its owning
// component is reset, per spec.md §3 ("Signals and registers") and
// design note on reset semantics (spec.md §9).
type ResetPolicy int

const (
	// ResetHold keeps the register's current value across reset.
	ResetHold ResetPolicy = iota
	// ResetConstant resets the register to a fixed constant.
	ResetConstant
	// ResetHighZ resets the register to zero and marks it undriven;
	// Valid() reports false until the next write.
	ResetHighZ
)

// Register is a scalar cell with reset semantics, owned by exactly one
// component (spec.md §3: "only that component mutates it"). It mirrors
// the bitfield registers of PIC's imr/irr/isr and PIT's counters,
// generalized with an explicit reset policy instead of being
// special-cased ad hoc in each device's NewXxxDevice constructor.
type Register struct {
	Name     string
	policy   ResetPolicy
	resetVal uint64
	value    uint64
	valid    bool
}

// NewRegister creates a register with the given reset policy and the
// constant it resets to (ignored for ResetHold/ResetHighZ).
func NewRegister(name string, policy ResetPolicy, resetVal uint64) *Register {
	r := &Register{Name: name, policy: policy, resetVal: resetVal}
	r.Reset()
	return r
}

// Reset applies the register's policy.
func (r *Register) Reset() {
	switch r.policy {
	case ResetConstant:
		r.value = r.resetVal
		r.valid = true
	case ResetHighZ:
		r.value = 0
		r.valid = false
	case ResetHold:
		r.valid = true
	}
}

// Get returns the current value.
func (r *Register) Get() uint64 { return r.value }

// Set writes a new value and marks the register valid.
func (r *Register) Set(v uint64) {
	r.value = v
	r.valid = true
}

// Valid reports whether the register currently holds a driven value
// (always true except immediately after a ResetHighZ reset, before the
// first write).
func (r *Register) Valid() bool { return r.valid }

// Signal is a Register that additionally participates in waveform
// tracing. Trace emission itself (VCD output) is part of the excluded
// top-level component framework (spec.md §1); Signal only carries the
// bookkeeping (a monotonic version counter) that a trace subsystem
// would hook into.
type Signal struct {
	Register
	version uint64
}

// NewSignal creates a traced register.
func NewSignal(name string, policy ResetPolicy, resetVal uint64) *Signal {
	return &Signal{Register: *NewRegister(name, policy, resetVal)}
}

// Set writes a new value and bumps the trace version if the value
// actually changed, matching how a VCD writer only emits a transition
// on change.
func (s *Signal) Set(v uint64) {
	if !s.valid || s.value != v {
		s.version++
	}
	s.Register.Set(v)
}

// Version returns the number of observed transitions since creation;
// Reset does not clear it.
func (s *Signal) Version() uint64 { return s.version }
