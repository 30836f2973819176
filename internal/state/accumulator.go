package state

import "sync"

// Accumulator is the single merge point for one run. Concurrently completing
// branches apply their deltas here; the mutex serializes merges while the
// reducer discipline keeps the outcome independent of arrival order.
type Accumulator struct {
	mu     sync.Mutex
	schema Schema
	st     State
}

func NewAccumulator(schema Schema, initial State) *Accumulator {
	return &Accumulator{schema: schema, st: initial.Clone()}
}

// Apply merges a delta into the accumulated state. The delta is validated
// against the schema; on error the accumulated state is left untouched.
func (a *Accumulator) Apply(delta Delta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	merged, err := Merge(a.schema, a.st, delta)
	if err != nil {
		return err
	}
	a.st = merged
	return nil
}

// Snapshot returns a copy of the accumulated state safe to hand to a step.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.Clone()
}
