package types

import (
	"context"

	"github.com/avi3tal/agentflow/internal/state"
)

// Step is the contract every node implementation satisfies. It receives a
// read-only snapshot of the accumulated state and returns a delta holding
// only the fields it changed. Steps must not mutate the snapshot; any I/O
// they perform is opaque to the engine.
type Step interface {
	Execute(ctx context.Context, snapshot state.State) (state.Delta, error)
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(ctx context.Context, snapshot state.State) (state.Delta, error)

func (f StepFunc) Execute(ctx context.Context, snapshot state.State) (state.Delta, error) {
	return f(ctx, snapshot)
}

// StepFactory produces a Step bound to one node's id and static config.
// Factories validate their config at compile time, not at runtime.
type StepFactory func(nodeID string, config map[string]any) (Step, error)
