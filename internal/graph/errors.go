package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/avi3tal/agentflow/internal/state"
)

var (
	// ErrUnknownNodeType is returned by the compiler for a node type with
	// no registered factory. This is a config defect, not a data-validation
	// issue: the validator covers data problems before compilation.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrMaxStepsExceeded is returned when a run exhausts its invocation
	// budget, usually a sign of an unintended loop.
	ErrMaxStepsExceeded = errors.New("maximum step budget exceeded")
)

// StepError reports one step's domain logic failing. The engine wraps every
// step failure in this type before aborting the run.
type StepError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExecutionError is an engine-level failure. Partial holds the accumulated
// state exactly as of the last successful merge; the failing step's own
// delta is never included.
type ExecutionError struct {
	ExecutionID string
	NodeID      string
	Partial     state.State
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("execution %s failed at node %q: %v", e.ExecutionID, e.NodeID, e.Err)
	}
	return fmt.Sprintf("execution %s failed: %v", e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a run exceeding its budget. Cancellation of the
// in-flight step is best-effort: the context reaches the step, but an
// opaque blocking call cannot be force-interrupted. Partial carries the
// same last-successful-merge contract as ExecutionError.
type TimeoutError struct {
	ExecutionID string
	Timeout     time.Duration
	Partial     state.State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution %s timed out after %s", e.ExecutionID, e.Timeout)
}

// PartialState extracts the partial state carried by an execution failure,
// if any. Convenient for callers surfacing progress alongside the error.
func PartialState(err error) (state.State, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Partial, true
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Partial, true
	}
	return nil, false
}
