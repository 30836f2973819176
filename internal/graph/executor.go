package graph

import (
	"context"
	"time"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxSteps       = 100
	defaultMaxConcurrency = 4
)

type runConfig struct {
	timeout        time.Duration
	maxSteps       int
	maxConcurrency int
	executionID    string
}

// RunOption configures one execution.
type RunOption func(*runConfig)

// WithTimeout caps the whole run. On expiry the engine stops waiting for
// the in-flight step and returns a TimeoutError with partial state.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithMaxSteps caps the number of step invocations in one run.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		c.maxSteps = n
	}
}

// WithMaxConcurrency bounds the goroutines running fan-out branches.
func WithMaxConcurrency(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithExecutionID pins the execution id instead of generating one.
func WithExecutionID(id string) RunOption {
	return func(c *runConfig) {
		c.executionID = id
	}
}

// Result wraps a finished run.
type Result struct {
	ExecutionID string
	WorkflowID  string
	Status      types.ExecutionStatus
	State       state.State
	Duration    time.Duration
}

// stepOutcome is one step's completion, reported in physical completion
// order on the frontier's result channel.
type stepOutcome struct {
	id    string
	delta state.Delta
	err   error
}

// Run executes the workflow against an initial state. The run starts at the
// entry node and repeats: snapshot state, invoke the frontier's steps
// (concurrently when fanned out), merge each returned delta through the
// per-field reducers, record the step in the execution path, and resolve
// the dispatch table for the next frontier. It ends when the frontier
// empties, a step fails, the budget is exhausted, or the timeout fires.
// Failures carry the accumulated state exactly as of the last successful
// merge.
func (w *Workflow) Run(ctx context.Context, initial map[string]any, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		timeout:        defaultTimeout,
		maxSteps:       defaultMaxSteps,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.executionID == "" {
		cfg.executionID = registry.NewExecutionID()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	acc := state.NewAccumulator(w.schema, state.Initial(initial))
	w.reg.Begin(cfg.executionID, w.id)
	w.log.Info("execution started",
		"execution_id", cfg.executionID, "workflow_id", w.id, "entry", w.entry)

	started := time.Now()
	frontier := []string{w.entry}
	invocations := 0

	for len(frontier) > 0 {
		invocations += len(frontier)
		if invocations > cfg.maxSteps {
			return nil, w.fail(cfg, started, acc, "", ErrMaxStepsExceeded)
		}

		next, err := w.runFrontier(ctx, frontier, acc, cfg)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, w.timeout(cfg, started, acc)
			}
			nodeID := ""
			if stepErr, ok := err.(*StepError); ok {
				nodeID = stepErr.NodeID
			}
			return nil, w.fail(cfg, started, acc, nodeID, err)
		}
		frontier = next
	}

	duration := time.Since(started)
	_ = acc.Apply(state.Delta{
		state.KeyMetadata: map[string]any{
			"execution_id":      cfg.executionID,
			"execution_time_ms": duration.Milliseconds(),
		},
	})
	final := acc.Snapshot()

	w.reg.Complete(cfg.executionID, types.StatusSucceeded, duration, final.Int(state.KeyTokensUsed), nil)
	w.log.Info("execution completed",
		"execution_id", cfg.executionID,
		"duration_ms", duration.Milliseconds(),
		"tokens_used", final.Int(state.KeyTokensUsed))

	return &Result{
		ExecutionID: cfg.executionID,
		WorkflowID:  w.id,
		Status:      types.StatusSucceeded,
		State:       final,
		Duration:    duration,
	}, nil
}

// runFrontier invokes every step in the frontier and merges their deltas in
// completion order, returning the deduplicated next frontier. One goroutine
// per step when fanned out, bounded by maxConcurrency; the first failure
// cancels the siblings' context and aborts without merging anything further.
func (w *Workflow) runFrontier(ctx context.Context, frontier []string, acc *state.Accumulator, cfg runConfig) ([]string, error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so abandoned steps can still post their outcome and exit
	// after the engine stops listening.
	outcomes := make(chan stepOutcome, len(frontier))
	sem := make(chan struct{}, cfg.maxConcurrency)

	for _, id := range frontier {
		bound, ok := w.steps[id]
		if !ok {
			return nil, &StepError{NodeID: id, Err: ErrUnknownNodeType}
		}
		go func(bs *boundStep) {
			sem <- struct{}{}
			defer func() { <-sem }()

			w.log.Debug("step started", "node_id", bs.id, "node_type", bs.nodeType)
			delta, err := bs.step.Execute(stepCtx, acc.Snapshot())
			if err != nil {
				w.log.Warn("step failed", "node_id", bs.id, "node_type", bs.nodeType, "error", err)
				outcomes <- stepOutcome{id: bs.id, err: &StepError{
					NodeID:   bs.id,
					NodeType: string(bs.nodeType),
					Err:      err,
				}}
				return
			}
			w.log.Debug("step completed", "node_id", bs.id, "node_type", bs.nodeType)
			outcomes <- stepOutcome{id: bs.id, delta: delta}
		}(bound)
	}

	var next []string
	for range frontier {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-outcomes:
			if out.err != nil {
				cancel()
				return nil, out.err
			}
			if err := acc.Apply(out.delta); err != nil {
				cancel()
				return nil, &StepError{NodeID: out.id, NodeType: string(w.steps[out.id].nodeType), Err: err}
			}
			// Bookkeeping merges after the step's own delta: the path
			// accumulates in completion order, and a failing step never
			// appears in it.
			_ = acc.Apply(state.Delta{
				state.KeyExecutionPath: []any{out.id},
				state.KeyCurrentNode:   out.id,
			})
			if entry, ok := w.dispatch[out.id]; ok {
				for _, target := range entry.resolve(acc.Snapshot()) {
					if target == End || containsString(next, target) {
						continue
					}
					next = append(next, target)
				}
			}
		}
	}
	return next, nil
}

func (w *Workflow) fail(cfg runConfig, started time.Time, acc *state.Accumulator, nodeID string, err error) error {
	duration := time.Since(started)
	partial := acc.Snapshot()
	w.reg.Complete(cfg.executionID, types.StatusFailed, duration, partial.Int(state.KeyTokensUsed), err)
	w.log.Warn("execution failed",
		"execution_id", cfg.executionID, "node_id", nodeID, "error", err)
	return &ExecutionError{
		ExecutionID: cfg.executionID,
		NodeID:      nodeID,
		Partial:     partial,
		Err:         err,
	}
}

func (w *Workflow) timeout(cfg runConfig, started time.Time, acc *state.Accumulator) error {
	duration := time.Since(started)
	partial := acc.Snapshot()
	timeoutErr := &TimeoutError{
		ExecutionID: cfg.executionID,
		Timeout:     cfg.timeout,
		Partial:     partial,
	}
	w.reg.Complete(cfg.executionID, types.StatusTimedOut, duration, partial.Int(state.KeyTokensUsed), timeoutErr)
	w.log.Warn("execution timed out",
		"execution_id", cfg.executionID, "timeout", cfg.timeout)
	return timeoutErr
}

// RunBatch executes the workflow once per initial state, sequentially. A
// failed item contributes a Result carrying its terminal status and partial
// state instead of aborting the batch.
func (w *Workflow) RunBatch(ctx context.Context, initials []map[string]any, opts ...RunOption) []*Result {
	results := make([]*Result, 0, len(initials))
	for _, initial := range initials {
		res, err := w.Run(ctx, initial, opts...)
		if err != nil {
			status := types.StatusFailed
			if _, isTimeout := err.(*TimeoutError); isTimeout {
				status = types.StatusTimedOut
			}
			partial, _ := PartialState(err)
			results = append(results, &Result{
				WorkflowID: w.id,
				Status:     status,
				State:      partial,
			})
			continue
		}
		results = append(results, res)
	}
	return results
}
