// Package registry holds the shared mutable tables consumed by the compiler
// and the execution engine: registered source configurations, a compiled
// workflow cache, and execution bookkeeping. Each table is guarded by its
// own coarse lock; that single-lock discipline is the concurrency contract.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avi3tal/agentflow/internal/logging"
	"github.com/avi3tal/agentflow/internal/types"
)

// Registry is an explicitly owned handle, injected into the compiler and
// engine rather than living as ambient global state.
type Registry struct {
	log *slog.Logger

	sourcesMu sync.Mutex
	sources   map[string]SourceConfig

	cacheMu sync.Mutex
	cache   map[string]any

	execMu     sync.Mutex
	executions map[string]Execution
}

// SourceConfig is a registered external-source configuration.
type SourceConfig struct {
	ID     string         `json:"id"`
	Kind   types.SourceKind `json:"kind"`
	Config map[string]any `json:"config"`
}

func (c SourceConfig) clone() SourceConfig {
	cfg := make(map[string]any, len(c.Config))
	for k, v := range c.Config {
		cfg[k] = v
	}
	return SourceConfig{ID: c.ID, Kind: c.Kind, Config: cfg}
}

type Option func(*Registry)

func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		log:        logging.NewNop(),
		sources:    make(map[string]SourceConfig),
		cache:      make(map[string]any),
		executions: make(map[string]Execution),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register stores a source configuration, replacing any previous entry with
// the same id.
func (r *Registry) Register(src SourceConfig) {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	r.sources[src.ID] = src.clone()
	r.log.Info("source registered", "source_id", src.ID, "kind", src.Kind)
}

// Get returns a copy of the source configuration, or NotFoundError.
func (r *Registry) Get(id string) (SourceConfig, error) {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return SourceConfig{}, &NotFoundError{SourceID: id}
	}
	return src.clone(), nil
}

// Unregister removes a source; it reports whether anything was removed.
func (r *Registry) Unregister(id string) bool {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	if _, ok := r.sources[id]; !ok {
		return false
	}
	delete(r.sources, id)
	r.log.Info("source unregistered", "source_id", id)
	return true
}

// Has reports whether a source is registered.
func (r *Registry) Has(id string) bool {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	_, ok := r.sources[id]
	return ok
}

// List returns copies of all registered sources, ordered by id.
func (r *Registry) List() []SourceConfig {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	out := make([]SourceConfig, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes every registered source.
func (r *Registry) Clear() {
	r.sourcesMu.Lock()
	defer r.sourcesMu.Unlock()
	r.sources = make(map[string]SourceConfig)
}

// CacheWorkflow stores a compiled workflow for reuse across requests.
func (r *Registry) CacheWorkflow(workflowID string, wf any) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache[workflowID] = wf
}

// CachedWorkflow returns a previously cached workflow, if any.
func (r *Registry) CachedWorkflow(workflowID string) (any, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	wf, ok := r.cache[workflowID]
	return wf, ok
}

// InvalidateWorkflow drops a cached workflow; it reports whether an entry
// existed.
func (r *Registry) InvalidateWorkflow(workflowID string) bool {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if _, ok := r.cache[workflowID]; !ok {
		return false
	}
	delete(r.cache, workflowID)
	return true
}

// Execution is one bookkeeping record in the execution table.
type Execution struct {
	ID          string                `json:"execution_id"`
	WorkflowID  string                `json:"workflow_id"`
	Status      types.ExecutionStatus `json:"status"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
	Duration    time.Duration         `json:"duration_ms"`
	TokensUsed  int                   `json:"tokens_used"`
	Error       string                `json:"error,omitempty"`
}

// Begin records the start of a run.
func (r *Registry) Begin(executionID, workflowID string) {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	r.executions[executionID] = Execution{
		ID:         executionID,
		WorkflowID: workflowID,
		Status:     types.StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
}

// Complete closes a run with its terminal status. Unknown ids are ignored.
func (r *Registry) Complete(executionID string, status types.ExecutionStatus, duration time.Duration, tokensUsed int, execErr error) {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	rec, ok := r.executions[executionID]
	if !ok {
		return
	}
	rec.Status = status
	rec.CompletedAt = time.Now().UTC()
	rec.Duration = duration
	rec.TokensUsed = tokensUsed
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	r.executions[executionID] = rec
}

// Execution returns one bookkeeping record.
func (r *Registry) Execution(executionID string) (Execution, bool) {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	rec, ok := r.executions[executionID]
	return rec, ok
}

// Executions returns all records, newest first.
func (r *Registry) Executions() []Execution {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	out := make([]Execution, 0, len(r.executions))
	for _, rec := range r.executions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Active returns the records of runs still in flight.
func (r *Registry) Active() []Execution {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	out := make([]Execution, 0)
	for _, rec := range r.executions {
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
