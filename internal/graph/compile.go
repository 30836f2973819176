package graph

import (
	"log/slog"
	"strings"

	"github.com/avi3tal/agentflow/internal/logging"
	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
	"github.com/pkg/errors"
)

type dispatchKind int

const (
	// dispatchStatic always transitions to its single target.
	dispatchStatic dispatchKind = iota
	// dispatchFanOut transitions to every target concurrently.
	dispatchFanOut
	// dispatchConditional selects one target from the intent field of the
	// merged state.
	dispatchConditional
)

type dispatchEntry struct {
	kind    dispatchKind
	targets []string
}

// resolve returns the next node ids given the state merged after the
// node's delta. Conditional dispatch matches the intent field against the
// targets: exact case-insensitive id match first, then the first target
// whose id is a case-insensitive substring of the intent, then the first
// listed target. The substring fallback can match unintended targets when
// ids overlap lexically; callers relying on it should keep target ids
// disjoint.
func (d dispatchEntry) resolve(st state.State) []string {
	switch d.kind {
	case dispatchConditional:
		intent := strings.ToLower(st.String(state.KeyIntent))
		for _, target := range d.targets {
			if strings.ToLower(target) == intent {
				return []string{target}
			}
		}
		for _, target := range d.targets {
			if strings.Contains(intent, strings.ToLower(target)) {
				return []string{target}
			}
		}
		return d.targets[:1]
	default:
		return d.targets
	}
}

type boundStep struct {
	id       string
	nodeType types.NodeType
	step     types.Step
}

// Workflow is the executable form of a validated GraphSpec: one bound step
// per node plus a dispatch table, closed over the registry handle used to
// resolve sources and record executions.
type Workflow struct {
	id      string
	name    string
	version string
	entry   string

	steps    map[string]*boundStep
	dispatch map[string]dispatchEntry
	schema   state.Schema

	nodeCount int
	edgeCount int

	reg *registry.Registry
	log *slog.Logger
}

func (w *Workflow) ID() string      { return w.id }
func (w *Workflow) Name() string    { return w.name }
func (w *Workflow) EntryID() string { return w.entry }
func (w *Workflow) NodeCount() int  { return w.nodeCount }
func (w *Workflow) EdgeCount() int  { return w.edgeCount }

type compileConfig struct {
	factories   map[string]types.StepFactory
	extra       map[string]types.StepFactory
	syncSources bool
	workflowID  string
	log         *slog.Logger
	schema      state.Schema
}

// CompileOption configures compilation.
type CompileOption func(*compileConfig)

// WithStepFactory registers (or overrides) the factory for a node type.
func WithStepFactory(nodeType string, factory types.StepFactory) CompileOption {
	return func(c *compileConfig) {
		c.extra[strings.ToLower(nodeType)] = factory
	}
}

// WithFactories replaces the whole builtin factory table. Mostly for tests
// that stub every node type.
func WithFactories(factories map[string]types.StepFactory) CompileOption {
	return func(c *compileConfig) {
		c.factories = factories
	}
}

// WithoutSourceSync skips registering the spec's sources into the registry.
func WithoutSourceSync() CompileOption {
	return func(c *compileConfig) {
		c.syncSources = false
	}
}

// WithWorkflowID pins the compiled workflow's id instead of generating one.
func WithWorkflowID(id string) CompileOption {
	return func(c *compileConfig) {
		c.workflowID = id
	}
}

// WithLogger sets the logger the compiled workflow executes with.
func WithLogger(log *slog.Logger) CompileOption {
	return func(c *compileConfig) {
		c.log = log
	}
}

// WithSchema overrides the state schema the workflow merges through.
func WithSchema(schema state.Schema) CompileOption {
	return func(c *compileConfig) {
		c.schema = schema
	}
}

// Compile turns a validated spec into an executable Workflow. The spec is
// copied first and never mutated, so compiling twice yields structurally
// equivalent workflows. Compile errors are config defects (unknown node
// type, factory rejection); data-validation problems belong to Validate and
// are not re-checked here.
func Compile(spec *GraphSpec, reg *registry.Registry, opts ...CompileOption) (*Workflow, error) {
	cfg := compileConfig{
		extra:       map[string]types.StepFactory{},
		syncSources: true,
		log:         logging.NewNop(),
		schema:      state.DefaultSchema(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workflowID == "" {
		cfg.workflowID = registry.NewWorkflowID()
	}

	spec = spec.Clone()

	if cfg.syncSources {
		for _, src := range spec.Sources {
			reg.Register(registry.SourceConfig{
				ID:     src.ID,
				Kind:   types.SourceKind(src.Kind),
				Config: src.Config,
			})
		}
	}

	factories := cfg.factories
	if factories == nil {
		factories = builtinFactories(reg, cfg.log)
	}
	for name, f := range cfg.extra {
		factories[name] = f
	}

	wf := &Workflow{
		id:        cfg.workflowID,
		name:      spec.Name,
		version:   spec.Version,
		entry:     spec.StartNode,
		steps:     make(map[string]*boundStep, len(spec.Nodes)),
		dispatch:  make(map[string]dispatchEntry, len(spec.Nodes)),
		schema:    cfg.schema,
		nodeCount: len(spec.Nodes),
		edgeCount: len(spec.Edges),
		reg:       reg,
		log:       cfg.log,
	}

	nodeTypes := make(map[string]types.NodeType, len(spec.Nodes))
	for _, node := range spec.Nodes {
		typeName := strings.ToLower(node.Type)
		factory, ok := factories[typeName]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownNodeType, "node %q declares type %q", node.ID, node.Type)
		}
		step, err := factory(node.ID, node.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "building step for node %q", node.ID)
		}
		nt := types.NodeType(typeName)
		nodeTypes[node.ID] = nt
		wf.steps[node.ID] = &boundStep{id: node.ID, nodeType: nt, step: step}
	}

	if err := wf.wireDispatch(spec, nodeTypes); err != nil {
		return nil, err
	}
	return wf, nil
}

// wireDispatch builds the dispatch table from the spec's edges and queues.
// Queues contribute plain transitions; their rate limiting is enforced
// outside the engine.
func (w *Workflow) wireDispatch(spec *GraphSpec, nodeTypes map[string]types.NodeType) error {
	type outgoing struct {
		targets     []string
		conditional bool
	}
	byNode := make(map[string]*outgoing, len(spec.Nodes))

	addTargets := func(from string, targets []string, conditional bool) {
		out := byNode[from]
		if out == nil {
			out = &outgoing{}
			byNode[from] = out
		}
		for _, t := range targets {
			if IsTerminal(t) {
				t = End
			}
			if !containsString(out.targets, t) {
				out.targets = append(out.targets, t)
			}
		}
		out.conditional = out.conditional || conditional
	}

	for _, edge := range spec.Edges {
		addTargets(edge.From, edge.To, edge.Condition != "")
	}
	for _, q := range spec.Queues {
		addTargets(q.From, []string{q.To}, false)
	}

	for _, node := range spec.Nodes {
		out := byNode[node.ID]
		if out == nil || len(out.targets) == 0 {
			// Dead end. Inherently terminal node types are auto-wired to
			// the terminal marker; everything else just ends its branch.
			if nodeTypes[node.ID].Terminal() {
				w.dispatch[node.ID] = dispatchEntry{kind: dispatchStatic, targets: []string{End}}
			}
			continue
		}

		switch {
		case out.conditional, nodeTypes[node.ID] == types.NodeRouter && len(out.targets) > 1:
			w.dispatch[node.ID] = dispatchEntry{kind: dispatchConditional, targets: out.targets}
		case len(out.targets) == 1:
			w.dispatch[node.ID] = dispatchEntry{kind: dispatchStatic, targets: out.targets}
		default:
			w.dispatch[node.ID] = dispatchEntry{kind: dispatchFanOut, targets: out.targets}
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
