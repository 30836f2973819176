// Package workflow is the public fluent API for declaring and running
// workflow graphs without hand-writing the JSON specification.
package workflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/graph"
	"github.com/avi3tal/agentflow/internal/registry"
)

// End is the terminal marker accepted as an edge target.
const End = graph.End

// Builder accumulates a GraphSpec through chained calls. Errors are
// deferred: each mutation records the first failure and every later call
// passes through, so a chain can be written without per-call checks and
// inspected once at Validate, Compile, or Run.
type Builder struct {
	spec graph.GraphSpec
	err  error
}

// New starts an empty workflow.
func New(name string) *Builder {
	return &Builder{spec: graph.GraphSpec{Name: name, Version: "1.0.0"}}
}

// Err reports the first error recorded by the chain.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddNode declares a node of any type with its config.
func (b *Builder) AddNode(id, nodeType string, config map[string]any) *Builder {
	if b.err != nil {
		return b
	}
	if id == "" {
		return b.fail(errors.New("node id is required"))
	}
	for _, n := range b.spec.Nodes {
		if n.ID == id {
			return b.fail(errors.Errorf("node %q already declared", id))
		}
	}
	b.spec.Nodes = append(b.spec.Nodes, graph.NodeSpec{ID: id, Type: nodeType, Config: config})
	return b
}

// Typed sugar for the built-in node types.

func (b *Builder) AddInput(id string, config map[string]any) *Builder {
	return b.AddNode(id, "input", config)
}

func (b *Builder) AddRouter(id string, config map[string]any) *Builder {
	return b.AddNode(id, "router", config)
}

func (b *Builder) AddLLM(id string, config map[string]any) *Builder {
	return b.AddNode(id, "llm", config)
}

func (b *Builder) AddImage(id string, config map[string]any) *Builder {
	return b.AddNode(id, "image", config)
}

func (b *Builder) AddDB(id string, config map[string]any) *Builder {
	return b.AddNode(id, "db", config)
}

func (b *Builder) AddAggregator(id string, config map[string]any) *Builder {
	return b.AddNode(id, "aggregator", config)
}

// AddEdge links from -> to unconditionally.
func (b *Builder) AddEdge(from, to string) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.Edges = append(b.spec.Edges, graph.EdgeSpec{From: from, To: graph.TargetList{to}})
	return b
}

// AddFanOut links from to every target concurrently.
func (b *Builder) AddFanOut(from string, targets ...string) *Builder {
	if b.err != nil {
		return b
	}
	if len(targets) == 0 {
		return b.fail(errors.Errorf("fan-out from %q needs at least one target", from))
	}
	b.spec.Edges = append(b.spec.Edges, graph.EdgeSpec{From: from, To: graph.TargetList(targets)})
	return b
}

// AddConditionalEdge links from to one of targets, selected by the intent
// field of the merged state after from completes.
func (b *Builder) AddConditionalEdge(from string, targets []string, condition string) *Builder {
	if b.err != nil {
		return b
	}
	if len(targets) == 0 {
		return b.fail(errors.Errorf("conditional edge from %q needs at least one target", from))
	}
	if condition == "" {
		condition = "intent"
	}
	b.spec.Edges = append(b.spec.Edges, graph.EdgeSpec{
		From:      from,
		To:        graph.TargetList(targets),
		Condition: condition,
	})
	return b
}

// AddSource declares an external source the workflow's nodes reference.
func (b *Builder) AddSource(id, kind string, config map[string]any) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.Sources = append(b.spec.Sources, graph.SourceSpec{ID: id, Kind: kind, Config: config})
	return b
}

// SetStart names the entry node.
func (b *Builder) SetStart(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.StartNode = id
	return b
}

// Spec returns a copy of the accumulated specification.
func (b *Builder) Spec() *graph.GraphSpec {
	return b.spec.Clone()
}

// Validate runs the full validation pass over the accumulated spec.
func (b *Builder) Validate(opts ...graph.ValidateOption) ([]graph.Issue, error) {
	if b.err != nil {
		return nil, b.err
	}
	return graph.Validate(&b.spec, opts...), nil
}

// Compile validates and compiles the workflow against a registry.
func (b *Builder) Compile(reg *registry.Registry, opts ...graph.CompileOption) (*graph.Workflow, error) {
	if b.err != nil {
		return nil, b.err
	}
	if issues := graph.Validate(&b.spec); len(issues) > 0 {
		return nil, errors.Errorf("workflow %q is invalid: %s (%d issues)",
			b.spec.Name, issues[0].Message, len(issues))
	}
	return graph.Compile(&b.spec, reg, opts...)
}

// Run is the end-to-end convenience: validate, compile against a fresh
// registry, and execute once.
func (b *Builder) Run(ctx context.Context, initial map[string]any, opts ...graph.RunOption) (*graph.Result, error) {
	wf, err := b.Compile(registry.New())
	if err != nil {
		return nil, err
	}
	return wf.Run(ctx, initial, opts...)
}
