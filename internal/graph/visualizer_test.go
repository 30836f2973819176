package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMermaidRendersNodesAndEdges(t *testing.T) {
	t.Parallel()
	spec := &GraphSpec{
		Name:      "triage",
		StartNode: "intake",
		Nodes: []NodeSpec{
			{ID: "intake", Type: "input"},
			{ID: "classify", Type: "router"},
			{ID: "billing", Type: "aggregator"},
			{ID: "support", Type: "aggregator"},
		},
		Edges: []EdgeSpec{
			{From: "intake", To: TargetList{"classify"}},
			{From: "classify", To: TargetList{"billing", "support"}, Condition: "intent"},
		},
	}

	out := Mermaid(spec)
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, `intake["intake<br/>(input)"]`)
	assert.Contains(t, out, "intake --> classify")
	assert.Contains(t, out, "classify -.->|intent| billing")
	assert.Contains(t, out, "classify -.->|intent| support")
}

func TestMermaidLinksDanglingAggregatorsToEnd(t *testing.T) {
	t.Parallel()
	spec := &GraphSpec{
		StartNode: "intake",
		Nodes: []NodeSpec{
			{ID: "intake", Type: "input"},
			{ID: "final", Type: "aggregator"},
			{ID: "stray", Type: "router"},
			{ID: "bogus", Type: "teleport"},
		},
		Edges: []EdgeSpec{
			{From: "intake", To: TargetList{"final"}},
		},
	}

	out := Mermaid(spec)
	assert.Contains(t, out, "final --> __end__")
	assert.Contains(t, out, "__end__((END))")

	// Dead-end non-terminals and unknown types stay unwired.
	assert.NotContains(t, out, "stray --> __end__")
	assert.NotContains(t, out, "bogus --> __end__")
}

func TestMermaidOmitsEndMarkerWithoutTerminals(t *testing.T) {
	t.Parallel()
	spec := &GraphSpec{
		StartNode: "a",
		Nodes: []NodeSpec{
			{ID: "a", Type: "input"},
			{ID: "b", Type: "router"},
		},
		Edges: []EdgeSpec{{From: "a", To: TargetList{"b"}}},
	}

	assert.NotContains(t, Mermaid(spec), "__end__")
}
