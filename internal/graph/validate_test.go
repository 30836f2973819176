package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueTypes(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Type
	}
	return out
}

func validSpec() *GraphSpec {
	return &GraphSpec{
		Name:      "support-flow",
		StartNode: "intake",
		Nodes: []NodeSpec{
			{ID: "intake", Type: "input"},
			{ID: "classify", Type: "router", Config: map[string]any{
				"routes": []any{map[string]any{"intent": "billing", "keywords": []any{"invoice"}}},
			}},
			{ID: "billing", Type: "llm", Config: map[string]any{
				"source_id": "main-llm",
				"prompt":    "Answer the billing question",
			}},
			{ID: "collect", Type: "aggregator"},
		},
		Edges: []EdgeSpec{
			{From: "intake", To: TargetList{"classify"}},
			{From: "classify", To: TargetList{"billing"}, Condition: "intent"},
			{From: "billing", To: TargetList{"collect"}},
		},
		Sources: []SourceSpec{
			{ID: "main-llm", Kind: "llm", Config: map[string]any{"model": "gpt-4o-mini"}},
		},
	}
}

func TestValidateCleanSpec(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Validate(validSpec()))
}

func TestValidateEmptyNodes(t *testing.T) {
	t.Parallel()
	issues := Validate(&GraphSpec{})
	assert.Contains(t, issueTypes(issues), IssueEmptyNodes)
	assert.Contains(t, issueTypes(issues), IssueStartNodeMissing)
}

func TestValidateStartNode(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.StartNode = "ghost"
	issues := Validate(spec)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueStartNodeInvalid, issues[0].Type)
	assert.Equal(t, "ghost", issues[0].NodeID)
}

func TestValidateDuplicateNodeID(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.Nodes = append(spec.Nodes, NodeSpec{ID: "intake", Type: "input"})
	// The duplicate also shadows nothing reachable, so it reports twice.
	types := issueTypes(Validate(spec))
	assert.Contains(t, types, IssueDuplicateNodeID)
}

func TestValidateEdgeEndpoints(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.Edges = append(spec.Edges,
		EdgeSpec{From: "nowhere", To: TargetList{"collect"}},
		EdgeSpec{From: "collect", To: TargetList{"missing"}},
	)
	types := issueTypes(Validate(spec))
	assert.Contains(t, types, IssueEdgeSourceInvalid)
	assert.Contains(t, types, IssueEdgeTargetInvalid)
}

func TestValidateTerminalEdgeTargetAllowed(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.Edges = append(spec.Edges, EdgeSpec{From: "collect", To: TargetList{"__end__"}})
	assert.Empty(t, Validate(spec))

	spec.Edges[len(spec.Edges)-1].To = TargetList{"END"}
	assert.Empty(t, Validate(spec), "terminal alias is case-insensitive")
}

func TestValidateOrphanedNode(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.Nodes = append(spec.Nodes, NodeSpec{ID: "island", Type: "input"})
	issues := Validate(spec)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueOrphanedNode, issues[0].Type)
	assert.Equal(t, "island", issues[0].NodeID)
}

func TestValidateNodeConfigRules(t *testing.T) {
	t.Parallel()
	spec := &GraphSpec{
		StartNode: "ask",
		Nodes: []NodeSpec{
			{ID: "ask", Type: "llm", Config: map[string]any{"source_id": "nope"}},
			{ID: "fetch", Type: "db"},
			{ID: "route", Type: "router"},
			{ID: "weird", Type: "quantum"},
		},
		Edges: []EdgeSpec{
			{From: "ask", To: TargetList{"fetch"}},
			{From: "fetch", To: TargetList{"route"}},
			{From: "route", To: TargetList{"weird"}},
		},
	}
	types := issueTypes(Validate(spec))
	assert.Contains(t, types, IssueSourceMissing)
	assert.Contains(t, types, IssueMetadataMissing) // llm prompt, db query, router routes
	assert.Contains(t, types, IssueNodeTypeInvalid)
}

func TestValidateSourceConfigRules(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	spec.Sources = append(spec.Sources,
		SourceSpec{ID: "bare-llm", Kind: "llm", Config: map[string]any{}},
		SourceSpec{ID: "bare-db", Kind: "db", Config: map[string]any{}},
	)
	types := issueTypes(Validate(spec))
	assert.Len(t, types, 2)
	assert.Contains(t, types, IssueMetadataMissing)
}

func TestValidateCycleDetection(t *testing.T) {
	t.Parallel()
	spec := &GraphSpec{
		StartNode: "a",
		Nodes: []NodeSpec{
			{ID: "a", Type: "input"},
			{ID: "b", Type: "input"},
		},
		Edges: []EdgeSpec{
			{From: "a", To: TargetList{"b"}},
			{From: "b", To: TargetList{"a"}},
		},
	}

	assert.Empty(t, Validate(spec), "cycle check is opt-in")

	issues := Validate(spec, WithCycleCheck())
	require.Len(t, issues, 1)
	assert.Equal(t, IssueCycleDetected, issues[0].Type)
	assert.Contains(t, issues[0].Message, "a -> b -> a")
}

func TestValidateNeverMutatesSpec(t *testing.T) {
	t.Parallel()
	spec := validSpec()
	before := spec.Clone()
	_ = Validate(spec, WithCycleCheck())
	assert.Equal(t, before, spec)
}
