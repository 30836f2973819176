package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentflow/internal/graph"
	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/pkg/workflow"
)

// triageSpec is a complete routing pipeline as a wire-format document,
// the way an API client would submit it.
const triageSpec = `{
	"name": "support-triage",
	"start_node": "intake",
	"nodes": [
		{"id": "intake", "type": "input"},
		{"id": "classify", "type": "router", "metadata": {
			"routes": [
				{"intent": "billing", "keywords": ["invoice", "charge", "refund"]},
				{"intent": "technical", "keywords": ["broken", "error", "crash"]}
			],
			"default_intent": "general"
		}},
		{"id": "billing", "type": "aggregator", "metadata": {
			"strategy": "template", "template": "billing: {user_input}", "include_metadata": false
		}},
		{"id": "technical", "type": "aggregator", "metadata": {
			"strategy": "template", "template": "technical: {user_input}", "include_metadata": false
		}},
		{"id": "general", "type": "aggregator", "metadata": {
			"strategy": "template", "template": "general: {user_input}", "include_metadata": false
		}}
	],
	"edges": [
		{"from": "intake", "to": "classify"},
		{"from": "classify", "to": ["billing", "technical", "general"], "condition": "intent"}
	]
}`

func TestTriagePipelineRoutesByKeyword(t *testing.T) {
	t.Parallel()

	spec, err := graph.ParseSpec([]byte(triageSpec))
	require.NoError(t, err)
	require.Empty(t, graph.Validate(spec))

	wf, err := graph.Compile(spec, registry.New())
	require.NoError(t, err)

	cases := []struct {
		input  string
		intent string
		node   string
		output string
	}{
		{"I was double charged on my invoice", "billing", "billing", "billing: I was double charged on my invoice"},
		{"the app is broken again", "technical", "technical", "technical: the app is broken again"},
		{"how do I rename my account", "general", "general", "general: how do I rename my account"},
	}
	for _, tc := range cases {
		result, err := wf.Run(context.Background(), map[string]any{state.KeyUserInput: tc.input})
		require.NoError(t, err)

		assert.Equal(t, tc.intent, result.State.String(state.KeyIntent))
		assert.Equal(t, tc.output, result.State.String(state.KeyFinalOutput))
		assert.Equal(t, []string{"intake", "classify", tc.node}, result.State.Strings(state.KeyExecutionPath))
	}
}

func TestLLMPipelineAgainstStubProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "A DAG has no cycles."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30}
		}`))
	}))
	defer srv.Close()

	result, err := workflow.New("llm-chat").
		AddSource("main-llm", "llm", map[string]any{
			"model":              "gpt-4o-mini",
			"api_key":            "sk-test",
			"base_url":           srv.URL,
			"cost_per_1k_tokens": 0.15,
		}).
		AddInput("intake", map[string]any{
			"validate": map[string]any{"required": true},
		}).
		AddLLM("answer", map[string]any{
			"source_id":       "main-llm",
			"prompt_template": "{user_input}",
		}).
		AddAggregator("final", map[string]any{
			"strategy":         "select",
			"select_key":       "text_result",
			"include_metadata": false,
		}).
		AddEdge("intake", "answer").
		AddEdge("answer", "final").
		SetStart("intake").
		Run(context.Background(), map[string]any{state.KeyUserInput: "what is a DAG?"})
	require.NoError(t, err)

	assert.Equal(t, "A DAG has no cycles.", result.State.String(state.KeyFinalOutput))
	assert.Equal(t, 30, result.State.Int(state.KeyTokensUsed))
	assert.InDelta(t, 0.0045, result.State[state.KeyCost], 1e-9)
	assert.Equal(t, []string{"intake", "answer", "final"}, result.State.Strings(state.KeyExecutionPath))
}

func TestYAMLSpecFileLifecycle(t *testing.T) {
	t.Parallel()

	const doc = `
name: echo
start_node: intake
nodes:
  - id: intake
    type: input
  - id: final
    metadata:
      strategy: select
      select_key: user_input
      include_metadata: false
    type: aggregator
edges:
  - from: intake
    to: final
`
	path := filepath.Join(t.TempDir(), "echo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	spec, err := graph.LoadSpecFile(path)
	require.NoError(t, err)
	require.Empty(t, graph.Validate(spec))

	diagram := graph.Mermaid(spec)
	assert.Contains(t, diagram, "intake")
	assert.Contains(t, diagram, "final")

	wf, err := graph.Compile(spec, registry.New())
	require.NoError(t, err)

	result, err := wf.Run(context.Background(), map[string]any{state.KeyUserInput: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.State.String(state.KeyFinalOutput))
}

func TestParallelBranchesJoinOnce(t *testing.T) {
	t.Parallel()

	result, err := workflow.New("parallel").
		AddInput("intake", nil).
		AddInput("shout", map[string]any{"transform": "uppercase", "output_key": "shouted"}).
		AddInput("whisper", map[string]any{"transform": "lowercase", "output_key": "whispered"}).
		AddAggregator("combine", map[string]any{
			"strategy":         "concat",
			"source_keys":      []string{"shouted", "whispered"},
			"separator":        " | ",
			"include_metadata": false,
		}).
		AddFanOut("intake", "shout", "whisper").
		AddEdge("shout", "combine").
		AddEdge("whisper", "combine").
		SetStart("intake").
		Run(context.Background(), map[string]any{state.KeyUserInput: "Mixed Case"})
	require.NoError(t, err)

	assert.Equal(t, "MIXED CASE | mixed case", result.State.String(state.KeyFinalOutput))

	// Both branches fan out concurrently; the join runs exactly once.
	path := result.State.Strings(state.KeyExecutionPath)
	require.Len(t, path, 4)
	assert.Equal(t, "intake", path[0])
	assert.Equal(t, "combine", path[3])
	assert.ElementsMatch(t, []string{"shout", "whisper"}, path[1:3])
}
