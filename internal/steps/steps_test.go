package steps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentflow/internal/registry"
	"github.com/avi3tal/agentflow/internal/state"
)

func testDeps() Deps {
	return Deps{Registry: registry.New()}
}

func TestInputPassThrough(t *testing.T) {
	t.Parallel()
	step, err := NewInput(testDeps())("in", map[string]any{})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: "Hello",
	}))
	require.NoError(t, err)
	assert.NotContains(t, delta, state.KeyUserInput, "same-key pass-through writes nothing")

	meta := delta[state.KeyMetadata].(map[string]any)
	assert.Equal(t, true, meta["input_processed"])
	assert.Equal(t, "in", meta["input_node_id"])
}

func TestInputTransformAndRedirect(t *testing.T) {
	t.Parallel()
	step, err := NewInput(testDeps())("in", map[string]any{
		"output_key": "cleaned",
		"transform":  "lowercase",
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: "HELLO World",
	}))
	require.NoError(t, err)
	outputs := delta[state.KeyOutputs].(map[string]any)
	assert.Equal(t, "hello world", outputs["cleaned"], "non-schema output keys nest under outputs")
}

func TestInputValidation(t *testing.T) {
	t.Parallel()
	step, err := NewInput(testDeps())("in", map[string]any{
		"validate": map[string]any{"min_length": 5, "required": true},
	})
	require.NoError(t, err)

	_, err = step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: "hi",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 5")

	_, err = step.Execute(context.Background(), state.Initial(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func routerWith(t *testing.T, config map[string]any) *routerStep {
	t.Helper()
	step, err := NewRouter(testDeps())("router", config)
	require.NoError(t, err)
	return step.(*routerStep)
}

func routedIntent(t *testing.T, step *routerStep, input string) string {
	t.Helper()
	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: input,
	}))
	require.NoError(t, err)
	return delta[state.KeyIntent].(string)
}

func TestRouterKeywordStrategy(t *testing.T) {
	t.Parallel()
	step := routerWith(t, map[string]any{
		"routes": []map[string]any{
			{"intent": "greeting", "keywords": []string{"hello", "hi"}},
			{"intent": "question", "keywords": []string{"what", "how"}},
		},
		"default_intent": "general",
	})

	assert.Equal(t, "greeting", routedIntent(t, step, "Hello there"))
	assert.Equal(t, "question", routedIntent(t, step, "WHAT is this"))
	assert.Equal(t, "general", routedIntent(t, step, "nothing matches"))
}

func TestRouterPatternStrategy(t *testing.T) {
	t.Parallel()
	step := routerWith(t, map[string]any{
		"strategy": "pattern",
		"routes": []map[string]any{
			{"intent": "greeting", "pattern": `^(hello|hi)\b`},
		},
	})

	assert.Equal(t, "greeting", routedIntent(t, step, "hi everyone"))
	assert.Equal(t, "unknown", routedIntent(t, step, "say hi"), "pattern anchors at the start")
}

func TestRouterRulesStrategy(t *testing.T) {
	t.Parallel()
	step := routerWith(t, map[string]any{
		"strategy": "rules",
		"routes": []map[string]any{
			{"intent": "help", "condition": "contains('help')"},
			{"intent": "shout", "condition": "length_gt(20)"},
			{"intent": "exact", "condition": "equals('ping')"},
		},
	})

	assert.Equal(t, "help", routedIntent(t, step, "I need some Help please"))
	assert.Equal(t, "shout", routedIntent(t, step, "a very long message without the keyword"))
	assert.Equal(t, "exact", routedIntent(t, step, "PING"))
	assert.Equal(t, "unknown", routedIntent(t, step, "nope"))
}

func TestRouterLLMStrategyFallsBackToKeyword(t *testing.T) {
	t.Parallel()
	step := routerWith(t, map[string]any{
		"strategy": "llm",
		"routes": []map[string]any{
			{"intent": "greeting", "keywords": []string{"hello"}},
		},
	})

	assert.Equal(t, "greeting", routedIntent(t, step, "hello"))
}

func TestLLMStepGenerates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "It is sunny."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
		}`))
	}))
	defer srv.Close()

	step, err := NewLLM(testDeps())("answer", map[string]any{
		"model":           "gpt-4o-mini",
		"api_key":         "sk-test",
		"base_url":        srv.URL,
		"prompt_template": "Answer: {user_input}",
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: "weather?",
	}))
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", delta[state.KeyTextResult])
	assert.Equal(t, 14, delta[state.KeyTokensUsed])
}

func TestLLMStepCostFromConfiguredRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 500, "completion_tokens": 500, "total_tokens": 1000}
		}`))
	}))
	defer srv.Close()

	step, err := NewLLM(testDeps())("answer", map[string]any{
		"model":              "gpt-4o-mini",
		"api_key":            "sk-test",
		"base_url":           srv.URL,
		"prompt":             "hello",
		"cost_per_1k_tokens": 0.15,
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(nil))
	require.NoError(t, err)
	assert.InDelta(t, 0.15, delta[state.KeyCost], 1e-9)
}

func TestImageStepPlaceholder(t *testing.T) {
	t.Parallel()
	step, err := NewImage(testDeps())("draw", map[string]any{
		"prompt_template": "paint {user_input}",
		"size":            "512x512",
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyUserInput: "a lighthouse",
	}))
	require.NoError(t, err)

	result := delta[state.KeyImageResult].(map[string]any)
	assert.Equal(t, "placeholder", result["type"])
	assert.Equal(t, "paint a lighthouse", result["prompt"])
	assert.Equal(t, 512, result["width"])
}

func TestDBStepRejectsWrites(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	factory := NewDB(testDeps())

	for _, query := range []string{
		"DELETE FROM users",
		"INSERT INTO users VALUES (1)",
		"SELECT * FROM users; DROP TABLE users",
		"/* sneaky */ UPDATE users SET name = 'x'",
	} {
		step, err := factory("q", map[string]any{"query": query})
		require.NoError(t, err)
		_, err = step.Execute(context.Background(), state.Initial(nil))
		assert.Error(t, err, "query should be rejected: %s", query)
	}
}

func TestDBStepAllowsReads(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	factory := NewDB(testDeps())

	for _, query := range []string{
		"SELECT * FROM users",
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
		"EXPLAIN SELECT 1",
		"-- comment\nSELECT id FROM users",
	} {
		step, err := factory("q", map[string]any{"query": query})
		require.NoError(t, err)
		delta, err := step.Execute(context.Background(), state.Initial(nil))
		require.NoError(t, err, "query should pass: %s", query)
		assert.Equal(t, []map[string]any{}, delta[state.KeyDBResult])
	}
}

func TestCheckReadOnlyLimit(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	step, err := NewDB(testDeps())("q", map[string]any{
		"query": "SELECT * FROM users LIMIT 5",
	})
	require.NoError(t, err)

	// Unconnected client still validates and answers empty.
	delta, err := step.Execute(context.Background(), state.Initial(nil))
	require.NoError(t, err)
	assert.Empty(t, delta[state.KeyDBResult])
}

func TestAggregatorMerge(t *testing.T) {
	t.Parallel()
	step, err := NewAggregator(testDeps())("agg", map[string]any{})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyTextResult: "summary",
		state.KeyDBResult:   []any{map[string]any{"id": 1}},
		state.KeyTokensUsed: 25,
	}))
	require.NoError(t, err)

	final := delta[state.KeyFinalOutput].(map[string]any)
	result := final["result"].(map[string]any)
	assert.Equal(t, "summary", result[state.KeyTextResult])
	assert.Contains(t, result, state.KeyDBResult)
	assert.NotContains(t, result, state.KeyImageResult, "empty sources are skipped")
	assert.Equal(t, 25, final["tokens_used"])
}

func TestAggregatorPriority(t *testing.T) {
	t.Parallel()
	step, err := NewAggregator(testDeps())("agg", map[string]any{
		"strategy":         "priority",
		"priority_order":   []string{state.KeyImageResult, state.KeyTextResult},
		"include_metadata": false,
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyTextResult: "fallback text",
	}))
	require.NoError(t, err)
	assert.Equal(t, "fallback text", delta[state.KeyFinalOutput])
}

func TestAggregatorConcatAndOutputsFallback(t *testing.T) {
	t.Parallel()
	step, err := NewAggregator(testDeps())("agg", map[string]any{
		"strategy":         "concat",
		"source_keys":      []string{"part_a", "part_b"},
		"separator":        " | ",
		"include_metadata": false,
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		"part_a":        "alpha",
		state.KeyOutputs: map[string]any{"part_b": "beta"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "alpha | beta", delta[state.KeyFinalOutput])
}

func TestAggregatorTemplate(t *testing.T) {
	t.Parallel()
	step, err := NewAggregator(testDeps())("agg", map[string]any{
		"strategy":         "template",
		"template":         "Answer: {text_result} ({missing})",
		"include_metadata": false,
	})
	require.NoError(t, err)

	delta, err := step.Execute(context.Background(), state.Initial(map[string]any{
		state.KeyTextResult: "42",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Answer: 42 ({missing})", delta[state.KeyFinalOutput])
}

func TestInterpolateFormatsNonStrings(t *testing.T) {
	t.Parallel()
	out := Interpolate("count={tokens_used}", state.Initial(map[string]any{
		state.KeyTokensUsed: 7,
	}))
	assert.Equal(t, "count=7", out)
}
