package registry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avi3tal/agentflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceLifecycle(t *testing.T) {
	t.Parallel()
	reg := New()

	reg.Register(SourceConfig{
		ID:     "gemini-llm",
		Kind:   types.SourceLLM,
		Config: map[string]any{"model": "gemini-1.5-flash"},
	})

	require.True(t, reg.Has("gemini-llm"))

	src, err := reg.Get("gemini-llm")
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", src.Config["model"])

	require.True(t, reg.Unregister("gemini-llm"))
	assert.False(t, reg.Unregister("gemini-llm"))

	_, err = reg.Get("gemini-llm")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "gemini-llm", nf.SourceID)
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()
	reg := New()
	reg.Register(SourceConfig{ID: "db", Kind: types.SourceDB, Config: map[string]any{"k": "v"}})

	src, err := reg.Get("db")
	require.NoError(t, err)
	src.Config["k"] = "mutated"

	again, err := reg.Get("db")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Config["k"])
}

func TestListOrdersByID(t *testing.T) {
	t.Parallel()
	reg := New()
	reg.Register(SourceConfig{ID: "zeta", Kind: types.SourceAPI})
	reg.Register(SourceConfig{ID: "alpha", Kind: types.SourceAPI})

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "zeta", list[1].ID)
}

func TestWorkflowCache(t *testing.T) {
	t.Parallel()
	reg := New()

	reg.CacheWorkflow("wf_1", "compiled")
	got, ok := reg.CachedWorkflow("wf_1")
	require.True(t, ok)
	assert.Equal(t, "compiled", got)

	assert.True(t, reg.InvalidateWorkflow("wf_1"))
	assert.False(t, reg.InvalidateWorkflow("wf_1"))
}

func TestExecutionBookkeeping(t *testing.T) {
	t.Parallel()
	reg := New()

	id := NewExecutionID()
	reg.Begin(id, "wf_demo")

	active := reg.Active()
	require.Len(t, active, 1)
	assert.Equal(t, types.StatusRunning, active[0].Status)

	reg.Complete(id, types.StatusFailed, 120*time.Millisecond, 42, errors.New("boom"))

	rec, ok := reg.Execution(id)
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Equal(t, 42, rec.TokensUsed)
	assert.Equal(t, "boom", rec.Error)
	assert.Empty(t, reg.Active())
}

func TestPrefixedIDs(t *testing.T) {
	t.Parallel()

	id := NewExecutionID()
	assert.True(t, strings.HasPrefix(id, "exec_"))
	assert.Len(t, strings.TrimPrefix(id, "exec_"), 12)
	assert.NotEqual(t, NewExecutionID(), NewExecutionID())

	assert.True(t, strings.HasPrefix(NewWorkflowID(), "wf_"))
	assert.True(t, strings.HasPrefix(NewSourceID(), "src_"))
}
