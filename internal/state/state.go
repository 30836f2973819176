package state

import "fmt"

// Well-known state fields. Steps read and write these keys; anything a step
// wants to expose outside this set must be nested under KeyOutputs.
const (
	KeyUserInput     = "user_input"
	KeyIntent        = "intent"
	KeyTextResult    = "text_result"
	KeyImageResult   = "image_result"
	KeyDBResult      = "db_result"
	KeyAPIResult     = "api_result"
	KeyFinalOutput   = "final_output"
	KeyTokensUsed    = "tokens_used"
	KeyCost          = "cost"
	KeyMetadata      = "metadata"
	KeyErrors        = "errors"
	KeyExecutionPath = "execution_path"
	KeyCurrentNode   = "current_node"
	KeyOutputs       = "outputs"
)

// State is the accumulated execution state for one run. It is merged, never
// mutated in place; steps receive snapshots and return deltas.
type State map[string]any

// Delta is the partial output of one step invocation. It must contain only
// the fields the step actually changed: concurrent branches merge through
// per-field reducers, and a delta carrying unchanged fields would clobber
// sibling updates.
type Delta map[string]any

// Initial builds the starting state for a run: every schema field seeded
// with its zero value, then the caller-provided fields layered on top.
// Non-schema keys are kept as-is so callers can thread custom context
// through a run; deltas remain restricted to the schema.
func Initial(fields map[string]any) State {
	st := State{
		KeyUserInput:     "",
		KeyIntent:        "",
		KeyTextResult:    "",
		KeyImageResult:   map[string]any{},
		KeyDBResult:      []any{},
		KeyAPIResult:     map[string]any{},
		KeyFinalOutput:   nil,
		KeyTokensUsed:    0,
		KeyCost:          0.0,
		KeyMetadata:      map[string]any{},
		KeyErrors:        []any{},
		KeyExecutionPath: []any{},
		KeyCurrentNode:   "",
		KeyOutputs:       map[string]any{},
	}
	for k, v := range fields {
		st[k] = v
	}
	return st
}

// Clone returns a copy of the state safe to hand to a step. Top-level slices
// and maps are copied one level deep; steps must treat nested values as
// read-only.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(tv))
		for k, mv := range tv {
			m[k] = mv
		}
		return m
	case []any:
		sl := make([]any, len(tv))
		copy(sl, tv)
		return sl
	case []string:
		sl := make([]string, len(tv))
		copy(sl, tv)
		return sl
	default:
		return v
	}
}

// String returns the field as a string, or "" when absent or not a string.
func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns the field as an int, tolerating the numeric types JSON
// decoding and reducers produce.
func (s State) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float returns the field as a float64.
func (s State) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Strings returns the field as a string slice. Append-reduced fields hold
// []any internally; elements are rendered with fmt.Sprint when needed.
func (s State) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}

// Map returns the field as a map, or nil.
func (s State) Map(key string) map[string]any {
	v, _ := s[key].(map[string]any)
	return v
}
