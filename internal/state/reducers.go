package state

import (
	"fmt"

	"github.com/pkg/errors"
)

// Reducer names the merge function bound to one state field.
type Reducer string

const (
	// Replace takes the incoming value unconditionally.
	Replace Reducer = "replace"
	// KeepFirst keeps the existing value once it is non-empty; later
	// writes are ignored. Protects fields set once at the start of a run.
	KeepFirst Reducer = "keep_first"
	// Append concatenates the incoming items onto the existing list. The
	// delta must carry only the new items, never the full list.
	Append Reducer = "append"
	// Sum adds the incoming increment to the existing total.
	Sum Reducer = "sum"
	// MergeMap unions the incoming map into the existing one, new keys
	// overriding.
	MergeMap Reducer = "merge_map"
)

// Schema binds each state field to exactly one reducer. Fixed at
// schema-definition time; a delta key outside the schema is a merge error.
type Schema map[string]Reducer

// DefaultSchema returns the reducer table for the standard workflow state.
// Append, Sum and MergeMap are associative and commutative, which is what
// makes merging concurrently completed branches order-independent.
func DefaultSchema() Schema {
	return Schema{
		KeyUserInput:     KeepFirst,
		KeyIntent:        Replace,
		KeyTextResult:    Replace,
		KeyImageResult:   Replace,
		KeyDBResult:      Replace,
		KeyAPIResult:     Replace,
		KeyFinalOutput:   Replace,
		KeyCurrentNode:   Replace,
		KeyTokensUsed:    Sum,
		KeyCost:          Sum,
		KeyMetadata:      MergeMap,
		KeyOutputs:       MergeMap,
		KeyErrors:        Append,
		KeyExecutionPath: Append,
	}
}

// Merge folds a delta into old field-by-field through the schema's reducers
// and returns a fresh snapshot. The inputs are not mutated. A delta key with
// no schema entry is rejected: step authors must nest custom keys under the
// outputs extension bag.
func Merge(schema Schema, old State, delta Delta) (State, error) {
	out := old.Clone()
	for key, incoming := range delta {
		reducer, ok := schema[key]
		if !ok {
			return nil, errors.Errorf(
				"delta key %q is not in the state schema; nest custom keys under %q", key, KeyOutputs)
		}
		merged, err := reduce(reducer, out[key], incoming)
		if err != nil {
			return nil, errors.Wrapf(err, "merging field %q", key)
		}
		out[key] = merged
	}
	return out, nil
}

func reduce(r Reducer, old, incoming any) (any, error) {
	switch r {
	case Replace:
		return incoming, nil
	case KeepFirst:
		if !isEmpty(old) {
			return old, nil
		}
		return incoming, nil
	case Append:
		return appendItems(old, incoming), nil
	case Sum:
		return sumValues(old, incoming)
	case MergeMap:
		return mergeMaps(old, incoming)
	default:
		return nil, fmt.Errorf("unknown reducer %q", r)
	}
}

// isEmpty reports whether a value counts as unset for KeepFirst purposes.
func isEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case []any:
		return len(tv) == 0
	case []string:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	default:
		return false
	}
}

// appendItems concatenates incoming onto old. A scalar incoming value
// appends as a single item.
func appendItems(old, incoming any) []any {
	out := asSlice(old)
	switch items := incoming.(type) {
	case []any:
		out = append(out, items...)
	case []string:
		for _, s := range items {
			out = append(out, s)
		}
	case nil:
	default:
		out = append(out, incoming)
	}
	return out
}

func asSlice(v any) []any {
	switch tv := v.(type) {
	case nil:
		return []any{}
	case []any:
		out := make([]any, len(tv))
		copy(out, tv)
		return out
	case []string:
		out := make([]any, 0, len(tv))
		for _, s := range tv {
			out = append(out, s)
		}
		return out
	default:
		return []any{tv}
	}
}

// sumValues adds incoming to old, staying in int when both sides are
// integers and promoting to float64 otherwise.
func sumValues(old, incoming any) (any, error) {
	oi, oInt := asInt(old)
	ni, nInt := asInt(incoming)
	if oInt && nInt {
		return oi + ni, nil
	}
	of, ok := asFloat(old)
	if !ok {
		return nil, fmt.Errorf("existing value %T is not numeric", old)
	}
	nf, ok := asFloat(incoming)
	if !ok {
		return nil, fmt.Errorf("delta value %T is not numeric", incoming)
	}
	return of + nf, nil
}

func asInt(v any) (int, bool) {
	switch tv := v.(type) {
	case nil:
		return 0, true
	case int:
		return tv, true
	case int64:
		return int(tv), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case nil:
		return 0, true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case float64:
		return tv, true
	default:
		return 0, false
	}
}

// mergeMaps returns the shallow union of old and incoming, incoming keys
// overriding.
func mergeMaps(old, incoming any) (map[string]any, error) {
	out := map[string]any{}
	if old != nil {
		om, ok := old.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("existing value %T is not a map", old)
		}
		for k, v := range om {
			out[k] = v
		}
	}
	if incoming == nil {
		return out, nil
	}
	nm, ok := incoming.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("delta value %T is not a map", incoming)
	}
	for k, v := range nm {
		out[k] = v
	}
	return out, nil
}
