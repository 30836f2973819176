package steps

import (
	"fmt"
	"regexp"

	"github.com/avi3tal/agentflow/internal/state"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Interpolate substitutes {field} placeholders with values from the
// snapshot, checking top-level fields first and the outputs map second.
// Unresolved placeholders stay verbatim.
func Interpolate(template string, snapshot state.State) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := match[1 : len(match)-1]
		value, ok := snapshot[field]
		if !ok {
			value, ok = snapshot.Map(state.KeyOutputs)[field]
		}
		if !ok || value == nil {
			return match
		}
		if s, isString := value.(string); isString {
			return s
		}
		return fmt.Sprintf("%v", value)
	})
}
