package registry

import (
	"fmt"

	"github.com/google/uuid"
)

// Prefixed id constructors: a short uuid-derived hex tail behind a prefix
// that makes ids self-describing in logs and API responses.

func NewExecutionID() string { return prefixedID("exec_") }
func NewWorkflowID() string  { return prefixedID("wf_") }
func NewSourceID() string    { return prefixedID("src_") }

func prefixedID(prefix string) string {
	u := uuid.New()
	return prefix + fmt.Sprintf("%x", u[:6])
}
