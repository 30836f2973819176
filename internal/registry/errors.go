package registry

import "fmt"

// NotFoundError reports a lookup miss for a source id.
type NotFoundError struct {
	SourceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source %q is not registered", e.SourceID)
}
