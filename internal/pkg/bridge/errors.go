package bridge

import "fmt"

// UnknownEntityError is returned by commands that target a device, button
// or scene the bridge has not reported.
type UnknownEntityError struct {
	Kind string
	ID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("bridge: unknown %s %q", e.Kind, e.ID)
}
