package conversation

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a token or channel identity resolves to
// no stored session.
var ErrSessionNotFound = errors.New("conversation: session not found")

// ValidationError reports a missing required request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("conversation: missing required field %q", e.Field)
}
