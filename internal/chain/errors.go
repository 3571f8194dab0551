package chain

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks every failure to reach or understand the registry node.
// Callers check it with errors.Is and must not surface the wrapped cause.
var ErrUnavailable = errors.New("verification service unavailable")

// UnavailableMessage is the only text returned to API clients for ErrUnavailable
const UnavailableMessage = "Verification service unavailable"

// UnavailableError carries the underlying cause for logging.
type UnavailableError struct {
	AgentID string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("verify agent %s: %v", e.AgentID, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}
