package orders

import (
	"errors"
	"fmt"
)

// Recoverable conditions: handled inside a handler pass, the affected
// order is simply deferred to the next cycle.
var (
	// ErrMissingData means a collaborator or the broker could not answer.
	ErrMissingData = errors.New("missing data")

	// ErrAlreadyLocked means another handler holds the order's lock.
	ErrAlreadyLocked = errors.New("order already locked")

	// ErrDuplicateKey means an active order already exists for the domain
	// key at that stack level.
	ErrDuplicateKey = errors.New("duplicate active order for key")

	// ErrMissingOrder means no order exists for the given id or key.
	ErrMissingOrder = errors.New("order not found")

	// ErrNotLocked means a mutating call was made without holding the lock.
	ErrNotLocked = errors.New("order not locked by caller")

	// ErrTerminalState means the operation is not valid for an order that
	// already reached a terminal state.
	ErrTerminalState = errors.New("order in terminal state")

	// ErrNotTerminal means archival was attempted on a working order.
	ErrNotTerminal = errors.New("order not in terminal state")
)

// InvariantViolationError reports an attempted mutation that would break
// the data-model invariants. It is a logic error: the offending transition
// is halted and logged at error severity, never retried.
type InvariantViolationError struct {
	Rule   string
	Detail string
}

func (e *InvariantViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violation: %s", e.Rule)
	}
	return fmt.Sprintf("invariant violation: %s (%s)", e.Rule, e.Detail)
}

func Violation(rule, format string, v ...any) *InvariantViolationError {
	return &InvariantViolationError{Rule: rule, Detail: fmt.Sprintf(format, v...)}
}

// IsInvariantViolation reports whether err wraps an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
