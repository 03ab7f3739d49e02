package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Everything except ErrConsistencyFault is recoverable and is
// returned synchronously to the initiating actor.
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTableUnavailable       = errors.New("table unavailable")
	ErrAlreadyPaid            = errors.New("order already paid")
	ErrPaymentSessionConflict = errors.New("payment session already active")
	ErrPaymentRequired        = errors.New("completed payment required")
	ErrAuthorizationDenied    = errors.New("role not permitted")
	ErrNotFound               = errors.New("not found")

	// ErrConsistencyFault marks a multi-step atomic commit that partially
	// failed even after a compensating retry. Requires operator attention.
	ErrConsistencyFault = errors.New("consistency fault")
)

// ValidationError reports a malformed payload field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
