package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrValidation         = errors.New("validation_error")
	ErrNothingChanged     = errors.New("nothing_changed")
	ErrUnknownField       = errors.New("unknown_field")
	ErrInvalidCustomerNo  = errors.New("invalid_customer_no")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrDuplicatePayment   = errors.New("duplicate_payment")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)

// ValidationError reports a rejected input field. It matches ErrValidation
// and the more specific cause with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Cause}
}

func invalid(field, message string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Cause: cause}
}

// DuplicatePayment reports a renewal whose payment reference was already
// recorded.
func DuplicatePayment(reference string) *ValidationError {
	return invalid("reference", "payment "+reference+" already recorded", ErrDuplicatePayment)
}
