package orders

import "fmt"

// Business rule codes.
const (
	CodeNoDriverAvailable = "NO_DRIVER_AVAILABLE"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
)

// BusinessError is a rule failure the end user must see.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

// ValidationError is one malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
