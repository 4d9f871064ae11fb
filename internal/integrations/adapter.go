// Package integrations turns orders pushed by external sales channels into
// order intake payloads.
package integrations

import (
	"errors"
	"net/http"

	"hiberry/internal/model"
)

// ErrNotDeliverable marks an external order that is valid but not for
// delivery, e.g. a store pickup. It is acknowledged and dropped.
var ErrNotDeliverable = errors.New("order is not for delivery")

// SourceAdapter defines the minimal interface for an order source
// integration that pushes orders over a webhook.
type SourceAdapter interface {
	Name() string
	// Verify authenticates the raw webhook body.
	Verify(h http.Header, body []byte) bool
	// MapOrder translates the channel payload. The result carries the
	// adapter's source so intake applies its priority.
	MapOrder(body []byte) (model.OrderIn, error)
}

// MappingError is a payload that cannot be translated.
type MappingError struct {
	Adapter string
	Field   string
	Err     error
}

func (e *MappingError) Error() string {
	return e.Adapter + ": " + e.Field + ": " + e.Err.Error()
}

func (e *MappingError) Unwrap() error { return e.Err }
