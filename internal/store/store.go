package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"hiberry/internal/model"
)

// OrderStore persists orders partitioned by delivery date.
type OrderStore interface {
	// FetchByDate returns every order of a date partition ordered by id.
	FetchByDate(ctx context.Context, date model.Date) ([]model.Order, error)
	Get(ctx context.Context, date model.Date, id string) (model.Order, error)
	// Put creates or overwrites one order.
	Put(ctx context.Context, o model.Order) error
	// BulkUpdate writes driver, sequence and status of existing orders.
	BulkUpdate(ctx context.Context, orders []model.Order) error
	Delete(ctx context.Context, date model.Date, id string) error
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// Error is a failed storage call. StatusCode and Message are surfaced to
// the API client as is.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(status int, err error, format string, args ...any) error {
	return &Error{StatusCode: status, Message: fmt.Sprintf(format, args...), Err: err}
}

// StatusCode returns the HTTP status carried by err: 404 for ErrNotFound,
// the Error code when set, 500 otherwise.
func StatusCode(err error) int {
	var se *Error
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &se) && se.StatusCode != 0:
		return se.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// checkPut rejects records that could not be read back.
func checkPut(o model.Order) error {
	switch {
	case o.ID == "" || o.DeliveryDate == "":
		return fail(http.StatusBadRequest, nil, "order id and delivery date are required")
	case !o.DeliveryWindow.IsValid():
		return fail(http.StatusBadRequest, nil, "order %s: invalid delivery window %q", o.ID, o.DeliveryWindow)
	case !o.Status.IsValid():
		return fail(http.StatusBadRequest, nil, "order %s: invalid status %q", o.ID, o.Status)
	}
	return nil
}

func cloneOrder(o model.Order) model.Order {
	if o.Location != nil {
		loc := *o.Location
		o.Location = &loc
	}
	if o.Sequence != nil {
		seq := *o.Sequence
		o.Sequence = &seq
	}
	o.Errors = append([]model.OrderError(nil), o.Errors...)
	o.CartItems = append([]model.CartItem(nil), o.CartItems...)
	return o
}
