package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the persisted form of a delivery date (partition key).
const DateLayout = "2006-01-02"

// Coordinate is a latitude/longitude pair. Distances treat it as planar.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Date is a calendar day in YYYY-MM-DD form.
type Date string

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("date must be in yyyy-mm-dd format, got %q", s)
	}
	return Date(s), nil
}

// Time returns the date at midnight UTC. Unparseable dates yield the zero time.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// Weekday returns 0 for Monday through 6 for Sunday.
func (d Date) Weekday() int {
	return (int(d.Time().Weekday()) + 6) % 7
}

func (d Date) String() string { return string(d) }

// DeliveryWindow is the shift an order is delivered in. The literal is
// persisted and compared verbatim.
type DeliveryWindow string

const (
	Morning   DeliveryWindow = "8 AM - 1 PM"
	Afternoon DeliveryWindow = "1 PM - 5 PM"
)

// Windows lists the delivery windows in scheduling order.
var Windows = []DeliveryWindow{Morning, Afternoon}

func (w DeliveryWindow) IsValid() bool {
	return w == Morning || w == Afternoon
}

// ParseDeliveryWindow rejects anything but the two known literals.
func ParseDeliveryWindow(s string) (DeliveryWindow, error) {
	w := DeliveryWindow(s)
	if !w.IsValid() {
		return "", fmt.Errorf("invalid delivery window %q (want %q or %q)", s, Morning, Afternoon)
	}
	return w, nil
}

func (w *DeliveryWindow) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDeliveryWindow(s)
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusCreated     OrderStatus = "Created"
	StatusProgrammed  OrderStatus = "Programmed"
	StatusOnTransit   OrderStatus = "On Transit"
	StatusRescheduled OrderStatus = "Rescheduled"
	StatusError       OrderStatus = "Error"
	StatusDelivered   OrderStatus = "Delivered"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusProgrammed, StatusOnTransit, StatusRescheduled, StatusError, StatusDelivered:
		return true
	default:
		return false
	}
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid order status %q", s)
	}
	return st, nil
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// OrderSource is the channel an order came from.
type OrderSource string

const (
	// SourceApp is the internal back-office app.
	SourceApp OrderSource = "app"
	// SourceStorefront is the external shop; it bypasses capacity and
	// day/window checks.
	SourceStorefront OrderSource = "storefront"
)

func (s OrderSource) IsValid() bool {
	return s == SourceApp || s == SourceStorefront
}

// IsPriority reports whether orders from this source skip capacity rules.
func (s OrderSource) IsPriority() bool { return s == SourceStorefront }

func ParseOrderSource(s string) (OrderSource, error) {
	if s == "" {
		return SourceApp, nil
	}
	src := OrderSource(strings.ToLower(s))
	if !src.IsValid() {
		return "", fmt.Errorf("invalid order source %q", s)
	}
	return src, nil
}

func (s *OrderSource) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseOrderSource(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Order error codes attached to persisted orders.
const (
	ErrCodeAddressNeedsGeo   = "ADDRESS_NEEDS_GEO"
	ErrCodeNoDriverAvailable = "NO_DRIVER_AVAILABLE"
)

// OrderError is a structured warning stored with an order.
type OrderError struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

type CartItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the persisted order record.
type Order struct {
	ID              string         `json:"id"`
	DeliveryDate    Date           `json:"delivery_date"`
	DeliveryWindow  DeliveryWindow `json:"delivery_time"`
	ClientName      string         `json:"client_name,omitempty"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	PhoneNumber     string         `json:"phone_number,omitempty"`
	Location        *Coordinate    `json:"location"`
	Driver          int            `json:"driver"`
	Sequence        *int           `json:"delivery_sequence"`
	Status          OrderStatus    `json:"status"`
	Source          OrderSource    `json:"source"`
	Errors          []OrderError   `json:"errors"`
	CartItems       []CartItem     `json:"cart_items,omitempty"`
	TotalAmount     float64        `json:"total_amount"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedBy       string         `json:"created_by,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

// HasDriver reports whether the order is assigned to driver 1 or 2.
func (o Order) HasDriver() bool { return o.Driver > 0 }

// HasLocation reports whether the order was geocoded.
func (o Order) HasLocation() bool { return o.Location != nil }

// OrderIn is the create payload.
type OrderIn struct {
	ClientName      string         `json:"client_name"`
	DeliveryDate    string         `json:"delivery_date"`
	DeliveryWindow  DeliveryWindow `json:"delivery_time"`
	DeliveryAddress string         `json:"delivery_address"`
	PhoneNumber     string         `json:"phone_number"`
	CartItems       []CartItem     `json:"cart_items"`
	TotalAmount     *float64       `json:"total_amount,omitempty"`
	PaymentMethod   string         `json:"payment_method"`
	Geolocation     *Coordinate    `json:"geolocation,omitempty"`
	Source          OrderSource    `json:"source,omitempty"`
	Notes           string         `json:"notes,omitempty"`
}

// CartTotal sums price times quantity over the cart.
func (in OrderIn) CartTotal() float64 {
	total := 0.0
	for _, it := range in.CartItems {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// OrderUpdate is the update payload. Driver equal to OriginalDriver means
// "recompute the driver"; anything else is a manual override.
type OrderUpdate struct {
	OrderIn
	ID             string      `json:"id"`
	OriginalDate   string      `json:"original_date"`
	OriginalDriver int         `json:"original_driver"`
	Driver         int         `json:"driver"`
	Status         OrderStatus `json:"status"`
}

// ScheduleRequest triggers the daily route sequencing run.
type ScheduleRequest struct {
	Date             string `json:"date"`
	AvailableDrivers []int  `json:"available_drivers"`
}

// ScheduleResult summarizes one ScheduleDay run.
type ScheduleResult struct {
	Date       Date               `json:"date"`
	Scheduled  int                `json:"scheduled"`
	Partitions []PartitionSummary `json:"partitions"`
	Failed     []PartitionSummary `json:"failed,omitempty"`
}

type PartitionSummary struct {
	Driver int            `json:"driver"`
	Window DeliveryWindow `json:"window"`
	Stops  int            `json:"stops"`
	Error  string         `json:"error,omitempty"`
}
