// Package shopify maps Shopify orders/create webhooks to order intake.
package shopify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hiberry/internal/integrations"
	"hiberry/internal/model"
	"hiberry/internal/webhooks"
)

// SignatureHeader carries the base64 HMAC of the webhook body.
const SignatureHeader = "X-Shopify-Hmac-Sha256"

// Note attribute names set by the storefront checkout.
const (
	noteDueDate         = "Order Due Date"
	noteDueTime         = "Order Due Time"
	noteFulfillmentType = "Order Fulfillment Type"
	storePickup         = "Store Pickup"
)

// dueDateLayout is the checkout date format, e.g. "Wed, 20 Dec 2023".
const dueDateLayout = "Mon, 2 Jan 2006"

// Amount accepts the decimal strings Shopify sends as well as numbers.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", b)
	}
	*a = Amount(f)
	return nil
}

type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Address struct {
	Address1  string   `json:"address1"`
	Phone     string   `json:"phone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LineItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    Amount `json:"price"`
	Quantity int    `json:"quantity"`
}

type Order struct {
	Customer             Customer        `json:"customer"`
	BillingAddress       *Address        `json:"billing_address"`
	ShippingAddress      *Address        `json:"shipping_address"`
	LineItems            []LineItem      `json:"line_items"`
	CurrentSubtotalPrice Amount          `json:"current_subtotal_price"`
	Note                 string          `json:"note"`
	PaymentGatewayNames  []string        `json:"payment_gateway_names"`
	NoteAttributes       []NoteAttribute `json:"note_attributes"`
}

func (o Order) note(name string) string {
	for _, a := range o.NoteAttributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// coordinates come from the shipping address, or from the billing address
// when both name the same street.
func (o Order) coordinates() *model.Coordinate {
	ship, bill := o.ShippingAddress, o.BillingAddress
	if ship == nil {
		return nil
	}
	if ship.Latitude != nil && ship.Longitude != nil {
		return &model.Coordinate{Latitude: *ship.Latitude, Longitude: *ship.Longitude}
	}
	if bill != nil && bill.Address1 == ship.Address1 && bill.Latitude != nil && bill.Longitude != nil {
		return &model.Coordinate{Latitude: *bill.Latitude, Longitude: *bill.Longitude}
	}
	return nil
}

// Adapter verifies and maps Shopify order webhooks.
type Adapter struct {
	Secret string
}

func New(secret string) *Adapter { return &Adapter{Secret: secret} }

func (a *Adapter) Name() string { return "shopify" }

func (a *Adapter) Verify(h http.Header, body []byte) bool {
	return webhooks.VerifyHMACBase64(a.Secret, body, h.Get(SignatureHeader))
}

func (a *Adapter) MapOrder(body []byte) (model.OrderIn, error) {
	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return model.OrderIn{}, a.fail("body", err)
	}
	return a.Map(o)
}

// Map translates a decoded order. Store pickups and orders without a
// shipping address yield integrations.ErrNotDeliverable.
func (a *Adapter) Map(o Order) (model.OrderIn, error) {
	if ft := o.note(noteFulfillmentType); ft == storePickup {
		return model.OrderIn{}, fmt.Errorf("%w: fulfillment type %q", integrations.ErrNotDeliverable, ft)
	}
	if o.ShippingAddress == nil {
		return model.OrderIn{}, fmt.Errorf("%w: shipping address is missing", integrations.ErrNotDeliverable)
	}

	due, err := time.Parse(dueDateLayout, strings.TrimSpace(o.note(noteDueDate)))
	if err != nil {
		return model.OrderIn{}, a.fail(noteDueDate, errors.New("expected ddd, dd MMM yyyy"))
	}
	window, err := model.ParseDeliveryWindow(strings.TrimSpace(o.note(noteDueTime)))
	if err != nil {
		return model.OrderIn{}, a.fail(noteDueTime, err)
	}

	items := make([]model.CartItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		sku := li.SKU
		if sku == "" {
			sku = li.Name
		}
		items = append(items, model.CartItem{SKU: sku, Name: li.Name, Quantity: li.Quantity, Price: float64(li.Price)})
	}
	total := float64(o.CurrentSubtotalPrice)

	return model.OrderIn{
		ClientName:      strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName),
		DeliveryDate:    due.Format(model.DateLayout),
		DeliveryWindow:  window,
		DeliveryAddress: o.ShippingAddress.Address1,
		PhoneNumber:     o.ShippingAddress.Phone,
		CartItems:       items,
		TotalAmount:     &total,
		PaymentMethod:   strings.Join(o.PaymentGatewayNames, ","),
		Geolocation:     o.coordinates(),
		Source:          model.SourceStorefront,
		Notes:           o.Note,
	}, nil
}

func (a *Adapter) fail(field string, err error) error {
	return &integrations.MappingError{Adapter: a.Name(), Field: field, Err: err}
}
