package orders

import (
	"errors"
	"math"
	"strings"

	"hiberry/internal/model"
	"hiberry/internal/planner"
)

// totalTolerance absorbs float rounding in price*quantity sums.
const totalTolerance = 1e-6

// validateIn checks a create/update payload and returns the parsed date
// and the cart total. All field problems are reported together.
func validateIn(in model.OrderIn) (model.Date, float64, error) {
	var errs []error
	required := func(field, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, invalid(field, "is required"))
		}
	}
	required("client_name", in.ClientName)
	required("delivery_address", in.DeliveryAddress)
	required("phone_number", in.PhoneNumber)
	required("payment_method", in.PaymentMethod)

	date, err := model.ParseDate(in.DeliveryDate)
	if err != nil {
		errs = append(errs, invalid("delivery_date", "%v", err))
	}
	if !in.DeliveryWindow.IsValid() {
		errs = append(errs, invalid("delivery_time", "must be %q or %q", model.Morning, model.Afternoon))
	}
	if in.Source != "" && !in.Source.IsValid() {
		errs = append(errs, invalid("source", "unknown source %q", in.Source))
	}

	for i, it := range in.CartItems {
		if strings.TrimSpace(it.SKU) == "" {
			errs = append(errs, invalid("cart_items", "item %d has no sku", i))
		}
		if it.Quantity < 0 {
			errs = append(errs, invalid("cart_items", "item %d quantity must be >= 0", i))
		}
		if it.Price < 0 || math.IsNaN(it.Price) || math.IsInf(it.Price, 0) {
			errs = append(errs, invalid("cart_items", "item %d price must be >= 0", i))
		}
	}
	total := in.CartTotal()
	if in.TotalAmount != nil {
		switch {
		case *in.TotalAmount < 0:
			errs = append(errs, invalid("total_amount", "must be >= 0"))
		case math.Abs(*in.TotalAmount-total) > totalTolerance:
			errs = append(errs, invalid("total_amount", "%.2f does not match the cart total %.2f", *in.TotalAmount, total))
		}
	}

	if g := in.Geolocation; g != nil {
		if !(g.Latitude >= -90 && g.Latitude <= 90) || !(g.Longitude >= -180 && g.Longitude <= 180) {
			errs = append(errs, invalid("geolocation", "coordinates out of range"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", 0, err
	}
	return date, total, nil
}

func validateDriver(field string, d int) error {
	if d == 0 {
		return nil
	}
	for _, known := range planner.Drivers {
		if d == known {
			return nil
		}
	}
	return invalid(field, "unknown driver %d", d)
}

// validateSchedule checks {date, available_drivers}.
func validateSchedule(req model.ScheduleRequest) (model.Date, []int, error) {
	var errs []error
	date, err := model.ParseDate(req.Date)
	if err != nil {
		errs = append(errs, invalid("date", "%v", err))
	}
	if len(req.AvailableDrivers) == 0 {
		errs = append(errs, invalid("available_drivers", "at least one driver is required"))
	}
	seen := map[int]bool{}
	for _, d := range req.AvailableDrivers {
		if d == 0 {
			errs = append(errs, invalid("available_drivers", "driver 0 is not a driver"))
			continue
		}
		if err := validateDriver("available_drivers", d); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d] {
			errs = append(errs, invalid("available_drivers", "driver %d listed twice", d))
		}
		seen[d] = true
	}
	if err := errors.Join(errs...); err != nil {
		return "", nil, err
	}
	return date, req.AvailableDrivers, nil
}
