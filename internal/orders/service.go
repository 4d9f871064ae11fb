// Package orders runs order intake and the daily scheduling run on top of
// the planner, the order store and the geocoder.
//
// Capacity decisions for a date are serialized with a DateLocker held from
// the snapshot fetch until the order is written, so two concurrent requests
// cannot both take the last slot of a shift.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hiberry/internal/events"
	"hiberry/internal/geo"
	"hiberry/internal/metrics"
	"hiberry/internal/model"
	"hiberry/internal/planner"
	"hiberry/internal/store"
)

const (
	msgNeedsGeo   = "Order requires geolocation coordinates to be updated manually"
	msgNoDriver   = "No drivers available"
	msgNoSchedule = "Order cannot be delivered in that window; pick another date or window"
)

type Service struct {
	store    store.OrderStore
	locker   store.DateLocker
	geocoder geo.Geocoder
	broker   events.Broker
	rules    planner.Rules
	logger   *zap.Logger

	// Parallelism bounds concurrent drivers in Schedule.
	Parallelism int
	now         func() time.Time
	newID       func() string
}

// NewService wires the service. broker may be nil.
func NewService(s store.OrderStore, locker store.DateLocker, g geo.Geocoder, b events.Broker, rules planner.Rules, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = store.NewMemoryLocker()
	}
	return &Service{
		store:       s,
		locker:      locker,
		geocoder:    g,
		broker:      b,
		rules:       rules,
		logger:      logger,
		Parallelism: len(planner.Drivers),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// Create validates in, geocodes it when needed, assigns a driver and
// persists the order.
//
// A geocoding failure is soft: the order is stored with status Error, no
// driver and an ADDRESS_NEEDS_GEO entry. A capacity or eligibility
// rejection is hard: nothing is stored and the order is returned with
// status Error next to a *BusinessError.
func (s *Service) Create(ctx context.Context, in model.OrderIn, actor string) (model.Order, error) {
	date, total, err := validateIn(in)
	if err != nil {
		return model.Order{}, err
	}
	o := buildOrder(s.newID(), date, total, in)
	o.Status = model.StatusCreated
	o.CreatedBy = actor
	o.CreatedAt = s.timestamp()

	log := s.logger.With(zap.String("order_id", o.ID), zap.String("date", date.String()))
	o.Location, err = s.locate(ctx, in)
	if err != nil {
		return model.Order{}, err
	}
	if o.Location == nil {
		log.Info("geolocation missing, order needs manual coordinates")
		o.Status = model.StatusError
		o.Errors = append(o.Errors, model.OrderError{Code: model.ErrCodeAddressNeedsGeo, Value: msgNeedsGeo})
		if err := s.store.Put(ctx, o); err != nil {
			return model.Order{}, err
		}
		s.publish(events.OrderCreated, o)
		return o, nil
	}

	unlock, err := s.lock(ctx, date)
	if err != nil {
		return model.Order{}, err
	}
	defer unlock()

	existing, err := s.store.FetchByDate(ctx, date)
	if err != nil {
		return model.Order{}, err
	}
	if err := s.assign(&o, existing, log); err != nil {
		return o, err
	}
	if err := s.store.Put(ctx, o); err != nil {
		return model.Order{}, err
	}
	log.Info("order created", zap.Int("driver", o.Driver), zap.String("status", string(o.Status)))
	s.publish(events.OrderCreated, o)
	return o, nil
}

// Update rewrites an order. When Driver equals OriginalDriver the driver is
// recomputed, otherwise Driver is applied as is. A changed delivery date
// moves the record to the new date partition.
func (s *Service) Update(ctx context.Context, upd model.OrderUpdate, actor string) (model.Order, error) {
	date, total, err := validateIn(upd.OrderIn)
	if err != nil {
		return model.Order{}, err
	}
	var errs []error
	if upd.ID == "" {
		errs = append(errs, invalid("id", "is required"))
	}
	origDate := date
	if upd.OriginalDate != "" {
		if origDate, err = model.ParseDate(upd.OriginalDate); err != nil {
			errs = append(errs, invalid("original_date", "%v", err))
		}
	}
	if upd.Status != "" && !upd.Status.IsValid() {
		errs = append(errs, invalid("status", "unknown status %q", upd.Status))
	}
	errs = append(errs, validateDriver("driver", upd.Driver), validateDriver("original_driver", upd.OriginalDriver))
	if err := errors.Join(errs...); err != nil {
		return model.Order{}, err
	}

	log := s.logger.With(zap.String("order_id", upd.ID), zap.String("date", date.String()))
	loc, err := s.locate(ctx, upd.OrderIn)
	if err != nil {
		return model.Order{}, err
	}

	// the current record is read under the lock so a concurrent schedule
	// run is not overwritten with a stale status or sequence
	unlock, err := s.lockDates(ctx, origDate, date)
	if err != nil {
		return model.Order{}, err
	}
	defer unlock()

	current, err := s.store.Get(ctx, origDate, upd.ID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, &BusinessError{Code: CodeOrderNotFound, Message: fmt.Sprintf("order %s not found on %s", upd.ID, origDate)}
	}
	if err != nil {
		return model.Order{}, err
	}

	o := buildOrder(upd.ID, date, total, upd.OrderIn)
	o.Location = loc
	o.CreatedBy, o.CreatedAt = current.CreatedBy, current.CreatedAt
	o.UpdatedBy, o.UpdatedAt = actor, s.timestamp()
	o.Status = current.Status
	if upd.Status != "" {
		o.Status = upd.Status
	}
	moved := origDate != date
	if moved && upd.Status == "" {
		o.Status = model.StatusRescheduled
	}
	recompute := upd.Driver == upd.OriginalDriver

	switch {
	case o.Location == nil:
		log.Info("geolocation missing, order needs manual coordinates")
		o.Status = model.StatusError
		o.Errors = append(o.Errors, model.OrderError{Code: model.ErrCodeAddressNeedsGeo, Value: msgNeedsGeo})
		if !recompute {
			o.Driver = upd.Driver
		}
	case recompute:
		existing, err := s.store.FetchByDate(ctx, date)
		if err != nil {
			return model.Order{}, err
		}
		if err := s.assign(&o, without(existing, o.ID), log); err != nil {
			return o, err
		}
	default:
		o.Driver = upd.Driver
		log.Info("manual driver override", zap.Int("driver", o.Driver), zap.Int("original_driver", upd.OriginalDriver))
	}
	if o.Location != nil && upd.Status == "" && o.Status == model.StatusError {
		// coordinates were fixed by this update
		o.Status = model.StatusCreated
	}
	if !moved && o.Driver == current.Driver && current.Sequence != nil {
		seq := *current.Sequence
		o.Sequence = &seq
	}
	if o.Sequence == nil && upd.Status == "" && o.Status == model.StatusProgrammed {
		// the route position is gone until the next schedule run
		o.Status = model.StatusCreated
	}

	// write the new record before removing the old one so a failed delete
	// leaves a duplicate rather than losing the order
	if err := s.store.Put(ctx, o); err != nil {
		return model.Order{}, err
	}
	evt := events.OrderUpdated
	if moved {
		if err := s.store.Delete(ctx, origDate, o.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return model.Order{}, err
		}
		log.Info("order rescheduled", zap.String("original_date", origDate.String()))
		evt = events.OrderRescheduled
		s.publishDate(origDate, events.OrderDeleted, map[string]any{"id": o.ID})
	}
	log.Info("order updated", zap.Int("driver", o.Driver), zap.String("status", string(o.Status)))
	s.publish(evt, o)
	return o, nil
}

// Delete removes the order id from the date partition.
func (s *Service) Delete(ctx context.Context, date, id string) error {
	d, err := model.ParseDate(date)
	if err != nil {
		return invalid("delivery_date", "%v", err)
	}
	if id == "" {
		return invalid("id", "is required")
	}
	unlock, err := s.lock(ctx, d)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.store.Delete(ctx, d, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &BusinessError{Code: CodeOrderNotFound, Message: fmt.Sprintf("order %s not found on %s", id, d)}
		}
		return err
	}
	s.logger.Info("order deleted", zap.String("order_id", id), zap.String("date", d.String()))
	s.publishDate(d, events.OrderDeleted, map[string]any{"id": id})
	return nil
}

// List returns the orders of a date.
func (s *Service) List(ctx context.Context, date string) ([]model.Order, error) {
	d, err := model.ParseDate(date)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}
	return s.store.FetchByDate(ctx, d)
}

// assign runs the assignment engine for o against existing and sets the
// driver, or marks o as rejected and returns a *BusinessError.
func (s *Service) assign(o *model.Order, existing []model.Order, log *zap.Logger) error {
	dec := s.rules.Decide(*o.Location, o.DeliveryWindow, o.DeliveryDate, existing, o.Source)
	metrics.Assignments.WithLabelValues(dec.Reason, strconv.Itoa(dec.Driver)).Inc()
	if !dec.Assigned() {
		msg := msgNoDriver
		if dec.Reason == planner.ReasonIneligible {
			msg = msgNoSchedule
		}
		log.Info("no driver available",
			zap.String("reason", dec.Reason),
			zap.String("sector", dec.Sector.String()),
			zap.String("window", string(o.DeliveryWindow)),
			zap.Int("existing", len(existing)),
		)
		o.Driver = 0
		o.Status = model.StatusError
		o.Errors = append(o.Errors, model.OrderError{Code: model.ErrCodeNoDriverAvailable, Value: msg})
		return &BusinessError{Code: CodeNoDriverAvailable, Message: msgNoDriver}
	}
	o.Driver = dec.Driver
	return nil
}

// locate returns the payload coordinates or asks the geocoder. Geocoder
// failures yield a nil location; only a cancelled context is an error.
func (s *Service) locate(ctx context.Context, in model.OrderIn) (*model.Coordinate, error) {
	if in.Geolocation != nil {
		c := *in.Geolocation
		return &c, nil
	}
	if s.geocoder == nil {
		metrics.Geocodes.WithLabelValues("disabled").Inc()
		return nil, nil
	}
	c, err := s.geocoder.Resolve(ctx, in.DeliveryAddress)
	switch {
	case err == nil:
		metrics.Geocodes.WithLabelValues("found").Inc()
		return &c, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, geo.ErrAddressNotFound):
		metrics.Geocodes.WithLabelValues("not_found").Inc()
	default:
		metrics.Geocodes.WithLabelValues("error").Inc()
		s.logger.Warn("geocoder failed", zap.String("address", in.DeliveryAddress), zap.Error(err))
	}
	return nil, nil
}

func (s *Service) lock(ctx context.Context, date model.Date) (func(), error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, date)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("lock orders for %s: %w", date, err)
	}
	return unlock, nil
}

// lockDates locks every distinct date in ascending order and returns a
// release for all of them.
func (s *Service) lockDates(ctx context.Context, dates ...model.Date) (func(), error) {
	sorted := append([]model.Date(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1] {
			continue
		}
		unlock, err := s.lock(ctx, d)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (s *Service) timestamp() string { return s.now().Format(time.RFC3339) }

func (s *Service) publish(typ string, o model.Order) {
	s.publishDate(o.DeliveryDate, typ, map[string]any{
		"id":     o.ID,
		"driver": o.Driver,
		"status": o.Status,
		"window": o.DeliveryWindow,
	})
}

func (s *Service) publishDate(date model.Date, typ string, data map[string]any) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(date.String(), events.Event{Type: typ, Data: data})
}

func buildOrder(id string, date model.Date, total float64, in model.OrderIn) model.Order {
	src := in.Source
	if src == "" {
		src = model.SourceApp
	}
	return model.Order{
		ID:              id,
		DeliveryDate:    date,
		DeliveryWindow:  in.DeliveryWindow,
		ClientName:      in.ClientName,
		DeliveryAddress: in.DeliveryAddress,
		PhoneNumber:     in.PhoneNumber,
		Source:          src,
		Errors:          []model.OrderError{},
		CartItems:       append([]model.CartItem(nil), in.CartItems...),
		TotalAmount:     total,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
	}
}

func without(orders []model.Order, id string) []model.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}
