package planner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hiberry/internal/model"
)

// BatchWriter persists the sequence, driver and status of a batch.
type BatchWriter interface {
	BulkUpdate(ctx context.Context, orders []model.Order) error
}

// PartitionError reports a failed (date, driver, window) write.
type PartitionError struct {
	Date   model.Date
	Driver int
	Window model.DeliveryWindow
	Err    error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("schedule %s driver %d %q: %v", e.Date, e.Driver, e.Window, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

// Partition is one sequenced (driver, window) batch.
type Partition struct {
	Driver int
	Window model.DeliveryWindow
	Orders []model.Order
	// Skipped counts orders in the partition without coordinates.
	Skipped int
	Err     error
}

// Report is the outcome of one scheduling run.
type Report struct {
	Date       model.Date
	Partitions []Partition
}

// Updated returns the orders of every partition that was persisted.
func (r Report) Updated() []model.Order {
	var out []model.Order
	for _, p := range r.Partitions {
		if p.Err == nil {
			out = append(out, p.Orders...)
		}
	}
	return out
}

// Err joins the partition failures, nil when every write succeeded.
func (r Report) Err() error {
	var errs []error
	for _, p := range r.Partitions {
		if p.Err != nil {
			errs = append(errs, &PartitionError{Date: r.Date, Driver: p.Driver, Window: p.Window, Err: p.Err})
		}
	}
	return errors.Join(errs...)
}

// Scheduler sequences a day's orders per driver and window and writes them
// back with status Programmed.
type Scheduler struct {
	Rules     Rules
	Sequencer Sequencer
	Writer    BatchWriter
	Logger    *zap.Logger
	// Parallelism bounds how many drivers are sequenced at once.
	Parallelism int
}

func NewScheduler(rules Rules, w BatchWriter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{Rules: rules, Sequencer: rules.Sequencer(), Writer: w, Logger: logger, Parallelism: len(Drivers)}
}

// ScheduleDay sequences and persists every (driver, window) partition of
// date. A failed write does not undo or stop the other partitions; the
// returned error names each failed partition.
func (s *Scheduler) ScheduleDay(ctx context.Context, date model.Date, availableDrivers []int, allOrders []model.Order) ([]model.Order, error) {
	rep := s.Run(ctx, date, availableDrivers, allOrders)
	return rep.Updated(), rep.Err()
}

// Run is ScheduleDay returning the per-partition report.
func (s *Scheduler) Run(ctx context.Context, date model.Date, availableDrivers []int, allOrders []model.Order) Report {
	work := append([]model.Order(nil), allOrders...)
	if len(availableDrivers) == 1 {
		only := availableDrivers[0]
		for i := range work {
			if !work[i].HasDriver() {
				work[i].Driver = only
			}
		}
	}

	perDriver := make([][]Partition, len(availableDrivers))
	var g errgroup.Group
	if s.Parallelism > 0 {
		g.SetLimit(s.Parallelism)
	}
	for i, driver := range availableDrivers {
		i, driver := i, driver
		g.Go(func() error {
			perDriver[i] = s.scheduleDriver(ctx, date, driver, work)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Date: date}
	for _, parts := range perDriver {
		rep.Partitions = append(rep.Partitions, parts...)
	}
	return rep
}

// scheduleDriver runs Morning then Afternoon; the afternoon route starts
// where the morning one ended.
func (s *Scheduler) scheduleDriver(ctx context.Context, date model.Date, driver int, orders []model.Order) []Partition {
	log := s.Logger.With(zap.String("date", date.String()), zap.Int("driver", driver))
	start := s.Rules.Depot
	var parts []Partition
	for _, window := range model.Windows {
		batch, skipped := selectPartition(orders, driver, window)
		if skipped > 0 {
			log.Warn("orders without coordinates left out of route", zap.String("window", string(window)), zap.Int("count", skipped))
		}
		if len(batch) == 0 {
			continue
		}
		p := Partition{Driver: driver, Window: window, Skipped: skipped}
		if err := ctx.Err(); err != nil {
			p.Err = err
			parts = append(parts, p)
			continue
		}

		byID := make(map[string]model.Order, len(batch))
		stops := make([]Stop, 0, len(batch))
		for _, o := range batch {
			byID[o.ID] = o
			stops = append(stops, Stop{ID: o.ID, Location: *o.Location})
		}
		route := s.Sequencer.Sequence(stops, start)
		for _, st := range route {
			o := byID[st.ID]
			seq := st.Sequence
			o.Sequence = &seq
			o.Status = model.StatusProgrammed
			p.Orders = append(p.Orders, o)
		}
		start = route[len(route)-1].Location

		if err := s.Writer.BulkUpdate(ctx, p.Orders); err != nil {
			log.Error("failed to persist schedule partition", zap.String("window", string(window)), zap.Error(err))
			p.Err = err
		} else {
			log.Info("schedule partition programmed", zap.String("window", string(window)), zap.Int("stops", len(p.Orders)))
		}
		parts = append(parts, p)
	}
	return parts
}

func selectPartition(orders []model.Order, driver int, window model.DeliveryWindow) ([]model.Order, int) {
	var out []model.Order
	skipped := 0
	for _, o := range orders {
		if o.Driver != driver || o.DeliveryWindow != window {
			continue
		}
		if !o.HasLocation() {
			skipped++
			continue
		}
		out = append(out, o)
	}
	return out, skipped
}
