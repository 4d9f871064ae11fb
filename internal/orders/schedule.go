package orders

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hiberry/internal/events"
	"hiberry/internal/metrics"
	"hiberry/internal/model"
	"hiberry/internal/planner"
)

// Schedule sequences every (driver, window) partition of req.Date and
// marks the orders Programmed. The result lists failed partitions; the
// error joins their *planner.PartitionError values and is nil when every
// partition was written.
func (s *Service) Schedule(ctx context.Context, req model.ScheduleRequest) (model.ScheduleResult, error) {
	date, drivers, err := validateSchedule(req)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	start := time.Now()
	log := s.logger.With(zap.String("date", date.String()), zap.Ints("available_drivers", drivers))

	unlock, err := s.lock(ctx, date)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	defer unlock()

	all, err := s.store.FetchByDate(ctx, date)
	if err != nil {
		return model.ScheduleResult{}, err
	}
	sched := planner.NewScheduler(s.rules, s.store, s.logger)
	sched.Parallelism = s.Parallelism
	rep := sched.Run(ctx, date, drivers, all)

	res := model.ScheduleResult{Date: date, Partitions: []model.PartitionSummary{}}
	for _, p := range rep.Partitions {
		sum := model.PartitionSummary{Driver: p.Driver, Window: p.Window, Stops: len(p.Orders)}
		data := map[string]any{"driver": p.Driver, "window": p.Window, "stops": len(p.Orders)}
		if p.Err != nil {
			sum.Error = p.Err.Error()
			res.Failed = append(res.Failed, sum)
			data["error"] = sum.Error
			s.publishDate(date, events.PartitionFailed, data)
			continue
		}
		res.Scheduled += len(p.Orders)
		res.Partitions = append(res.Partitions, sum)
		metrics.ScheduledStops.WithLabelValues(strconv.Itoa(p.Driver), string(p.Window)).Add(float64(len(p.Orders)))
		s.publishDate(date, events.PartitionScheduled, data)
	}

	outcome := "ok"
	runErr := rep.Err()
	if runErr != nil {
		outcome = "partial"
		log.Warn("schedule finished with failed partitions", zap.Int("failed", len(res.Failed)), zap.Error(runErr))
	} else {
		log.Info("schedule finished", zap.Int("scheduled", res.Scheduled), zap.Int("partitions", len(res.Partitions)))
	}
	metrics.ScheduleRuns.WithLabelValues(outcome).Inc()
	metrics.ScheduleDuration.Observe(time.Since(start).Seconds())
	return res, runErr
}
