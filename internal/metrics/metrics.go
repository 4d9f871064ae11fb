package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Assignments counts driver decisions by outcome reason and driver
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "driver_assignments_total", Help: "Driver assignment decisions by reason and driver."},
		[]string{"reason", "driver"},
	)
	// Geocodes counts geocoder lookups by outcome (found, not_found, error)
	Geocodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geocoder_lookups_total", Help: "Geocoder lookups by outcome."},
		[]string{"outcome"},
	)
	// LockWait is the time spent waiting for the per-date capacity lock
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "capacity_lock_wait_seconds", Help: "Wait for the per-date capacity lock.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}},
	)

	// ScheduleRuns counts ScheduleDay runs by outcome (ok, partial)
	ScheduleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_runs_total", Help: "Daily scheduling runs by outcome."},
		[]string{"outcome"},
	)
	// ScheduleDuration records the wall time of a scheduling run
	ScheduleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "schedule_run_duration_seconds", Help: "Daily scheduling run duration in seconds.", Buckets: prometheus.DefBuckets},
	)
	// ScheduledStops counts programmed stops per driver and window
	ScheduledStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduled_stops_total", Help: "Stops programmed by driver and window."},
		[]string{"driver", "window"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Assignments)
		Registry.MustRegister(Geocodes)
		Registry.MustRegister(LockWait)
		Registry.MustRegister(ScheduleRuns)
		Registry.MustRegister(ScheduleDuration)
		Registry.MustRegister(ScheduledStops)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
