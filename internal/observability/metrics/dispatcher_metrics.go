// Package metrics exposes Prometheus instruments for the dispatch engine.
package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	DispatcherErrorTypeDeadlineExceeded = "deadline_exceeded"
	DispatcherErrorTypePayment          = "payment"
	DispatcherErrorTypeDB               = "db"
	DispatcherErrorTypeBusinessRule     = "business_rule"
)

const (
	DispatchOutcomeCharged     = "charged"
	DispatchOutcomeZeroTotal   = "zero_total"
	DispatchOutcomeReplayed    = "replayed"
	DispatchOutcomeDeclined    = "declined"
	DispatchOutcomeEmptyBasket = "empty_basket"
)

// Config carries the constant labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// DispatcherMetrics captures dispatch run health signals.
type DispatcherMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobErrors         *prometheus.CounterVec
	dispatchProcessed *prometheus.CounterVec
	dispatchFailed    *prometheus.CounterVec
	overdue           prometheus.Gauge
	runLoopLag        prometheus.Observer
}

var (
	dispatcherMetricsOnce sync.Once
	dispatcherMetrics     *DispatcherMetrics
)

// Dispatcher returns the singleton dispatcher metrics registry.
func Dispatcher() *DispatcherMetrics {
	return DispatcherWithConfig(Config{})
}

// DispatcherWithConfig returns the singleton dispatcher metrics registry
// using config labels.
func DispatcherWithConfig(cfg Config) *DispatcherMetrics {
	dispatcherMetricsOnce.Do(func() {
		dispatcherMetrics = newDispatcherMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return dispatcherMetrics
}

// ResetDispatcherMetricsForTest resets the metrics singleton for tests.
func ResetDispatcherMetricsForTest() {
	dispatcherMetricsOnce = sync.Once{}
	dispatcherMetrics = nil
}

func newDispatcherMetrics(registerer prometheus.Registerer, cfg Config) *DispatcherMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "harvestbox"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvestbox_dispatcher_job_runs_total",
		Help:        "Dispatcher job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "harvestbox_dispatcher_job_duration_seconds",
		Help:        "Dispatcher job latency to keep daily dispatch runs inside their window.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvestbox_dispatcher_job_errors_total",
		Help:        "Dispatcher job errors by low-cardinality type.",
		ConstLabels: constLabels,
	}, []string{"job", "error_type"})
	dispatchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvestbox_dispatch_processed_total",
		Help:        "Subscriptions dispatched by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	dispatchFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvestbox_dispatch_failed_total",
		Help:        "Dispatch attempts that produced no shippable order.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "harvestbox_dispatch_overdue_subscriptions",
		Help:        "Active subscriptions whose dispatch date has passed without an order.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "harvestbox_dispatcher_runloop_lag_seconds",
		Help:        "Dispatcher run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobErrors,
		dispatchProcessed,
		dispatchFailed,
		overdue,
		runLoopLag,
	)

	return &DispatcherMetrics{
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobErrors:         jobErrors,
		dispatchProcessed: dispatchProcessed,
		dispatchFailed:    dispatchFailed,
		overdue:           overdue,
		runLoopLag:        runLoopLag,
	}
}

// IncJobRun increments the run counter for a dispatcher job.
func (m *DispatcherMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records dispatcher job latency in seconds.
func (m *DispatcherMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobError increments the dispatcher job error counter with classification.
func (m *DispatcherMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyDispatcherError(err)).Inc()
}

// IncDispatchProcessed counts one dispatched subscription by outcome.
func (m *DispatcherMetrics) IncDispatchProcessed(outcome string) {
	if m == nil || m.dispatchProcessed == nil {
		return
	}
	m.dispatchProcessed.WithLabelValues(outcome).Inc()
}

// IncDispatchFailed counts one dispatch attempt that failed, by reason.
func (m *DispatcherMetrics) IncDispatchFailed(reason string) {
	if m == nil || m.dispatchFailed == nil {
		return
	}
	m.dispatchFailed.WithLabelValues(reason).Inc()
}

// SetOverdue records the current overdue subscription count.
func (m *DispatcherMetrics) SetOverdue(count int) {
	if m == nil || m.overdue == nil {
		return
	}
	m.overdue.Set(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *DispatcherMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ClassifyDispatcherError maps errors to a low-cardinality type for labels.
func ClassifyDispatcherError(err error) string {
	if err == nil {
		return DispatcherErrorTypeBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return DispatcherErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return DispatcherErrorTypeDB
	}
	return DispatcherErrorTypeBusinessRule
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
