// Package analytics provides rate_limited.Analytics sinks exporting
// decisions as Prometheus metrics and structured logs.
package analytics

import (
	"context"
	"strconv"

	"github.com/aryangodara/rate_limited"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ rate_limited.Analytics = &PrometheusAnalytics{}
)

// Event label values.
const (
	EventBlocked          = "blocked"
	EventDisabled         = "disabled"
	EventExceeded         = "exceeded"
	EventRetryInterrupted = "retry_interrupted"
	EventSucceeded        = "succeeded"
)

// PrometheusAnalytics counts decisions per event and records how many
// attempts admitted or exhausted calls needed.
//
// The following metrics are exposed:
//
//   - rate_limited_events_total{event,retry}: counter of decisions
//   - rate_limited_attempts{event}: histogram of checks per call
type PrometheusAnalytics struct {
	eventsTotal *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
}

// NewPrometheusAnalytics creates the sink and registers its collectors on
// r. Collectors already registered by another instance are reused.
func NewPrometheusAnalytics(r prometheus.Registerer) *PrometheusAnalytics {
	a := &PrometheusAnalytics{}

	a.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rate_limited",
			Name:      "events_total",
			Help:      "Total number of rate limiting decisions.",
		},
		[]string{"event", "retry"},
	)
	if err := r.Register(a.eventsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			a.eventsTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	a.attempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rate_limited",
			Name:      "attempts",
			Help:      "Number of rate limit checks made by a guarded call.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
		[]string{"event"},
	)
	if err := r.Register(a.attempts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			a.attempts = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}

	return a
}

func (a *PrometheusAnalytics) Blocked(_ context.Context, _ rate_limited.Call, opts rate_limited.Options, _ string) {
	a.count(EventBlocked, opts)
}

func (a *PrometheusAnalytics) Disabled(_ context.Context, _ rate_limited.Call, opts rate_limited.Options, _ string) {
	a.count(EventDisabled, opts)
}

func (a *PrometheusAnalytics) Exceeded(_ context.Context, _ rate_limited.Call, opts rate_limited.Options, _ string, attempts int) {
	a.count(EventExceeded, opts)
	a.attempts.WithLabelValues(EventExceeded).Observe(float64(attempts))
}

func (a *PrometheusAnalytics) RetryInterrupted(_ context.Context, _ rate_limited.Call, opts rate_limited.Options, _ string) {
	a.count(EventRetryInterrupted, opts)
}

func (a *PrometheusAnalytics) Succeeded(_ context.Context, _ rate_limited.Call, opts rate_limited.Options, _ string, attempts int) {
	a.count(EventSucceeded, opts)
	a.attempts.WithLabelValues(EventSucceeded).Observe(float64(attempts))
}

// Keys are left out of the labels, their cardinality is unbounded.
func (a *PrometheusAnalytics) count(event string, opts rate_limited.Options) {
	a.eventsTotal.WithLabelValues(event, strconv.FormatBool(opts.RetryEnabled)).Inc()
}
