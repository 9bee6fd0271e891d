// Package metrics records latency and outcome of every engine API call.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/docker/docker/errdefs"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cicd"

// Collector holds the engine API metrics.
type Collector struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	cleaned prometheus.Counter
}

// NewCollector creates the collector and registers it with reg. A nil reg
// leaves the metrics unregistered, which tests use.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docker_api_calls_total",
			Help:      "Docker API calls by api name and status.",
		}, []string{"api", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "docker_api_latency_seconds",
			Help:      "Docker API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_containers_cleaned_total",
			Help:      "Test containers removed by cleanup.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.calls, c.latency, c.cleaned)
	}
	return c
}

// Track starts timing an API call. The returned func records the outcome
// and must be called exactly once with the call's error.
func (c *Collector) Track(api string) func(error) {
	start := time.Now()
	return func(err error) {
		c.calls.WithLabelValues(api, Status(err)).Inc()
		c.latency.WithLabelValues(api).Observe(time.Since(start).Seconds())
	}
}

// AddCleaned increments the cleaned-containers counter.
func (c *Collector) AddCleaned(n int) {
	c.cleaned.Add(float64(n))
}

// Calls returns the counter for tests and debug output.
func (c *Collector) Calls() *prometheus.CounterVec {
	return c.calls
}

// Status classifies an API error into a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errdefs.IsNotFound(err), errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errdefs.IsConflict(err), errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
