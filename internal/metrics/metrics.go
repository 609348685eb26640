// Package metrics holds the prometheus collectors for the license service.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license_service"

type Collector struct {
	registry *prometheus.Registry

	Verdicts        *prometheus.CounterVec
	Activations     *prometheus.CounterVec
	LedgerRetries   prometheus.Counter
	LedgerDuration  prometheus.Histogram
	LicensesIssued  prometheus.Counter
	KeyCollisions   prometheus.Counter
	StatusChanges   *prometheus.CounterVec
	RateLimited     prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	ExpiringLicense prometheus.Gauge
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: reg,
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_verdicts_total",
			Help:      "Validation verdicts by outcome",
		}, []string{"outcome"}),
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_activations_total",
			Help:      "Activation ledger results",
		}, []string{"result"}),
		LedgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_retries_total",
			Help:      "Activation attempts retried after lock or constraint contention",
		}),
		LedgerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_activate_duration_seconds",
			Help:      "Time spent in the activation critical section, including retries",
			Buckets:   prometheus.DefBuckets,
		}),
		LicensesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_issued_total",
			Help:      "Licenses issued",
		}),
		KeyCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_key_collisions_total",
			Help:      "Generated license keys rejected because they already existed",
		}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_status_changes_total",
			Help:      "License status transitions by target status",
		}, []string{"status"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests refused by the validation rate limiter",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ExpiringLicense: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "licenses_expiring",
			Help:      "Active licenses expiring inside the warning window at the last sweep",
		}),
	}

	reg.MustRegister(
		c.Verdicts, c.Activations, c.LedgerRetries, c.LedgerDuration,
		c.LicensesIssued, c.KeyCollisions, c.StatusChanges, c.RateLimited,
		c.HTTPRequests, c.HTTPDuration, c.ExpiringLicense,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordVerdict(outcome string) {
	if c == nil {
		return
	}
	c.Verdicts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordActivation(result string, took time.Duration) {
	if c == nil {
		return
	}
	c.Activations.WithLabelValues(result).Inc()
	c.LedgerDuration.Observe(took.Seconds())
}

func (c *Collector) RecordLedgerRetry() {
	if c == nil {
		return
	}
	c.LedgerRetries.Inc()
}

func (c *Collector) RecordIssued() {
	if c == nil {
		return
	}
	c.LicensesIssued.Inc()
}

func (c *Collector) RecordKeyCollision() {
	if c == nil {
		return
	}
	c.KeyCollisions.Inc()
}

func (c *Collector) RecordStatusChange(status string) {
	if c == nil {
		return
	}
	c.StatusChanges.WithLabelValues(status).Inc()
}

func (c *Collector) RecordRateLimited() {
	if c == nil {
		return
	}
	c.RateLimited.Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, took time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

func (c *Collector) SetExpiring(n int) {
	if c == nil {
		return
	}
	c.ExpiringLicense.Set(float64(n))
}
