package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/laudofy/laudofy"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Outbound HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// CSRF handshake metrics
	CSRFRefreshTotal       metric.Int64Counter
	CSRFRefreshErrorsTotal metric.Int64Counter
	CSRFRetryTotal         metric.Int64Counter

	// Session metrics
	SessionExpiredTotal metric.Int64Counter

	// Live channel metrics
	LiveEventsTotal     metric.Int64Counter
	LiveReconnectsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.HTTPRequestsTotal, _ = meter.Int64Counter(
		"laudofy.http.requests.total",
		metric.WithDescription("Total number of backend requests sent"),
		metric.WithUnit("{request}"),
	)

	m.HTTPRequestDuration, _ = meter.Float64Histogram(
		"laudofy.http.request.duration",
		metric.WithDescription("Duration of backend requests"),
		metric.WithUnit("ms"),
	)

	m.CSRFRefreshTotal, _ = meter.Int64Counter(
		"laudofy.csrf.refresh.total",
		metric.WithDescription("Total number of CSRF token fetches"),
		metric.WithUnit("{refresh}"),
	)

	m.CSRFRefreshErrorsTotal, _ = meter.Int64Counter(
		"laudofy.csrf.refresh.errors.total",
		metric.WithDescription("Total number of failed CSRF token fetches"),
		metric.WithUnit("{error}"),
	)

	m.CSRFRetryTotal, _ = meter.Int64Counter(
		"laudofy.csrf.retry.total",
		metric.WithDescription("Total number of requests resubmitted after a CSRF rejection"),
		metric.WithUnit("{request}"),
	)

	m.SessionExpiredTotal, _ = meter.Int64Counter(
		"laudofy.session.expired.total",
		metric.WithDescription("Total number of sessions ended by an unrecoverable auth failure"),
		metric.WithUnit("{session}"),
	)

	m.LiveEventsTotal, _ = meter.Int64Counter(
		"laudofy.live.events.total",
		metric.WithDescription("Total number of live update events received"),
		metric.WithUnit("{event}"),
	)

	m.LiveReconnectsTotal, _ = meter.Int64Counter(
		"laudofy.live.reconnects.total",
		metric.WithDescription("Total number of live channel reconnection attempts"),
		metric.WithUnit("{attempt}"),
	)

	return m
}
