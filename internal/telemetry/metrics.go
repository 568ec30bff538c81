package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at server startup and reuse for the process lifetime.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates pre-configured HTTP server instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("hubapi/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records one HTTP request. Called from middleware after
// the handler completes.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// CoordinatorMetrics holds instruments for the session, lock and query
// lifecycle. Instantiated once and shared by the services.
type CoordinatorMetrics struct {
	SessionsStarted metric.Int64Counter       // Successful logins
	SessionsExpired metric.Int64Counter       // Sessions reaped or idled out
	ActiveSessions  metric.Int64UpDownCounter // Currently live sessions

	LockAcquisitions  metric.Int64Counter // Lock acquisitions, takeover attribute marks lapsed-lease steals
	LockReleases      metric.Int64Counter // Explicit and session-end releases
	DocumentWrites    metric.Int64Counter // Successful versioned document writes
	QueriesRun        metric.Int64Counter // Checker dispatches
	ResultsReported   metric.Int64Counter // Result callbacks, stale attribute marks dropped ones
	QueryInvalidation metric.Int64Counter // Queries flipped to outdated by document writes
}

// NewCoordinatorMetrics creates the domain instruments.
func NewCoordinatorMetrics() (*CoordinatorMetrics, error) {
	meter := otel.Meter("hubapi/coordinator")

	m := &CoordinatorMetrics{}
	var err error

	if m.SessionsStarted, err = meter.Int64Counter(
		"hub.sessions.started",
		metric.WithDescription("Total successful logins"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.SessionsExpired, err = meter.Int64Counter(
		"hub.sessions.expired",
		metric.WithDescription("Sessions removed by logout or expiry"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"hub.sessions.active",
		metric.WithDescription("Currently live sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.LockAcquisitions, err = meter.Int64Counter(
		"hub.locks.acquired",
		metric.WithDescription("Edit lock acquisitions"),
		metric.WithUnit("{lock}"),
	); err != nil {
		return nil, err
	}

	if m.LockReleases, err = meter.Int64Counter(
		"hub.locks.released",
		metric.WithDescription("Edit lock releases"),
		metric.WithUnit("{lock}"),
	); err != nil {
		return nil, err
	}

	if m.DocumentWrites, err = meter.Int64Counter(
		"hub.documents.written",
		metric.WithDescription("Successful versioned document writes"),
		metric.WithUnit("{write}"),
	); err != nil {
		return nil, err
	}

	if m.QueriesRun, err = meter.Int64Counter(
		"hub.queries.run",
		metric.WithDescription("Query dispatches to the checker"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}

	if m.ResultsReported, err = meter.Int64Counter(
		"hub.queries.results",
		metric.WithDescription("Checker results reported back"),
		metric.WithUnit("{result}"),
	); err != nil {
		return nil, err
	}

	if m.QueryInvalidation, err = meter.Int64Counter(
		"hub.queries.invalidated",
		metric.WithDescription("Queries marked outdated by document writes"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordLockAcquired records a lock acquisition; takeover marks a
// lapsed lease being taken from its previous holder.
func (m *CoordinatorMetrics) RecordLockAcquired(ctx context.Context, takeover bool) {
	m.LockAcquisitions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("takeover", takeover)))
}

// RecordResult records a checker result report; stale marks results
// dropped for arriving after the project moved on.
func (m *CoordinatorMetrics) RecordResult(ctx context.Context, stale bool) {
	m.ResultsReported.Add(ctx, 1, metric.WithAttributes(attribute.Bool("stale", stale)))
}
