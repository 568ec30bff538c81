package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a span for a service operation.
//
// Usage in services:
//
//	ctx, span := telemetry.StartSpan(ctx, "hubapi/services/project", "project.UpdateDocument",
//	    attribute.String(telemetry.AttrProjectID, projectID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets its status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Common attribute keys for coordinator services
const (
	AttrUserID    = "user.id"
	AttrSessionID = "session.id"

	AttrProjectID      = "project.id"
	AttrProjectVersion = "project.version"

	AttrQueryID = "query.id"

	AttrAccessAction = "access.action"
	AttrAccessLevel  = "access.level"
)
