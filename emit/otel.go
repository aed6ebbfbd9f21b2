package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each Event into a single, immediately-ended OpenTelemetry
// span. It is appropriate for point-in-time events (stage start/complete,
// transitions) rather than long-running spans.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an emitter from a configured tracer, e.g.
// otel.Tracer("convopipe").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) spanAttributes(event Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("convopipe.request_id", event.RequestID),
		attribute.String("convopipe.session_id", event.SessionID),
		attribute.String("convopipe.level", event.Level),
	}
	if event.Stage != "" {
		attrs = append(attrs, attribute.String("convopipe.stage", event.Stage))
	}
	for key, value := range event.Meta {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}

func (o *OTelEmitter) emitOne(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()
	span.SetAttributes(o.spanAttributes(event)...)
	if errMsg, ok := event.Meta["error"].(string); ok && errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	} else if event.Level == LevelError {
		span.SetStatus(codes.Error, event.Msg)
	}
}

// Emit records a single span for the event.
func (o *OTelEmitter) Emit(event Event) {
	o.emitOne(context.Background(), event)
}

// EmitBatch records one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		o.emitOne(ctx, e)
	}
	return nil
}

// Flush force-flushes the active tracer provider, if it supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}
