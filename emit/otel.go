package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a zero-length span named after the
// event message. A "latency_ms" meta value stretches the span back to the
// node's start.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an emitter using tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(e Event) {
	end := time.Now()
	start := end
	if ms, ok := e.Meta["latency_ms"].(int64); ok && ms > 0 {
		start = end.Add(-time.Duration(ms) * time.Millisecond)
	}

	_, span := o.tracer.Start(context.Background(), e.Msg, trace.WithTimestamp(start))
	span.SetAttributes(
		attribute.String("devteam.run_id", e.RunID),
		attribute.Int("devteam.step", e.Step),
		attribute.String("devteam.node_id", e.NodeID),
	)
	for k, v := range e.Meta {
		span.SetAttributes(metaAttribute("devteam."+k, v))
	}
	if msg := e.Err(); msg != "" {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
	span.End(trace.WithTimestamp(end))
}

func metaAttribute(k string, v any) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(k, v)
	case int:
		return attribute.Int(k, v)
	case int64:
		return attribute.Int64(k, v)
	case float64:
		return attribute.Float64(k, v)
	case bool:
		return attribute.Bool(k, v)
	case []string:
		return attribute.StringSlice(k, v)
	case time.Duration:
		return attribute.Int64(k, v.Milliseconds())
	}
	return attribute.String(k, fmt.Sprint(v))
}
