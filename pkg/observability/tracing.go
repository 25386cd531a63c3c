package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this instrumentation library.
const TracerName = "github.com/haneul-labs/mailaction"

// Span names for the pipeline stages.
const (
	SpanProcessRecord = "pipeline.process_record"
	SpanNormalize     = "pipeline.normalize"
	SpanExtract       = "pipeline.extract"
	SpanResolve       = "pipeline.resolve"
	SpanIndex         = "index.upload"
	SpanStore         = "store.upsert"
)

// Attribute keys used on pipeline spans.
var (
	AttrRecordID = attribute.Key("mailaction.record_id")
	AttrEmailID  = attribute.Key("mailaction.email_id")
	AttrPolicy   = attribute.Key("mailaction.policy")
	AttrHasAct   = attribute.Key("mailaction.has_action")
)

// Tracer returns the library tracer. With no SDK installed this is a
// no-op tracer, so instrumented code needs no guards.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a named span on the library tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
