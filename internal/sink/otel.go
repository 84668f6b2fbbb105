package sink

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DeusData/fntrace/internal/descriptor"
	"github.com/DeusData/fntrace/internal/wrapper"
)

// OTel turns each record into a finished span, back-dated by its duration.
type OTel struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewOTel creates an OTel sink using tracer.
func NewOTel(tracer trace.Tracer) *OTel {
	return &OTel{tracer: tracer, now: time.Now}
}

// Log implements wrapper.Sink.
func (o *OTel) Log(rec wrapper.Record) {
	d := descriptor.FromFields(rec)
	end := o.now()
	start := end.Add(-time.Duration(rec.Span() * float64(time.Millisecond)))

	name := d.Name
	if name == "" {
		name = "function"
	}
	_, span := o.tracer.Start(context.Background(), name,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("code.function", d.Name),
			attribute.String("code.filepath", d.File),
			attribute.Int("code.lineno", d.StartLine),
			attribute.Int("code.column", d.StartColumn),
			attribute.String("fntrace.id", d.ID),
			attribute.Bool("fntrace.async", d.IsAsync),
		),
	)
	if rec.Exception() {
		span.SetStatus(codes.Error, "exception")
	}
	span.End(trace.WithTimestamp(end))
}
