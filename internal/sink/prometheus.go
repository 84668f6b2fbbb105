package sink

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DeusData/fntrace/internal/descriptor"
	"github.com/DeusData/fntrace/internal/wrapper"
)

// Prometheus exports call counts and span histograms per function.
type Prometheus struct {
	span  *prometheus.HistogramVec
	calls *prometheus.CounterVec
}

// NewPrometheus registers the fntrace metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		span: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fntrace_call_span_milliseconds",
			Help:    "Wall time of traced function calls, until settlement for asynchronous results.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"name", "file"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fntrace_calls_total",
			Help: "Traced function calls by outcome.",
		}, []string{"name", "file", "exception"}),
	}
}

// Log implements wrapper.Sink.
func (p *Prometheus) Log(rec wrapper.Record) {
	name, _ := rec[descriptor.FieldName].(string)
	file, _ := rec[descriptor.FieldFile].(string)
	p.span.WithLabelValues(name, file).Observe(rec.Span())
	p.calls.WithLabelValues(name, file, strconv.FormatBool(rec.Exception())).Inc()
}
