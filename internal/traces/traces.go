package traces

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/DeusData/fntrace/internal/store"
)

// OTLPExport represents the top-level structure of an OTLP JSON export.
type OTLPExport struct {
	ResourceSpans []ResourceSpan `json:"resourceSpans"`
}

// ResourceSpan contains spans from a single service/resource.
type ResourceSpan struct {
	Resource   Resource    `json:"resource"`
	ScopeSpans []ScopeSpan `json:"scopeSpans"`
}

// Resource describes the service that produced the spans.
type Resource struct {
	Attributes []Attribute `json:"attributes"`
}

// Scope names the instrumentation library.
type Scope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ScopeSpan groups spans by instrumentation scope.
type ScopeSpan struct {
	Scope Scope  `json:"scope"`
	Spans []Span `json:"spans"`
}

// Span represents a single trace span.
type Span struct {
	TraceID      string      `json:"traceId"`
	SpanID       string      `json:"spanId"`
	ParentSpanID string      `json:"parentSpanId,omitempty"`
	Name         string      `json:"name"`
	Kind         int         `json:"kind"` // 1=internal, 2=server, 3=client
	StartTime    string      `json:"startTimeUnixNano"`
	EndTime      string      `json:"endTimeUnixNano"`
	Attributes   []Attribute `json:"attributes"`
	Status       SpanStatus  `json:"status"`
}

// SpanStatus represents the status of a span.
type SpanStatus struct {
	Code int `json:"code"` // 0=unset, 1=ok, 2=error
}

// Attribute is a key-value pair in OTLP format.
type Attribute struct {
	Key   string         `json:"key"`
	Value AttributeValue `json:"value"`
}

// AttributeValue holds the typed value.
type AttributeValue struct {
	StringValue string `json:"stringValue,omitempty"`
	IntValue    string `json:"intValue,omitempty"`
	BoolValue   *bool  `json:"boolValue,omitempty"`
}

const (
	spanKindInternal = 1
	statusOK         = 1
	statusError      = 2
)

// ExportResult summarizes an export.
type ExportResult struct {
	RunID string `json:"run_id"`
	Spans int    `json:"spans"`
}

// Export writes the events of a run to w as OTLP JSON. The trace id is the run
// id; every event becomes one internal span ending at its recording time.
func Export(s *store.Store, runID, serviceName string, w io.Writer) (*ExportResult, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	events, err := s.Events(runID, store.EventFilter{})
	if err != nil {
		return nil, err
	}

	traceID := strings.ReplaceAll(run.ID, "-", "")
	spans := make([]Span, 0, len(events))
	for _, e := range events {
		span, err := eventSpan(traceID, e)
		if err != nil {
			slog.Warn("traces.export.skip", "event", e.ID, "err", err)
			continue
		}
		spans = append(spans, span)
	}

	export := OTLPExport{ResourceSpans: []ResourceSpan{{
		Resource: Resource{Attributes: []Attribute{
			stringAttr("service.name", serviceName),
			stringAttr("fntrace.entry", run.Entry),
		}},
		ScopeSpans: []ScopeSpan{{Scope: Scope{Name: "fntrace"}, Spans: spans}},
	}}}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return nil, fmt.Errorf("encode OTLP JSON: %w", err)
	}
	slog.Info("traces.export", "run", runID, "spans", len(spans))
	return &ExportResult{RunID: runID, Spans: len(spans)}, nil
}

func eventSpan(traceID string, e *store.Event) (Span, error) {
	end, err := time.Parse(time.RFC3339Nano, e.RecordedAt)
	if err != nil {
		return Span{}, fmt.Errorf("recorded_at: %w", err)
	}
	start := end.Add(-time.Duration(e.SpanMs * float64(time.Millisecond)))

	status := statusOK
	if e.Exception {
		status = statusError
	}
	async := e.IsAsync
	return Span{
		TraceID:   traceID,
		SpanID:    spanID(traceID, e.ID),
		Name:      e.Name,
		Kind:      spanKindInternal,
		StartTime: strconv.FormatInt(start.UnixNano(), 10),
		EndTime:   strconv.FormatInt(end.UnixNano(), 10),
		Attributes: []Attribute{
			stringAttr("code.function", e.Name),
			stringAttr("code.filepath", e.File),
			intAttr("code.lineno", e.StartLine),
			intAttr("code.column", e.StartColumn),
			stringAttr("fntrace.id", e.FnID),
			{Key: "fntrace.async", Value: AttributeValue{BoolValue: &async}},
		},
		Status: SpanStatus{Code: status},
	}, nil
}

// spanID derives a stable 8-byte span id from the trace and event ids.
func spanID(traceID string, eventID int64) string {
	return fmt.Sprintf("%016x", xxh3.HashString(traceID+"/"+strconv.FormatInt(eventID, 10)))
}

func stringAttr(key, value string) Attribute {
	return Attribute{Key: key, Value: AttributeValue{StringValue: value}}
}

func intAttr(key string, value int) Attribute {
	return Attribute{Key: key, Value: AttributeValue{IntValue: strconv.Itoa(value)}}
}

// Load decodes an OTLP JSON export.
func Load(r io.Reader) (*OTLPExport, error) {
	var export OTLPExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("parse OTLP JSON: %w", err)
	}
	return &export, nil
}

// extractServiceName gets service.name from resource attributes.
func extractServiceName(r Resource) string {
	for _, attr := range r.Attributes {
		if attr.Key == "service.name" {
			return attr.Value.StringValue
		}
	}
	return ""
}

// FunctionSpans is the per-function view of an export.
type FunctionSpans struct {
	Service    string
	FnID       string
	Calls      int
	Errors     int
	DurationNs int64
}

// Summarize groups the spans of an export by fntrace.id, in first-seen order.
func Summarize(export *OTLPExport) []FunctionSpans {
	var order []string
	byID := map[string]*FunctionSpans{}
	for _, rs := range export.ResourceSpans {
		service := extractServiceName(rs.Resource)
		for _, ss := range rs.ScopeSpans {
			for i := range ss.Spans {
				span := &ss.Spans[i]
				id := attrString(span.Attributes, "fntrace.id")
				if id == "" {
					continue
				}
				fs, ok := byID[id]
				if !ok {
					fs = &FunctionSpans{Service: service, FnID: id}
					byID[id] = fs
					order = append(order, id)
				}
				fs.Calls++
				if span.Status.Code == statusError {
					fs.Errors++
				}
				fs.DurationNs += spanDuration(span)
			}
		}
	}
	result := make([]FunctionSpans, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}
	return result
}

func attrString(attrs []Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value.StringValue
		}
	}
	return ""
}

func spanDuration(span *Span) int64 {
	start, err1 := strconv.ParseInt(span.StartTime, 10, 64)
	end, err2 := strconv.ParseInt(span.EndTime, 10, 64)
	if err1 != nil || err2 != nil || end < start {
		return 0
	}
	return end - start
}
