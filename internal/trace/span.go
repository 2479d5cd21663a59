package trace

import (
	"sort"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// SpanType classifies what a span wraps.
type SpanType string

const (
	SpanHTTP     SpanType = "http"
	SpanDB       SpanType = "db"
	SpanExcel    SpanType = "excel"
	SpanAI       SpanType = "ai"
	SpanTool     SpanType = "tool"
	SpanInternal SpanType = "internal"
	SpanUser     SpanType = "user"
)

// SpanStatus is the terminal (or running) state of a span.
type SpanStatus string

const (
	StatusUnset     SpanStatus = "unset"
	StatusRunning   SpanStatus = "running"
	StatusOK        SpanStatus = "ok"
	StatusError     SpanStatus = "error"
	StatusCancelled SpanStatus = "cancelled"
)

// SpanEvent is a timestamped annotation inside a span.
type SpanEvent struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Span is one node of the trace tree. Mutation goes through the owning
// Tracer, which serializes access.
type Span struct {
	ID            string         `json:"id"`
	ParentID      string         `json:"parent_id,omitempty"`
	TraceID       string         `json:"trace_id"`
	OperationName string         `json:"operation_name"`
	Type          SpanType       `json:"type"`
	Status        SpanStatus     `json:"status"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []SpanEvent    `json:"events,omitempty"`
	Error         string         `json:"error,omitempty"`
	Children      []*Span        `json:"children,omitempty"`

	otelSpan oteltrace.Span
}

// Response is the user-visible outcome recorded on a closed trace.
type Response struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Trace is one orchestration call's span tree plus metadata.
type Trace struct {
	TraceID         string         `json:"trace_id"`
	RootSpan        *Span          `json:"root_span"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	TotalDurationMS int64          `json:"total_duration_ms,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Response        *Response      `json:"response,omitempty"`
}

// Export is the flat rendering of one trace.
type Export struct {
	Trace *Trace  `json:"trace"`
	Spans []*Span `json:"spans"`
}

// TimelinePoint is one start/end/event marker on the flattened timeline.
type TimelinePoint struct {
	Kind      string    `json:"kind"` // start | end | event
	Timestamp time.Time `json:"timestamp"`
	SpanID    string    `json:"span_id"`
	Name      string    `json:"name"`
}

// flatten appends the span and its subtree preorder.
func flatten(span *Span, out []*Span) []*Span {
	if span == nil {
		return out
	}
	out = append(out, span)
	for _, child := range span.Children {
		out = flatten(child, out)
	}
	return out
}

// timeline collects start/end/event points of the subtree sorted by time.
func timeline(root *Span) []TimelinePoint {
	var points []TimelinePoint
	for _, span := range flatten(root, nil) {
		points = append(points, TimelinePoint{Kind: "start", Timestamp: span.StartTime, SpanID: span.ID, Name: span.OperationName})
		for _, event := range span.Events {
			points = append(points, TimelinePoint{Kind: "event", Timestamp: event.Timestamp, SpanID: span.ID, Name: event.Name})
		}
		if !span.EndTime.IsZero() {
			points = append(points, TimelinePoint{Kind: "end", Timestamp: span.EndTime, SpanID: span.ID, Name: span.OperationName})
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}
