// Package trace records hierarchical spans for one orchestration call and
// retains a bounded ring of completed traces. Spans can optionally be
// mirrored to an OpenTelemetry tracer for export to a collector.
package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/shared/utils/id"
)

// DefaultRetained is how many completed traces the ring keeps.
const DefaultRetained = 50

// Options tunes a tracer.
type Options struct {
	// Retained caps the completed-trace ring; <=0 means DefaultRetained.
	Retained int
	// MirrorOTel additionally emits spans through the global otel tracer.
	MirrorOTel bool
}

// Tracer manages the span stack of the current call plus the retained ring.
// One call flow owns the stack at a time; TraceAsync is the concurrency-safe
// entry point for parallel work.
type Tracer struct {
	logger logging.Logger
	otel   oteltrace.Tracer

	mu       sync.Mutex
	current  *Trace
	stack    []*Span
	otelCtxs []context.Context
	retained *lru.Cache[string, *Trace]
}

// New builds a tracer. The otel mirror uses the process-global provider.
func New(opts Options, logger logging.Logger) *Tracer {
	if opts.Retained <= 0 {
		opts.Retained = DefaultRetained
	}
	ring, _ := lru.New[string, *Trace](opts.Retained)
	t := &Tracer{
		logger:   logging.OrNop(logger),
		retained: ring,
	}
	if opts.MirrorOTel {
		t.otel = otel.Tracer("gridpilot")
	}
	return t
}

// StartTrace opens a new trace with a root span and makes it current. Any
// unfinished previous trace is closed with status cancelled first.
func (t *Tracer) StartTrace(name string, metadata map[string]any) *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.closeLocked(&Response{Success: false, Error: "superseded"}, StatusCancelled)
	}

	traceID := id.NewTraceID()
	root := &Span{
		ID:            id.NewSpanID(),
		TraceID:       traceID,
		OperationName: name,
		Type:          SpanInternal,
		Status:        StatusRunning,
		StartTime:     time.Now().UTC(),
	}
	t.current = &Trace{
		TraceID:   traceID,
		RootSpan:  root,
		StartTime: root.StartTime,
		Metadata:  metadata,
	}
	t.stack = []*Span{root}
	t.otelCtxs = nil
	if t.otel != nil {
		ctx, span := t.otel.Start(context.Background(), name)
		root.otelSpan = span
		t.otelCtxs = []context.Context{ctx}
	}
	return t.current
}

// StartSpan pushes a child of the current stack top.
func (t *Tracer) StartSpan(name string, spanType SpanType, attrs map[string]any) *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(name, spanType, attrs, t.top())
}

func (t *Tracer) startLocked(name string, spanType SpanType, attrs map[string]any, parent *Span) *Span {
	span := &Span{
		ID:            id.NewSpanID(),
		OperationName: name,
		Type:          spanType,
		Status:        StatusRunning,
		StartTime:     time.Now().UTC(),
		Attributes:    attrs,
	}
	if parent != nil {
		span.ParentID = parent.ID
		span.TraceID = parent.TraceID
	} else if t.current != nil {
		span.TraceID = t.current.TraceID
	}
	t.stack = append(t.stack, span)
	if t.otel != nil {
		parentCtx := context.Background()
		if len(t.otelCtxs) > 0 {
			parentCtx = t.otelCtxs[len(t.otelCtxs)-1]
		}
		ctx, otelSpan := t.otel.Start(parentCtx, name,
			oteltrace.WithAttributes(attribute.String("span.type", string(spanType))))
		span.otelSpan = otelSpan
		t.otelCtxs = append(t.otelCtxs, ctx)
	}
	return span
}

// EndSpan pops the stack top, stamps duration, and attaches it to its parent.
// Ending the root span is a no-op; use EndTrace.
func (t *Tracer) EndSpan(status SpanStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) <= 1 {
		return
	}
	span := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	parent := t.stack[len(t.stack)-1]
	t.endLocked(span, status, err)
	parent.Children = append(parent.Children, span)
	if t.otel != nil && len(t.otelCtxs) > 1 {
		t.otelCtxs = t.otelCtxs[:len(t.otelCtxs)-1]
	}
}

func (t *Tracer) endLocked(span *Span, status SpanStatus, err error) {
	span.EndTime = time.Now().UTC()
	span.DurationMS = span.EndTime.Sub(span.StartTime).Milliseconds()
	if status == "" || status == StatusUnset {
		status = StatusOK
		if err != nil {
			status = StatusError
		}
	}
	span.Status = status
	if err != nil {
		span.Error = err.Error()
	}
	if span.otelSpan != nil {
		if err != nil {
			span.otelSpan.RecordError(err)
			span.otelSpan.SetStatus(codes.Error, err.Error())
		} else if status == StatusOK {
			span.otelSpan.SetStatus(codes.Ok, "")
		}
		span.otelSpan.End()
		span.otelSpan = nil
	}
}

// SetAttr sets an attribute on the current span.
func (t *Tracer) SetAttr(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	span := t.top()
	if span == nil {
		return
	}
	if span.Attributes == nil {
		span.Attributes = map[string]any{}
	}
	span.Attributes[key] = value
}

// AddEvent appends a timestamped event to the current span.
func (t *Tracer) AddEvent(name string, attrs map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	span := t.top()
	if span == nil {
		return
	}
	span.Events = append(span.Events, SpanEvent{Name: name, Timestamp: time.Now().UTC(), Attributes: attrs})
	if span.otelSpan != nil {
		span.otelSpan.AddEvent(name)
	}
}

// RecordError marks the current span errored without ending it.
func (t *Tracer) RecordError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	span := t.top()
	if span == nil {
		return
	}
	span.Error = err.Error()
	span.Events = append(span.Events, SpanEvent{
		Name:       "error",
		Timestamp:  time.Now().UTC(),
		Attributes: map[string]any{"message": err.Error()},
	})
	if span.otelSpan != nil {
		span.otelSpan.RecordError(err)
	}
}

// Logf writes a structured log line and mirrors it as an event on the
// current span so exported traces carry the narrative.
func (t *Tracer) Logf(format string, args ...any) {
	t.logger.Info(format, args...)
	t.AddEvent("log", map[string]any{"message": fmt.Sprintf(format, args...)})
}

// TraceAsync wraps op in a span parented at the current stack top without
// touching the stack, making it safe to call from parallel goroutines. The
// span ends when op returns, with status ok or error.
func (t *Tracer) TraceAsync(ctx context.Context, name string, spanType SpanType, op func(context.Context) error) error {
	t.mu.Lock()
	parent := t.top()
	span := &Span{
		ID:            id.NewSpanID(),
		OperationName: name,
		Type:          spanType,
		Status:        StatusRunning,
		StartTime:     time.Now().UTC(),
	}
	if parent != nil {
		span.ParentID = parent.ID
		span.TraceID = parent.TraceID
	}
	if t.otel != nil {
		parentCtx := context.Background()
		if len(t.otelCtxs) > 0 {
			parentCtx = t.otelCtxs[0]
		}
		_, span.otelSpan = t.otel.Start(parentCtx, name,
			oteltrace.WithAttributes(attribute.String("span.type", string(spanType))))
	}
	t.mu.Unlock()

	err := op(ctx)

	t.mu.Lock()
	t.endLocked(span, "", err)
	if parent != nil {
		parent.Children = append(parent.Children, span)
	}
	t.mu.Unlock()
	return err
}

// EndTrace closes the root span and every dangling child, records the
// response, retains the trace in the ring, and clears the current trace.
func (t *Tracer) EndTrace(response *Response) *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := StatusOK
	if response != nil && !response.Success {
		status = StatusError
	}
	return t.closeLocked(response, status)
}

func (t *Tracer) closeLocked(response *Response, rootStatus SpanStatus) *Trace {
	if t.current == nil {
		return nil
	}
	// Dangling spans from an abandoned flow close with the root's status.
	for len(t.stack) > 1 {
		span := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		parent := t.stack[len(t.stack)-1]
		t.endLocked(span, rootStatus, nil)
		parent.Children = append(parent.Children, span)
	}
	root := t.current.RootSpan
	t.endLocked(root, rootStatus, nil)

	t.current.EndTime = root.EndTime
	t.current.TotalDurationMS = t.current.EndTime.Sub(t.current.StartTime).Milliseconds()
	t.current.Response = response

	done := t.current
	t.retained.Add(done.TraceID, done)
	t.current = nil
	t.stack = nil
	t.otelCtxs = nil
	return done
}

// Current returns the in-flight trace, or nil.
func (t *Tracer) Current() *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Get looks up a retained trace by id.
func (t *Tracer) Get(traceID string) (*Trace, bool) {
	return t.retained.Get(traceID)
}

// Recent returns retained traces, oldest first.
func (t *Tracer) Recent() []*Trace {
	keys := t.retained.Keys()
	traces := make([]*Trace, 0, len(keys))
	for _, key := range keys {
		if tr, ok := t.retained.Peek(key); ok {
			traces = append(traces, tr)
		}
	}
	return traces
}

// ExportFlat renders a retained (or current) trace as a flat span list.
func (t *Tracer) ExportFlat(traceID string) *Export {
	tr := t.lookup(traceID)
	if tr == nil {
		return nil
	}
	return &Export{Trace: tr, Spans: flatten(tr.RootSpan, nil)}
}

// ExportTree returns the nested span tree of a trace.
func (t *Tracer) ExportTree(traceID string) *Span {
	if tr := t.lookup(traceID); tr != nil {
		return tr.RootSpan
	}
	return nil
}

// ExportTimeline flattens a trace into timestamp-ordered points.
func (t *Tracer) ExportTimeline(traceID string) []TimelinePoint {
	if tr := t.lookup(traceID); tr != nil {
		return timeline(tr.RootSpan)
	}
	return nil
}

func (t *Tracer) lookup(traceID string) *Trace {
	if tr, ok := t.retained.Peek(traceID); ok {
		return tr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && (traceID == "" || t.current.TraceID == traceID) {
		return t.current
	}
	return nil
}

func (t *Tracer) top() *Span {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}
