/*
 * Copyright 2025 Carelane, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const defaultMaxSpanDepth = 32

// sink receives finished traces and spans that finished after their trace.
type sink interface {
	EnqueueTrace(trace *models.TraceContext)
	EnqueueSpan(span *models.Span)
}

// Tracer creates traces and spans and hands finished work to the collector.
// A single Tracer is shared by all concurrent units of work; per-request
// state lives in the ActiveTrace carried on the context.
type Tracer struct {
	sink     sink
	logger   logger.Logger
	maxDepth int
	nowFn    func() time.Time
	idFn     func() string
}

// NewTracer returns a Tracer that enqueues finished traces on the collector.
func NewTracer(collector *Collector, cfg models.TraceConfig, log logger.Logger) *Tracer {
	maxDepth := cfg.MaxSpanDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxSpanDepth
	}

	return &Tracer{
		sink:     collector,
		logger:   log,
		maxDepth: maxDepth,
		nowFn:    time.Now,
		idFn:     uuid.NewString,
	}
}

// TraceOption customizes a trace at creation time.
type TraceOption func(*models.TraceContext)

// WithSession attaches the originating session id.
func WithSession(sessionID string) TraceOption {
	return func(tc *models.TraceContext) {
		tc.SessionID = sessionID
	}
}

// WithActor attaches the acting user or principal.
func WithActor(actorID string) TraceOption {
	return func(tc *models.TraceContext) {
		tc.ActorID = actorID
	}
}

// WithTenant attaches the tenant the work is performed for.
func WithTenant(tenant string) TraceOption {
	return func(tc *models.TraceContext) {
		tc.Tenant = tenant
	}
}

// WithTag sets an initial trace tag.
func WithTag(key, value string) TraceOption {
	return func(tc *models.TraceContext) {
		if tc.Tags == nil {
			tc.Tags = make(map[string]string)
		}

		tc.Tags[key] = value
	}
}

// SpanOption customizes a span at creation time.
type SpanOption func(*models.Span)

// WithSpanTag sets an initial span tag.
func WithSpanTag(key, value string) SpanOption {
	return func(s *models.Span) {
		if s.Tags == nil {
			s.Tags = make(map[string]string)
		}

		s.Tags[key] = value
	}
}

// StartTrace opens a trace for one inbound unit of work and installs it as
// the ambient trace on the returned context. The caller owns the trace and
// must call Finish exactly once; propagating the returned context is what
// correlates all spans and logs emitted underneath.
func (t *Tracer) StartTrace(ctx context.Context, entryKind, route string, opts ...TraceOption) (context.Context, *ActiveTrace) {
	data := &models.TraceContext{
		ID:        t.idFn(),
		EntryKind: entryKind,
		Route:     route,
		StartTime: t.nowFn().UTC(),
		Status:    models.TraceStatusInProgress,
	}

	for _, opt := range opts {
		opt(data)
	}

	trace := &ActiveTrace{tracer: t, data: data}

	return ContextWithTrace(ctx, trace), trace
}

// StartSpan opens a span under the ambient trace and installs it as the
// ambient span on the returned context. Without an ambient trace, with a
// finished trace, or past the depth limit it returns the context unchanged
// and a discarded span whose methods are all no-ops, so callers never need
// to branch on whether tracing is active.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *ActiveSpan) {
	trace, ok := TraceFromContext(ctx)
	if !ok {
		return ctx, discardedSpan()
	}

	depth := 1
	parentID := ""

	var parentSpan *ActiveSpan

	if parent, ok := SpanFromContext(ctx); ok {
		depth = parent.depth + 1
		parentID = parent.ID()
		parentSpan = parent
	}

	if depth > t.maxDepth {
		t.logger.Warn().
			Str("trace_id", trace.ID()).
			Str("span_name", name).
			Int("max_depth", t.maxDepth).
			Msg("Span depth limit exceeded, discarding span")

		return ctx, discardedSpan()
	}

	data := &models.Span{
		ID:           t.idFn(),
		TraceID:      trace.ID(),
		ParentSpanID: parentID,
		Name:         name,
		StartTime:    t.nowFn().UTC(),
		Status:       models.TraceStatusInProgress,
	}

	for _, opt := range opts {
		opt(data)
	}

	span := &ActiveSpan{trace: trace, parent: parentSpan, data: data, depth: depth}

	if !trace.addSpan(span) {
		// The trace finished between lookup and registration.
		return ctx, discardedSpan()
	}

	return ContextWithSpan(ctx, span), span
}

// ActiveTrace is one in-flight trace. Identity fields are fixed at creation;
// tags and the span list are guarded by mu.
type ActiveTrace struct {
	tracer *Tracer

	mu    sync.Mutex
	data  *models.TraceContext
	spans []*ActiveSpan
	done  bool
}

// ID returns the trace id.
func (t *ActiveTrace) ID() string {
	return t.data.ID
}

// Route returns the route or operation name the trace was opened with.
func (t *ActiveTrace) Route() string {
	return t.data.Route
}

// Session returns the session and actor ids the trace was opened with.
func (t *ActiveTrace) Session() (sessionID, actorID string) {
	return t.data.SessionID, t.data.ActorID
}

// SetTag sets a tag on the trace. Ignored after Finish.
func (t *ActiveTrace) SetTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	if t.data.Tags == nil {
		t.data.Tags = make(map[string]string)
	}

	t.data.Tags[key] = value
}

// addSpan registers a child span. It reports false once the trace has
// finished, in which case the span must be discarded.
func (t *ActiveTrace) addSpan(span *ActiveSpan) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return false
	}

	t.spans = append(t.spans, span)

	return true
}

// finishedEnd returns the trace's end time once Finish has run.
func (t *ActiveTrace) finishedEnd() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.done {
		return time.Time{}, false
	}

	return t.data.EndTime, true
}

// Finish closes the trace, snapshots it together with its spans and hands
// the snapshot to the collector. The first call wins; later calls are
// no-ops. Spans still open at this point are captured as in_progress and
// are upserted into storage when they eventually finish.
func (t *ActiveTrace) Finish(err error) {
	t.mu.Lock()

	if t.done {
		t.mu.Unlock()
		return
	}

	t.done = true

	end := t.tracer.nowFn().UTC()
	t.data.EndTime = end
	t.data.DurationMS = float64(end.Sub(t.data.StartTime)) / float64(time.Millisecond)

	if err != nil {
		t.data.Status = models.TraceStatusError
		t.data.ErrorDetail = err.Error()
	} else {
		t.data.Status = models.TraceStatusCompleted
	}

	out := *t.data
	out.Tags = copyTags(t.data.Tags)

	spans := make([]*ActiveSpan, len(t.spans))
	copy(spans, t.spans)

	t.mu.Unlock()

	// Spans are snapshotted outside the trace lock; each snapshot takes only
	// the span's own lock, so a span finishing concurrently cannot deadlock
	// against us. Whichever side runs second sees a consistent state.
	out.Spans = make([]*models.Span, 0, len(spans))
	for _, span := range spans {
		snap := span.snapshot()
		out.Spans = append(out.Spans, &snap)
	}

	out.SpanCount = len(out.Spans)

	t.tracer.sink.EnqueueTrace(&out)
}

// ActiveSpan is one in-flight span. A discarded span has no trace and all
// its methods are no-ops.
type ActiveSpan struct {
	trace  *ActiveTrace
	parent *ActiveSpan
	depth  int

	mu   sync.Mutex
	data *models.Span
	done bool
}

func discardedSpan() *ActiveSpan {
	return &ActiveSpan{}
}

// Recording reports whether the span is backed by a trace and will be kept.
func (s *ActiveSpan) Recording() bool {
	return s.trace != nil
}

// ID returns the span id, empty for discarded spans.
func (s *ActiveSpan) ID() string {
	if s.trace == nil {
		return ""
	}

	return s.data.ID
}

// TraceID returns the owning trace id, empty for discarded spans.
func (s *ActiveSpan) TraceID() string {
	if s.trace == nil {
		return ""
	}

	return s.data.TraceID
}

// SetTag sets a tag on the span. Ignored after Finish.
func (s *ActiveSpan) SetTag(key, value string) {
	if s.trace == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}

	if s.data.Tags == nil {
		s.data.Tags = make(map[string]string)
	}

	s.data.Tags[key] = value
}

// Log attaches a timestamped annotation to the span. Ignored after Finish.
func (s *ActiveSpan) Log(message string) {
	if s.trace == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}

	s.data.Logs = append(s.data.Logs, models.SpanLog{
		Timestamp: s.trace.tracer.nowFn().UTC(),
		Message:   message,
	})
}

// Logf attaches a formatted annotation to the span.
func (s *ActiveSpan) Logf(format string, args ...interface{}) {
	if s.trace == nil {
		return
	}

	s.Log(fmt.Sprintf(format, args...))
}

// finishedEnd returns the span's end time once Finish has run.
func (s *ActiveSpan) finishedEnd() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		return time.Time{}, false
	}

	return s.data.EndTime, true
}

// containmentLimit is the latest end time the span may record: its parent's
// end once the parent has finished, else the trace's end once the trace has.
// The parent's end is itself clamped to the trace, so checking it first is
// enough.
func (s *ActiveSpan) containmentLimit() (time.Time, bool) {
	if s.parent != nil {
		if end, ok := s.parent.finishedEnd(); ok {
			return end, true
		}
	}

	return s.trace.finishedEnd()
}

// Finish closes the span. The first call wins; later calls are no-ops. A
// span that outlives its enclosing scope has its end time clamped to the
// parent's (or the trace's) end so the stored interval stays contained. If
// the owning trace already finished, the closed span is enqueued on its own
// so storage can upsert the final timing over the in_progress row that was
// flushed with the trace.
func (s *ActiveSpan) Finish(err error) {
	if s.trace == nil {
		return
	}

	end := s.trace.tracer.nowFn().UTC()

	if limit, ok := s.containmentLimit(); ok && limit.Before(end) {
		end = limit
	}

	s.mu.Lock()

	if s.done {
		s.mu.Unlock()
		return
	}

	s.done = true

	if end.Before(s.data.StartTime) {
		end = s.data.StartTime
	}

	s.data.EndTime = end
	s.data.DurationMS = float64(end.Sub(s.data.StartTime)) / float64(time.Millisecond)

	if err != nil {
		s.data.Status = models.TraceStatusError
		s.data.ErrorDetail = err.Error()
	} else {
		s.data.Status = models.TraceStatusCompleted
	}

	snap := s.snapshotLocked()

	s.mu.Unlock()

	if traceEnd, ok := s.trace.finishedEnd(); ok {
		// The trace can finish between the clamp above and here; re-clamp
		// the outgoing copy so the late row never escapes the trace.
		if snap.EndTime.After(traceEnd) {
			snap.EndTime = traceEnd
			snap.DurationMS = float64(traceEnd.Sub(snap.StartTime)) / float64(time.Millisecond)
		}

		s.trace.tracer.sink.EnqueueSpan(&snap)
	}
}

// snapshot returns a deep copy of the span's current state.
func (s *ActiveSpan) snapshot() models.Span {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *ActiveSpan) snapshotLocked() models.Span {
	snap := *s.data
	snap.Tags = copyTags(s.data.Tags)

	if len(s.data.Logs) > 0 {
		snap.Logs = make([]models.SpanLog, len(s.data.Logs))
		copy(snap.Logs, s.data.Logs)
	} else {
		snap.Logs = nil
	}

	return snap
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}

	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}

	return out
}
