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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

var errBackendDown = errors.New("backend down")

// captureSink records everything the tracer hands to the collector.
type captureSink struct {
	mu     sync.Mutex
	traces []*models.TraceContext
	spans  []*models.Span
}

func (c *captureSink) EnqueueTrace(trace *models.TraceContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.traces = append(c.traces, trace)
}

func (c *captureSink) EnqueueSpan(span *models.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = append(c.spans, span)
}

func newTestTracer() (*Tracer, *captureSink) {
	sink := &captureSink{}

	return &Tracer{
		sink:     sink,
		logger:   logger.NewTestLogger(),
		maxDepth: defaultMaxSpanDepth,
		nowFn:    time.Now,
		idFn:     uuid.NewString,
	}, sink
}

func TestStartTraceInstallsAmbientTrace(t *testing.T) {
	tracer, _ := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")

	require.NotEmpty(t, trace.ID())
	assert.Equal(t, trace.ID(), CurrentTraceID(ctx))

	ambient, ok := TraceFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, trace, ambient)
}

func TestFinishSnapshotsTerminalState(t *testing.T) {
	tracer, sink := newTestTracer()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracer.nowFn = func() time.Time { return now }

	_, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")

	now = now.Add(250 * time.Millisecond)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)

	snap := sink.traces[0]
	assert.Equal(t, models.TraceStatusCompleted, snap.Status)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), snap.StartTime)
	assert.Equal(t, snap.StartTime.Add(250*time.Millisecond), snap.EndTime)
	assert.InDelta(t, 250.0, snap.DurationMS, 0.001)
	assert.Zero(t, snap.SpanCount)
	assert.Empty(t, snap.ErrorDetail)
}

func TestFinishWithErrorRecordsDetail(t *testing.T) {
	tracer, sink := newTestTracer()

	_, trace := tracer.StartTrace(context.Background(), "job", "nightly_rollup")
	trace.Finish(errBackendDown)

	require.Len(t, sink.traces, 1)
	assert.Equal(t, models.TraceStatusError, sink.traces[0].Status)
	assert.Equal(t, "backend down", sink.traces[0].ErrorDetail)
}

func TestFinishIsIdempotent(t *testing.T) {
	tracer, sink := newTestTracer()

	_, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	trace.Finish(nil)
	trace.Finish(errBackendDown)
	trace.SetTag("late", "ignored")

	require.Len(t, sink.traces, 1)
	assert.Equal(t, models.TraceStatusCompleted, sink.traces[0].Status)
	assert.Empty(t, sink.traces[0].Tags)
}

func TestTraceCapturesSpanTiming(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	spanCtx, span := tracer.StartSpan(ctx, "db_query")

	assert.Equal(t, span.ID(), CurrentSpanID(spanCtx))

	time.Sleep(60 * time.Millisecond)

	span.Finish(nil)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)

	snap := sink.traces[0]
	assert.GreaterOrEqual(t, snap.DurationMS, 50.0)
	assert.False(t, snap.EndTime.Before(snap.StartTime))
	require.Equal(t, 1, snap.SpanCount)
	require.Len(t, snap.Spans, 1)

	got := snap.Spans[0]
	assert.Equal(t, "db_query", got.Name)
	assert.Equal(t, snap.ID, got.TraceID)
	assert.Equal(t, models.TraceStatusCompleted, got.Status)
	assert.GreaterOrEqual(t, got.DurationMS, 50.0)
}

func TestSpanParentLinkage(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	outerCtx, outer := tracer.StartSpan(ctx, "handle_request")
	_, inner := tracer.StartSpan(outerCtx, "db_query")

	inner.Finish(nil)
	outer.Finish(nil)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)
	require.Len(t, sink.traces[0].Spans, 2)

	byName := make(map[string]*models.Span)
	for _, span := range sink.traces[0].Spans {
		byName[span.Name] = span
	}

	require.Contains(t, byName, "handle_request")
	require.Contains(t, byName, "db_query")
	assert.Empty(t, byName["handle_request"].ParentSpanID)
	assert.Equal(t, byName["handle_request"].ID, byName["db_query"].ParentSpanID)
}

func TestStartSpanWithoutTraceIsNoop(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, span := tracer.StartSpan(context.Background(), "orphan")

	assert.False(t, span.Recording())
	assert.Empty(t, span.ID())
	assert.Empty(t, span.TraceID())

	_, ok := SpanFromContext(ctx)
	assert.False(t, ok)

	// All operations on a discarded span are safe no-ops.
	span.SetTag("k", "v")
	span.Log("nothing")
	span.Logf("nothing %d", 2)
	span.Finish(errBackendDown)

	assert.Empty(t, sink.traces)
	assert.Empty(t, sink.spans)
}

func TestSpanDepthLimitDiscards(t *testing.T) {
	tracer, sink := newTestTracer()
	tracer.maxDepth = 2

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")

	ctx1, first := tracer.StartSpan(ctx, "level_1")
	ctx2, second := tracer.StartSpan(ctx1, "level_2")
	ctx3, third := tracer.StartSpan(ctx2, "level_3")

	assert.True(t, first.Recording())
	assert.True(t, second.Recording())
	assert.False(t, third.Recording())

	// The ambient span stays at the deepest recorded level.
	ambient, ok := SpanFromContext(ctx3)
	require.True(t, ok)
	assert.Same(t, second, ambient)

	third.Finish(nil)
	second.Finish(nil)
	first.Finish(nil)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)
	assert.Len(t, sink.traces[0].Spans, 2)
}

func TestConcurrentTracesStayIsolated(t *testing.T) {
	tracer, sink := newTestTracer()

	const workers = 2

	var wg sync.WaitGroup

	ids := make([]string, workers)
	observed := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			ctx, trace := tracer.StartTrace(context.Background(), "http", fmt.Sprintf("/api/worker/%d", i))
			ids[i] = trace.ID()

			time.Sleep(5 * time.Millisecond)

			spanCtx, span := tracer.StartSpan(ctx, "work")
			observed[i] = CurrentTraceID(spanCtx)

			span.Finish(nil)
			trace.Finish(nil)
		}(i)
	}

	wg.Wait()

	require.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, ids[0], observed[0])
	assert.Equal(t, ids[1], observed[1])

	require.Len(t, sink.traces, workers)

	for _, snap := range sink.traces {
		for _, span := range snap.Spans {
			assert.Equal(t, snap.ID, span.TraceID)
		}
	}
}

func TestSpanLogsCaptured(t *testing.T) {
	tracer, sink := newTestTracer()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracer.nowFn = func() time.Time { return now }

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	_, span := tracer.StartSpan(ctx, "retrieve")

	now = now.Add(10 * time.Millisecond)
	span.Log("cache miss")

	now = now.Add(10 * time.Millisecond)
	span.Logf("retry %d", 2)

	span.Finish(nil)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)
	require.Len(t, sink.traces[0].Spans, 1)

	logs := sink.traces[0].Spans[0].Logs
	require.Len(t, logs, 2)
	assert.Equal(t, "cache miss", logs[0].Message)
	assert.Equal(t, "retry 2", logs[1].Message)
	assert.True(t, logs[0].Timestamp.Before(logs[1].Timestamp))
}

func TestSpanFinishAfterTraceFinish(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "job", "nightly_rollup")
	_, span := tracer.StartSpan(ctx, "aggregate")

	trace.Finish(nil)

	require.Len(t, sink.traces, 1)

	snap := sink.traces[0]
	require.Len(t, snap.Spans, 1)
	assert.Equal(t, models.TraceStatusInProgress, snap.Spans[0].Status)
	assert.True(t, snap.Spans[0].EndTime.IsZero())

	// Mutations after the trace flushed must not leak into the snapshot.
	span.SetTag("rows", "1200")
	assert.Empty(t, snap.Spans[0].Tags)

	span.Finish(nil)

	require.Len(t, sink.spans, 1)

	late := sink.spans[0]
	assert.Equal(t, snap.Spans[0].ID, late.ID)
	assert.Equal(t, snap.ID, late.TraceID)
	assert.Equal(t, models.TraceStatusCompleted, late.Status)
	assert.Equal(t, "1200", late.Tags["rows"])

	span.Finish(errBackendDown)
	assert.Len(t, sink.spans, 1)
}

func TestSpanFinishedAfterTraceStaysInsideTraceInterval(t *testing.T) {
	tracer, sink := newTestTracer()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracer.nowFn = func() time.Time { return now }

	ctx, trace := tracer.StartTrace(context.Background(), "job", "nightly_rollup")
	_, span := tracer.StartSpan(ctx, "aggregate")

	now = now.Add(20 * time.Millisecond)
	trace.Finish(nil)

	now = now.Add(30 * time.Millisecond)
	span.Finish(nil)

	require.Len(t, sink.traces, 1)
	require.Len(t, sink.spans, 1)

	late := sink.spans[0]
	assert.Equal(t, sink.traces[0].EndTime, late.EndTime)
	assert.InDelta(t, 20, late.DurationMS, 0.001)
	assert.False(t, late.EndTime.After(sink.traces[0].EndTime))
	assert.False(t, late.StartTime.After(late.EndTime))
	assert.Equal(t, models.TraceStatusCompleted, late.Status)
}

func TestSpanFinishedAfterParentStaysInsideParentInterval(t *testing.T) {
	tracer, sink := newTestTracer()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracer.nowFn = func() time.Time { return now }

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	parentCtx, parent := tracer.StartSpan(ctx, "retrieve")
	_, child := tracer.StartSpan(parentCtx, "rerank")

	now = now.Add(10 * time.Millisecond)
	parent.Finish(nil)

	now = now.Add(10 * time.Millisecond)
	child.Finish(nil)

	now = now.Add(10 * time.Millisecond)
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)
	require.Len(t, sink.traces[0].Spans, 2)
	assert.Empty(t, sink.spans)

	var parentSnap, childSnap *models.Span

	for _, snap := range sink.traces[0].Spans {
		switch snap.Name {
		case "retrieve":
			parentSnap = snap
		case "rerank":
			childSnap = snap
		}
	}

	require.NotNil(t, parentSnap)
	require.NotNil(t, childSnap)
	assert.Equal(t, parentSnap.EndTime, childSnap.EndTime)
	assert.InDelta(t, 10, childSnap.DurationMS, 0.001)
	assert.False(t, childSnap.EndTime.After(parentSnap.EndTime))
}

func TestStartSpanOnFinishedTraceIsNoop(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat")
	trace.Finish(nil)

	_, span := tracer.StartSpan(ctx, "too_late")
	assert.False(t, span.Recording())

	span.Finish(nil)
	assert.Empty(t, sink.spans)
}

func TestTraceOptionsAndCorrelation(t *testing.T) {
	tracer, sink := newTestTracer()

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat",
		WithSession("sess-9"),
		WithActor("user-3"),
		WithTenant("acme"),
		WithTag("region", "eu"))

	spanCtx, span := tracer.StartSpan(ctx, "db_query", WithSpanTag("table", "messages"))

	corr := CorrelationFromContext(spanCtx)
	assert.Equal(t, trace.ID(), corr.TraceID)
	assert.Equal(t, span.ID(), corr.SpanID)
	assert.Equal(t, "sess-9", corr.SessionID)
	assert.Equal(t, "user-3", corr.ActorID)
	assert.Equal(t, "/api/chat", corr.Route)

	span.Finish(nil)

	trace.SetTag("billing", "tier-2")
	trace.Finish(nil)

	require.Len(t, sink.traces, 1)

	snap := sink.traces[0]
	assert.Equal(t, "sess-9", snap.SessionID)
	assert.Equal(t, "user-3", snap.ActorID)
	assert.Equal(t, "acme", snap.Tenant)
	assert.Equal(t, "eu", snap.Tags["region"])
	assert.Equal(t, "tier-2", snap.Tags["billing"])

	require.Len(t, snap.Spans, 1)
	assert.Equal(t, "messages", snap.Spans[0].Tags["table"])
}

func TestCorrelationEmptyOutsideTrace(t *testing.T) {
	corr := CorrelationFromContext(context.Background())

	assert.Equal(t, Correlation{}, corr)
	assert.Empty(t, CurrentTraceID(context.Background()))
	assert.Empty(t, CurrentSpanID(context.Background()))
}
