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

package logs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
	"github.com/carelane/pulse/pkg/tracing"
)

var (
	errStoreUnavailable = errors.New("store unavailable")
	errQueryTimeout     = errors.New("query timeout")
)

type fakeLogStore struct {
	mu      sync.Mutex
	batches [][]*models.LogRecord
	fail    int
}

func (s *fakeLogStore) InsertLogs(_ context.Context, logs []*models.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail > 0 {
		s.fail--
		return errStoreUnavailable
	}

	batch := make([]*models.LogRecord, len(logs))
	copy(batch, logs)
	s.batches = append(s.batches, batch)

	return nil
}

func (s *fakeLogStore) stored() []*models.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.LogRecord
	for _, batch := range s.batches {
		out = append(out, batch...)
	}

	return out
}

func (s *fakeLogStore) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sizes := make([]int, 0, len(s.batches))
	for _, batch := range s.batches {
		sizes = append(sizes, len(batch))
	}

	return sizes
}

type captureCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *captureCounter) AddCounter(name string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts == nil {
		c.counts = make(map[string]int64)
	}

	c.counts[name] += n
}

func (c *captureCounter) value(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[name]
}

func newAmbientTrace(t *testing.T) (context.Context, *tracing.ActiveTrace, *tracing.ActiveSpan) {
	t.Helper()

	collector := tracing.NewCollector(nil, models.TraceConfig{}, logger.NewTestLogger())
	tracer := tracing.NewTracer(collector, models.TraceConfig{}, logger.NewTestLogger())

	ctx, trace := tracer.StartTrace(context.Background(), "http", "/api/chat",
		tracing.WithSession("sess-9"),
		tracing.WithActor("user-3"))

	spanCtx, span := tracer.StartSpan(ctx, "db_query")

	return spanCtx, trace, span
}

func TestEmitCapturesAmbientCorrelation(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{}, logger.NewTestLogger())

	spanCtx, trace, span := newAmbientTrace(t)

	p.Emit(spanCtx, models.LevelInfo, "chat", "handling request", map[string]any{"attempt": 1}, nil)
	p.Emit(context.Background(), models.LevelInfo, "worker", "background job", nil, nil)

	p.Drain(context.Background())

	records := store.stored()
	require.Len(t, records, 2)

	inTrace := records[0]
	require.NotEmpty(t, inTrace.ID)
	assert.Equal(t, trace.ID(), inTrace.TraceID)
	assert.Equal(t, span.ID(), inTrace.SpanID)
	assert.Equal(t, "user-3", inTrace.ActorID)
	assert.Equal(t, "sess-9", inTrace.SessionID)
	assert.Equal(t, "/api/chat", inTrace.Route)
	assert.Equal(t, 1, inTrace.Fields["attempt"])

	outside := records[1]
	require.NotEmpty(t, outside.ID)
	assert.Empty(t, outside.TraceID)
	assert.Empty(t, outside.SpanID)
	assert.Empty(t, outside.ActorID)
	assert.Empty(t, outside.Route)
}

func TestEmitRespectsMinimumLevel(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{MinLevel: models.LevelWarn}, logger.NewTestLogger())

	ctx := context.Background()
	p.Emit(ctx, models.LevelDebug, "chat", "too quiet", nil, nil)
	p.Emit(ctx, models.LevelInfo, "chat", "still too quiet", nil, nil)
	p.Emit(ctx, models.LevelWarn, "chat", "loud enough", nil, nil)
	p.Emit(ctx, models.LevelError, "chat", "definitely", nil, nil)

	assert.Equal(t, 2, p.Pending())
}

func TestEmitDropsOldestWhenFull(t *testing.T) {
	store := &fakeLogStore{}
	counter := &captureCounter{}
	p := NewPipeline(store, models.LogConfig{BufferSize: 2}, logger.NewTestLogger(), WithDropCounter(counter))

	ctx := context.Background()
	p.Emit(ctx, models.LevelInfo, "chat", "one", nil, nil)
	p.Emit(ctx, models.LevelInfo, "chat", "two", nil, nil)
	p.Emit(ctx, models.LevelInfo, "chat", "three", nil, nil)

	require.Equal(t, 2, p.Pending())
	assert.EqualValues(t, 1, counter.value(counterLogsDropped))

	p.Drain(ctx)

	records := store.stored()
	require.Len(t, records, 2)
	assert.Equal(t, "two", records[0].Message)
	assert.Equal(t, "three", records[1].Message)
}

func TestDrainBatchesAndNotifies(t *testing.T) {
	store := &fakeLogStore{}
	hub := NewHub(logger.NewTestLogger())

	ch, cancel := hub.Subscribe(16)
	defer cancel()

	p := NewPipeline(store, models.LogConfig{FlushBatch: 2}, logger.NewTestLogger(), WithBroker(hub))

	ctx := context.Background()
	p.Emit(ctx, models.LevelInfo, "chat", "one", nil, nil)
	p.Emit(ctx, models.LevelWarn, "chat", "two", nil, nil)
	p.Emit(ctx, models.LevelError, "chat", "three", nil, nil)

	p.Drain(ctx)

	assert.Equal(t, []int{2, 1}, store.batchSizes())
	assert.Zero(t, p.Pending())

	var notified []models.LogNotification

	for i := 0; i < 3; i++ {
		select {
		case n := <-ch:
			notified = append(notified, n)
		default:
			t.Fatalf("expected 3 notifications, got %d", len(notified))
		}
	}

	records := store.stored()
	require.Len(t, notified, 3)

	for i, n := range notified {
		assert.Equal(t, records[i].ID, n.ID)
		assert.Equal(t, records[i].Message, n.Message)
		assert.Equal(t, records[i].Level, n.Level)
	}
}

func TestDrainRequeuesOnStoreFailure(t *testing.T) {
	store := &fakeLogStore{fail: 1}
	hub := NewHub(logger.NewTestLogger())

	ch, cancel := hub.Subscribe(16)
	defer cancel()

	p := NewPipeline(store, models.LogConfig{}, logger.NewTestLogger(), WithBroker(hub))

	ctx := context.Background()
	p.Emit(ctx, models.LevelInfo, "chat", "one", nil, nil)
	p.Emit(ctx, models.LevelInfo, "chat", "two", nil, nil)

	p.Drain(ctx)

	assert.Equal(t, 2, p.Pending())
	assert.Empty(t, store.stored())

	select {
	case n := <-ch:
		t.Fatalf("notification published for unstored record %s", n.ID)
	default:
	}

	p.Drain(ctx)

	assert.Zero(t, p.Pending())

	records := store.stored()
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Message)
	assert.Equal(t, "two", records[1].Message)

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		default:
			t.Fatalf("expected 2 notifications after successful drain, got %d", i)
		}
	}
}

func TestRunFinalDrainOnCancel(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{FlushInterval: models.Duration(time.Hour)}, logger.NewTestLogger())

	p.Emit(context.Background(), models.LevelInfo, "chat", "goodbye", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		p.Run(ctx)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}

	require.Len(t, store.stored(), 1)
	assert.Equal(t, "goodbye", store.stored()[0].Message)
}

func TestEmitCapturesErrorDetail(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{CaptureStack: true}, logger.NewTestLogger())

	ctx := context.Background()
	p.Emit(ctx, models.LevelError, "db", "query failed", nil, errQueryTimeout)
	p.Emit(ctx, models.LevelWarn, "db", "slow query", nil, errQueryTimeout)

	p.Drain(ctx)

	records := store.stored()
	require.Len(t, records, 2)

	withStack := records[0]
	require.NotNil(t, withStack.Error)
	assert.Equal(t, "query timeout", withStack.Error.Message)
	assert.NotEmpty(t, withStack.Error.Type)
	assert.Contains(t, withStack.Error.Stack, "goroutine")

	belowError := records[1]
	require.NotNil(t, belowError.Error)
	assert.Equal(t, "query timeout", belowError.Error.Message)
	assert.Empty(t, belowError.Error.Stack)

	quiet := NewPipeline(store, models.LogConfig{}, logger.NewTestLogger())
	quiet.Emit(ctx, models.LevelError, "db", "query failed", nil, errQueryTimeout)
	quiet.Drain(ctx)

	records = store.stored()
	require.Len(t, records, 3)
	require.NotNil(t, records[2].Error)
	assert.Empty(t, records[2].Error.Stack)
}

func TestSeverityCountsWindows(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{}, logger.NewTestLogger())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	ctx := context.Background()
	p.Emit(ctx, models.LevelError, "db", "old failure", nil, nil)

	now = now.Add(30 * time.Minute)
	p.Emit(ctx, models.LevelWarn, "db", "recent warning", nil, nil)

	now = now.Add(45 * time.Minute)
	p.Emit(ctx, models.LevelInfo, "chat", "request", nil, nil)
	p.Emit(ctx, models.LevelInfo, "chat", "request", nil, nil)

	counts := p.SeverityCounts()

	assert.Zero(t, counts.LastHour[models.LevelError])
	assert.EqualValues(t, 1, counts.LastHour[models.LevelWarn])
	assert.EqualValues(t, 2, counts.LastHour[models.LevelInfo])

	assert.EqualValues(t, 1, counts.LastDay[models.LevelError])
	assert.EqualValues(t, 1, counts.LastDay[models.LevelWarn])
	assert.EqualValues(t, 2, counts.LastDay[models.LevelInfo])
}

func TestTapCapturesZerologOutput(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{}, logger.NewTestLogger())

	zl := zerolog.New(p.Tap("pulse")).With().Timestamp().Logger()

	zl.Error().
		Str("component", "db").
		Str("query", "SELECT 1").
		Err(errQueryTimeout).
		Msg("query failed")

	zl.Info().Msg("plain message")

	require.Equal(t, 2, p.Pending())

	p.Drain(context.Background())

	records := store.stored()
	require.Len(t, records, 2)

	tapped := records[0]
	assert.Equal(t, models.LevelError, tapped.Level)
	assert.Equal(t, "db", tapped.Source)
	assert.Equal(t, "query failed", tapped.Message)
	assert.Equal(t, "SELECT 1", tapped.Fields["query"])
	require.NotNil(t, tapped.Error)
	assert.Equal(t, "query timeout", tapped.Error.Message)
	assert.False(t, tapped.Timestamp.IsZero())

	plain := records[1]
	assert.Equal(t, models.LevelInfo, plain.Level)
	assert.Equal(t, "pulse", plain.Source)
	assert.Equal(t, "plain message", plain.Message)
}

func TestTapRespectsMinimumLevel(t *testing.T) {
	store := &fakeLogStore{}
	p := NewPipeline(store, models.LogConfig{MinLevel: models.LevelWarn}, logger.NewTestLogger())

	tap := p.Tap("pulse")

	zl := zerolog.New(tap)
	zl.Info().Msg("filtered")
	zl.Warn().Msg("kept")

	// Non-JSON output passes through uncaptured.
	n, err := tap.Write([]byte("plain console line\n"))
	require.NoError(t, err)
	assert.Equal(t, len("plain console line\n"), n)

	require.Equal(t, 1, p.Pending())

	p.Drain(context.Background())

	records := store.stored()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Message)
	assert.Equal(t, models.LevelWarn, records[0].Level)
}
