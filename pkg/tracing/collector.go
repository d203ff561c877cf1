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
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const (
	defaultTraceBuffer        = 4096
	defaultTraceFlushInterval = 10 * time.Second
	defaultTraceFlushBatch    = 256
	finalFlushTimeout         = 5 * time.Second

	counterTracesDropped = "traces_dropped"
	counterSpansDropped  = "spans_dropped"
)

// TraceStore is the slice of storage the collector writes through.
type TraceStore interface {
	InsertTraces(ctx context.Context, traces []*models.TraceContext) error
	InsertSpans(ctx context.Context, spans []*models.Span) error
}

// DropCounter records buffered work that had to be discarded.
type DropCounter interface {
	AddCounter(name string, n int64)
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithDropCounter reports dropped traces and spans to the given counter.
func WithDropCounter(counter DropCounter) CollectorOption {
	return func(c *Collector) {
		c.counter = counter
	}
}

// WithTraceMirror additionally replays every finished trace onto the given
// OpenTelemetry provider. Mirroring is best-effort; the local store remains
// authoritative.
func WithTraceMirror(provider oteltrace.TracerProvider) CollectorOption {
	return func(c *Collector) {
		c.mirror = newTraceMirror(provider)
	}
}

// Collector buffers finished traces and late-finishing spans in memory and
// flushes them to storage on a fixed cadence. Enqueueing never blocks the
// caller: when a buffer is full the oldest entry is dropped and counted.
type Collector struct {
	store   TraceStore
	logger  logger.Logger
	counter DropCounter
	mirror  *traceMirror

	capacity      int
	flushInterval time.Duration
	flushBatch    int

	mu     sync.Mutex
	traces []*models.TraceContext
	spans  []*models.Span
}

// NewCollector returns a collector writing through the given store.
func NewCollector(store TraceStore, cfg models.TraceConfig, log logger.Logger, opts ...CollectorOption) *Collector {
	capacity := cfg.BufferSize
	if capacity <= 0 {
		capacity = defaultTraceBuffer
	}

	interval := time.Duration(cfg.FlushInterval)
	if interval <= 0 {
		interval = defaultTraceFlushInterval
	}

	batch := cfg.FlushBatch
	if batch <= 0 {
		batch = defaultTraceFlushBatch
	}

	c := &Collector{
		store:         store,
		logger:        log,
		capacity:      capacity,
		flushInterval: interval,
		flushBatch:    batch,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EnqueueTrace accepts a finished trace for storage. It never blocks.
func (c *Collector) EnqueueTrace(trace *models.TraceContext) {
	c.mu.Lock()

	dropped := 0
	if len(c.traces) >= c.capacity {
		dropped = len(c.traces) - c.capacity + 1
		c.traces = c.traces[dropped:]
	}

	c.traces = append(c.traces, trace)

	c.mu.Unlock()

	c.countDrops(counterTracesDropped, dropped)

	if c.mirror != nil {
		c.mirror.export(trace)
	}
}

// EnqueueSpan accepts a span that finished after its trace was already
// collected. It never blocks.
func (c *Collector) EnqueueSpan(span *models.Span) {
	c.mu.Lock()

	dropped := 0
	if len(c.spans) >= c.capacity {
		dropped = len(c.spans) - c.capacity + 1
		c.spans = c.spans[dropped:]
	}

	c.spans = append(c.spans, span)

	c.mu.Unlock()

	c.countDrops(counterSpansDropped, dropped)
}

// Pending returns the current buffer occupancy.
func (c *Collector) Pending() (traces, spans int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.traces), len(c.spans)
}

// Run flushes buffers on the configured cadence until the context is
// canceled, then performs one final flush on a detached context so buffered
// work is not lost on shutdown.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()

			c.Flush(flushCtx)

			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Flush writes all buffered traces and then all buffered late spans. Traces
// go first so span upserts always find their parent rows. On a storage
// failure the unwritten remainder is requeued at the front of its buffer.
func (c *Collector) Flush(ctx context.Context) {
	c.flushTraces(ctx)
	c.flushSpans(ctx)
}

func (c *Collector) flushTraces(ctx context.Context) {
	c.mu.Lock()
	pending := c.traces
	c.traces = nil
	c.mu.Unlock()

	for len(pending) > 0 {
		n := min(c.flushBatch, len(pending))

		if err := c.store.InsertTraces(ctx, pending[:n]); err != nil {
			c.logger.Error().
				Err(err).
				Int("trace_count", len(pending)).
				Msg("Failed to flush traces, requeueing")

			c.requeueTraces(pending)

			return
		}

		c.logger.Debug().
			Int("trace_count", n).
			Msg("Flushed traces")

		pending = pending[n:]
	}
}

func (c *Collector) flushSpans(ctx context.Context) {
	c.mu.Lock()
	pending := c.spans
	c.spans = nil
	c.mu.Unlock()

	for len(pending) > 0 {
		n := min(c.flushBatch, len(pending))

		if err := c.store.InsertSpans(ctx, pending[:n]); err != nil {
			c.logger.Error().
				Err(err).
				Int("span_count", len(pending)).
				Msg("Failed to flush spans, requeueing")

			c.requeueSpans(pending)

			return
		}

		c.logger.Debug().
			Int("span_count", n).
			Msg("Flushed spans")

		pending = pending[n:]
	}
}

func (c *Collector) requeueTraces(pending []*models.TraceContext) {
	c.mu.Lock()

	combined := append(pending, c.traces...)

	dropped := 0
	if len(combined) > c.capacity {
		dropped = len(combined) - c.capacity
		combined = combined[dropped:]
	}

	c.traces = combined

	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn().
			Int("dropped", dropped).
			Msg("Trace buffer over capacity after requeue, dropping oldest")
	}

	c.countDrops(counterTracesDropped, dropped)
}

func (c *Collector) requeueSpans(pending []*models.Span) {
	c.mu.Lock()

	combined := append(pending, c.spans...)

	dropped := 0
	if len(combined) > c.capacity {
		dropped = len(combined) - c.capacity
		combined = combined[dropped:]
	}

	c.spans = combined

	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn().
			Int("dropped", dropped).
			Msg("Span buffer over capacity after requeue, dropping oldest")
	}

	c.countDrops(counterSpansDropped, dropped)
}

func (c *Collector) countDrops(name string, n int) {
	if n <= 0 || c.counter == nil {
		return
	}

	c.counter.AddCounter(name, int64(n))
}
