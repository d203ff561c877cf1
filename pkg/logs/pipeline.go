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

// Package logs captures structured log records, correlates them with the
// ambient trace and drains them to storage in the background.
package logs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
	"github.com/carelane/pulse/pkg/tracing"
)

const (
	defaultLogBuffer        = 8192
	defaultLogFlushInterval = 5 * time.Second
	defaultLogFlushBatch    = 500
	finalDrainTimeout       = 5 * time.Second

	counterLogsDropped = "logs_dropped"
)

// LogStore is the slice of storage the pipeline writes through.
type LogStore interface {
	InsertLogs(ctx context.Context, logs []*models.LogRecord) error
}

// DropCounter records log records discarded on queue overflow.
type DropCounter interface {
	AddCounter(name string, n int64)
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithBroker publishes a live-tail notification for every stored record.
func WithBroker(broker Broker) PipelineOption {
	return func(p *Pipeline) {
		p.broker = broker
	}
}

// WithDropCounter reports dropped records to the given counter.
func WithDropCounter(counter DropCounter) PipelineOption {
	return func(p *Pipeline) {
		p.counter = counter
	}
}

// Pipeline accepts log records on the hot path and persists them in batches
// from a background drain loop. Emit never does I/O; records become visible
// to queries after the next drain cycle.
type Pipeline struct {
	store   LogStore
	broker  Broker
	logger  logger.Logger
	counter DropCounter

	minRank       int
	captureStack  bool
	capacity      int
	flushInterval time.Duration
	flushBatch    int

	severity *severityTracker

	nowFn func() time.Time
	idFn  func() string

	mu    sync.Mutex
	queue []*models.LogRecord
}

// NewPipeline returns a pipeline writing through the given store.
func NewPipeline(store LogStore, cfg models.LogConfig, log logger.Logger, opts ...PipelineOption) *Pipeline {
	capacity := cfg.BufferSize
	if capacity <= 0 {
		capacity = defaultLogBuffer
	}

	interval := time.Duration(cfg.FlushInterval)
	if interval <= 0 {
		interval = defaultLogFlushInterval
	}

	batch := cfg.FlushBatch
	if batch <= 0 {
		batch = defaultLogFlushBatch
	}

	minLevel := cfg.MinLevel
	if minLevel == "" {
		minLevel = models.LevelDebug
	}

	p := &Pipeline{
		store:         store,
		logger:        log,
		minRank:       minLevel.Rank(),
		captureStack:  cfg.CaptureStack,
		capacity:      capacity,
		flushInterval: interval,
		flushBatch:    batch,
		severity:      newSeverityTracker(),
		nowFn:         time.Now,
		idFn:          uuid.NewString,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Emit captures one log record. Trace, span, actor, session and route are
// inherited from the context; outside a trace they stay empty. Records below
// the configured minimum level are not captured. Emit never blocks on I/O;
// when the queue is full the oldest record is dropped and counted.
func (p *Pipeline) Emit(ctx context.Context, level models.LogLevel, source, message string, fields map[string]any, emitErr error) {
	if level.Rank() < p.minRank {
		return
	}

	now := p.nowFn().UTC()
	corr := tracing.CorrelationFromContext(ctx)

	record := &models.LogRecord{
		ID:        p.idFn(),
		Timestamp: now,
		Level:     level,
		Source:    source,
		Message:   message,
		TraceID:   corr.TraceID,
		SpanID:    corr.SpanID,
		ActorID:   corr.ActorID,
		SessionID: corr.SessionID,
		Route:     corr.Route,
		Fields:    copyFields(fields),
	}

	if emitErr != nil {
		captured := &models.CapturedError{
			Type:    fmt.Sprintf("%T", emitErr),
			Message: emitErr.Error(),
		}

		if p.captureStack && level.Rank() >= models.LevelError.Rank() {
			captured.Stack = string(debug.Stack())
		}

		record.Error = captured
	}

	p.severity.add(now, level)
	p.enqueue(record)
}

// SeverityCounts reports per-level totals of records accepted over the
// trailing hour and day.
func (p *Pipeline) SeverityCounts() *models.LogSeverityCounts {
	now := p.nowFn().UTC()

	return &models.LogSeverityCounts{
		LastHour: p.severity.counts(now, time.Hour),
		LastDay:  p.severity.counts(now, severityRetention),
	}
}

// Pending returns the number of records waiting for the next drain.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// Run drains the queue on the configured cadence until the context is
// canceled, then performs one final drain on a detached context.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalDrainTimeout)
			defer cancel()

			p.Drain(drainCtx)

			return
		case <-ticker.C:
			p.Drain(ctx)
		}
	}
}

// Drain writes queued records to the store in batches. A failed write
// requeues the remainder at the front and leaves it for the next cycle;
// successfully stored records are announced on the broker.
func (p *Pipeline) Drain(ctx context.Context) {
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for len(pending) > 0 {
		n := min(p.flushBatch, len(pending))
		batch := pending[:n]

		if err := p.store.InsertLogs(ctx, batch); err != nil {
			p.logger.Error().
				Err(err).
				Int("log_count", len(pending)).
				Msg("Failed to flush log records, requeueing")

			p.requeue(pending)

			return
		}

		p.logger.Debug().
			Int("log_count", n).
			Msg("Flushed log records")

		p.notify(ctx, batch)

		pending = pending[n:]
	}
}

func (p *Pipeline) notify(ctx context.Context, records []*models.LogRecord) {
	if p.broker == nil {
		return
	}

	for _, record := range records {
		if err := p.broker.Publish(ctx, record.Notification()); err != nil {
			p.logger.Debug().
				Err(err).
				Str("log_id", record.ID).
				Msg("Live-tail publish failed")
		}
	}
}

func (p *Pipeline) enqueue(record *models.LogRecord) {
	p.mu.Lock()

	dropped := 0
	if len(p.queue) >= p.capacity {
		dropped = len(p.queue) - p.capacity + 1
		p.queue = p.queue[dropped:]
	}

	p.queue = append(p.queue, record)

	p.mu.Unlock()

	p.countDrops(dropped)
}

func (p *Pipeline) requeue(pending []*models.LogRecord) {
	p.mu.Lock()

	combined := append(pending, p.queue...)

	dropped := 0
	if len(combined) > p.capacity {
		dropped = len(combined) - p.capacity
		combined = combined[dropped:]
	}

	p.queue = combined

	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn().
			Int("dropped", dropped).
			Msg("Log queue over capacity after requeue, dropping oldest")
	}

	p.countDrops(dropped)
}

func (p *Pipeline) countDrops(n int) {
	if n <= 0 || p.counter == nil {
		return
	}

	p.counter.AddCounter(counterLogsDropped, int64(n))
}

func copyFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	return out
}
