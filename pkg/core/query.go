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

package core

import (
	"context"
	"errors"
	"io"

	"github.com/carelane/pulse/pkg/alerts"
	"github.com/carelane/pulse/pkg/models"
)

// ErrLiveTailUnavailable is returned by TailLogs when notifications are
// published on NATS instead of the in-process hub; tailers subscribe to the
// JetStream stream directly in that mode.
var ErrLiveTailUnavailable = errors.New("live tail requires the in-process broker")

// Snapshot returns the current aggregated metrics, enriched with recent log
// volume by severity.
func (s *Service) Snapshot(ctx context.Context) *models.MetricSnapshot {
	snapshot := s.aggregator.Snapshot(ctx)
	snapshot.Logs = s.pipeline.SeverityCounts()

	return snapshot
}

// Health derives a coarse health state from the current snapshot.
func (s *Service) Health(ctx context.Context) *models.HealthStatus {
	return s.aggregator.Health(ctx)
}

// GetTrace returns one stored trace with its spans.
func (s *Service) GetTrace(ctx context.Context, id string) (*models.TraceContext, error) {
	return s.store.GetTrace(ctx, id)
}

// ListTraces returns stored traces matching the filter, newest first.
// Traces become visible after the next flush cycle.
func (s *Service) ListTraces(ctx context.Context, filter *models.TraceFilter) ([]*models.TraceContext, error) {
	return s.store.ListTraces(ctx, filter)
}

// ListSpans returns the stored spans of one trace in start order.
func (s *Service) ListSpans(ctx context.Context, traceID string) ([]*models.Span, error) {
	return s.store.ListSpans(ctx, traceID)
}

// GetLog returns one stored log record.
func (s *Service) GetLog(ctx context.Context, id string) (*models.LogRecord, error) {
	return s.store.GetLog(ctx, id)
}

// ListLogs returns stored log records matching the filter, newest first.
// Records become visible after the next drain cycle.
func (s *Service) ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.LogRecord, error) {
	return s.store.ListLogs(ctx, filter)
}

// TailLogs subscribes to live log notifications from the in-process hub.
// The returned cancel function must be called to release the subscription.
func (s *Service) TailLogs(buffer int) (<-chan models.LogNotification, func(), error) {
	if s.hub == nil {
		return nil, nil, ErrLiveTailUnavailable
	}

	ch, cancel := s.hub.Subscribe(buffer)

	return ch, cancel, nil
}

// LogTap returns a writer that feeds zerolog JSON output into the log
// pipeline, so the host process's own logs are captured and persisted like
// any instrumented caller's. Wire it into the application's root logger, not
// into the logger handed to NewService.
func (s *Service) LogTap(source string) io.Writer {
	return s.pipeline.Tap(source)
}

// AlertRules exposes the rule admin surface.
func (s *Service) AlertRules() *alerts.Rules {
	return s.rules
}

// AlertInstances exposes the fired-alert admin surface.
func (s *Service) AlertInstances() *alerts.Instances {
	return s.instances
}

// EvaluateAlerts forces one evaluation cycle outside the engine's cadence.
func (s *Service) EvaluateAlerts(ctx context.Context) {
	s.engine.Evaluate(ctx)
}
