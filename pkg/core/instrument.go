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

	"github.com/carelane/pulse/pkg/models"
	"github.com/carelane/pulse/pkg/tracing"
)

// StartTrace opens a trace for one inbound unit of work and installs it as
// the ambient trace on the returned context. Finish the trace on every exit
// path; spans and log records created under the returned context correlate
// automatically.
func (s *Service) StartTrace(ctx context.Context, entryKind, route string, opts ...tracing.TraceOption) (context.Context, *tracing.ActiveTrace) {
	return s.tracer.StartTrace(ctx, entryKind, route, opts...)
}

// StartSpan opens a span for a sub-operation under the ambient trace.
// Without an ambient trace the returned span is a safe no-op.
func (s *Service) StartSpan(ctx context.Context, name string, opts ...tracing.SpanOption) (context.Context, *tracing.ActiveSpan) {
	return s.tracer.StartSpan(ctx, name, opts...)
}

// Emit records a log event with the ambient correlation identifiers. It
// never blocks on I/O; persistence happens on the drain cadence.
func (s *Service) Emit(ctx context.Context, level models.LogLevel, source, message string, fields map[string]any, err error) {
	s.pipeline.Emit(ctx, level, source, message, fields, err)
}

// RecordRequest notes one handled request for the route.
func (s *Service) RecordRequest(route string, latencyMS float64, isErr bool) {
	s.aggregator.RecordRequest(route, latencyMS, isErr)
}

// RecordError bumps the error counters without a route attribution.
func (s *Service) RecordError() {
	s.aggregator.RecordError()
}

// RecordRetrieval notes one retrieval round with its per-phase timings.
func (s *Service) RecordRetrieval(totalMS float64, phases map[string]float64, resultCount int, cacheHit bool) {
	s.aggregator.RecordRetrieval(totalMS, phases, resultCount, cacheHit)
}

// RecordExternalCall notes one upstream provider call with token and cost
// accounting.
func (s *Service) RecordExternalCall(provider string, latencyMS, firstResultMS float64, tokensIn, tokensOut int64, cost float64, isErr bool) {
	s.aggregator.RecordExternalCall(provider, latencyMS, firstResultMS, tokensIn, tokensOut, cost, isErr)
}

// Observe appends a sample to the named metric window.
func (s *Service) Observe(name string, value float64) {
	s.aggregator.Observe(name, value)
}

// AddCounter bumps a named monotonic counter.
func (s *Service) AddCounter(name string, n int64) {
	s.aggregator.AddCounter(name, n)
}
