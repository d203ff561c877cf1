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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/carelane/pulse/pkg/models"
)

const mirrorTracerName = "github.com/carelane/pulse/pkg/tracing"

// traceMirror replays finished traces as OpenTelemetry spans so deployments
// that run an OTLP pipeline see the same data there. Traces arrive complete,
// so every span is started and ended with explicit timestamps.
type traceMirror struct {
	tracer oteltrace.Tracer
}

func newTraceMirror(provider oteltrace.TracerProvider) *traceMirror {
	return &traceMirror{tracer: provider.Tracer(mirrorTracerName)}
}

func (m *traceMirror) export(tc *models.TraceContext) {
	name := tc.Route
	if name == "" {
		name = tc.EntryKind
	}

	attrs := []attribute.KeyValue{
		attribute.String("pulse.trace_id", tc.ID),
		attribute.String("pulse.entry_kind", tc.EntryKind),
	}

	if tc.SessionID != "" {
		attrs = append(attrs, attribute.String("pulse.session_id", tc.SessionID))
	}

	if tc.ActorID != "" {
		attrs = append(attrs, attribute.String("pulse.actor_id", tc.ActorID))
	}

	if tc.Tenant != "" {
		attrs = append(attrs, attribute.String("pulse.tenant", tc.Tenant))
	}

	for k, v := range tc.Tags {
		attrs = append(attrs, attribute.String(k, v))
	}

	rootCtx, root := m.tracer.Start(context.Background(), name,
		oteltrace.WithTimestamp(tc.StartTime),
		oteltrace.WithSpanKind(entrySpanKind(tc.EntryKind)),
		oteltrace.WithAttributes(attrs...))

	if tc.Status == models.TraceStatusError {
		root.SetStatus(codes.Error, tc.ErrorDetail)
	}

	// Spans are recorded in creation order, so a parent always precedes its
	// children and its context is already in the map when they start.
	ctxByID := map[string]context.Context{"": rootCtx}

	for _, span := range tc.Spans {
		parentCtx, ok := ctxByID[span.ParentSpanID]
		if !ok {
			parentCtx = rootCtx
		}

		spanAttrs := []attribute.KeyValue{
			attribute.String("pulse.span_id", span.ID),
		}

		for k, v := range span.Tags {
			spanAttrs = append(spanAttrs, attribute.String(k, v))
		}

		childCtx, child := m.tracer.Start(parentCtx, span.Name,
			oteltrace.WithTimestamp(span.StartTime),
			oteltrace.WithAttributes(spanAttrs...))

		ctxByID[span.ID] = childCtx

		for _, log := range span.Logs {
			child.AddEvent(log.Message, oteltrace.WithTimestamp(log.Timestamp))
		}

		if span.Status == models.TraceStatusError {
			child.SetStatus(codes.Error, span.ErrorDetail)
		}

		end := span.EndTime
		if end.IsZero() {
			// Still open when the trace finished; close it at the trace end.
			end = tc.EndTime
		}

		child.End(oteltrace.WithTimestamp(end))
	}

	root.End(oteltrace.WithTimestamp(tc.EndTime))
}

func entrySpanKind(entryKind string) oteltrace.SpanKind {
	switch entryKind {
	case "http", "websocket":
		return oteltrace.SpanKindServer
	default:
		return oteltrace.SpanKindInternal
	}
}
