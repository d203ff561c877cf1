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

// Package tracing generates and propagates correlation identifiers through a
// unit of work and collects finished traces and spans for durable storage.
package tracing

import "context"

// Context keys for the ambient trace and span. Unexported types keep other
// packages from colliding with or forging these values.
type (
	traceKeyType struct{}
	spanKeyType  struct{}
)

var (
	traceKey = traceKeyType{}
	spanKey  = spanKeyType{}
)

// ContextWithTrace installs an active trace as the ambient trace.
func ContextWithTrace(ctx context.Context, trace *ActiveTrace) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

// TraceFromContext retrieves the ambient trace, if any.
func TraceFromContext(ctx context.Context) (*ActiveTrace, bool) {
	trace, ok := ctx.Value(traceKey).(*ActiveTrace)
	return trace, ok && trace != nil
}

// ContextWithSpan installs an active span as the ambient span.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext retrieves the ambient span, if any. Discarded spans are
// never installed, so a hit is always a live span.
func SpanFromContext(ctx context.Context) (*ActiveSpan, bool) {
	span, ok := ctx.Value(spanKey).(*ActiveSpan)
	return span, ok && span != nil
}

// CurrentTraceID returns the ambient trace id, empty outside any trace.
func CurrentTraceID(ctx context.Context) string {
	if trace, ok := TraceFromContext(ctx); ok {
		return trace.ID()
	}

	return ""
}

// CurrentSpanID returns the ambient span id, empty outside any span.
func CurrentSpanID(ctx context.Context) string {
	if span, ok := SpanFromContext(ctx); ok {
		return span.ID()
	}

	return ""
}

// Correlation is the ambient identity a log record inherits from the unit of
// work it was emitted in. All fields are empty outside a trace.
type Correlation struct {
	TraceID   string
	SpanID    string
	SessionID string
	ActorID   string
	Route     string
}

// CorrelationFromContext reads the full ambient identity in one call.
func CorrelationFromContext(ctx context.Context) Correlation {
	var corr Correlation

	if trace, ok := TraceFromContext(ctx); ok {
		corr.TraceID = trace.ID()
		corr.SessionID, corr.ActorID = trace.Session()
		corr.Route = trace.Route()
	}

	if span, ok := SpanFromContext(ctx); ok {
		corr.SpanID = span.ID()
	}

	return corr
}
