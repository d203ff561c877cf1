/*
 * Copyright 2025 Carelane, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models defines the shared data model for the pulse observability core.
package models

import "time"

// TraceStatus is the lifecycle state of a trace or span. Transitions are
// forward-only: in_progress may move to completed or error, never back.
type TraceStatus string

const (
	TraceStatusInProgress TraceStatus = "in_progress"
	TraceStatusCompleted  TraceStatus = "completed"
	TraceStatusError      TraceStatus = "error"
)

// TraceContext is the complete record of one inbound unit of work. It is
// owned by the call that created it and becomes immutable once finished and
// handed to the collector.
type TraceContext struct {
	ID          string            `json:"id"`
	EntryKind   string            `json:"entry_kind"` // http, websocket, job, bot
	Route       string            `json:"route"`
	SessionID   string            `json:"session_id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	Tenant      string            `json:"tenant,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time,omitempty"`
	DurationMS  float64           `json:"duration_ms"`
	Status      TraceStatus       `json:"status"`
	ErrorDetail string            `json:"error_detail,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	SpanCount   int               `json:"span_count"`
	Spans       []*Span           `json:"spans,omitempty"`
}

// Span is a timed sub-operation within a trace. ParentSpanID is empty for
// spans opened directly under the trace.
type Span struct {
	ID           string            `json:"id"`
	TraceID      string            `json:"trace_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time,omitempty"`
	DurationMS   float64           `json:"duration_ms"`
	Status       TraceStatus       `json:"status"`
	ErrorDetail  string            `json:"error_detail,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Logs         []SpanLog         `json:"logs,omitempty"`
}

// SpanLog is a timestamped free-text annotation attached to a span.
type SpanLog struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// LogLevel is the severity of a log record.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// Rank orders levels for threshold comparisons; unknown levels rank as info.
func (l LogLevel) Rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	default:
		return 1
	}
}

// CapturedError preserves the error attached to a log record.
type CapturedError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// LogRecord is one emitted log event, immutable once created. Correlation
// fields are empty when the record was emitted outside any trace.
type LogRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Route     string         `json:"route,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Error     *CapturedError `json:"error,omitempty"`
}

// LogNotification is the compact payload published on the change-notification
// channel for live tailing.
type LogNotification struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Notification converts a stored record into its live-tail payload.
func (r *LogRecord) Notification() LogNotification {
	return LogNotification{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Level:     r.Level,
		Source:    r.Source,
		Message:   r.Message,
		TraceID:   r.TraceID,
	}
}
