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

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carelane/pulse/pkg/models"
)

const insertTraceQuery = `
INSERT INTO traces (
	trace_id, entry_kind, route, session_id, actor_id, tenant,
	start_time, end_time, duration_ms, status, error_detail, tags, span_count
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11, $12::jsonb, $13
)
ON CONFLICT (trace_id) DO NOTHING`

const insertSpanQuery = `
INSERT INTO spans (
	trace_id, span_id, parent_span_id, name,
	start_time, end_time, duration_ms, status, error_detail, tags, logs
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8, $9, $10::jsonb, $11::jsonb
)
ON CONFLICT (trace_id, span_id) DO UPDATE SET
	end_time = EXCLUDED.end_time,
	duration_ms = EXCLUDED.duration_ms,
	status = EXCLUDED.status,
	error_detail = EXCLUDED.error_detail,
	tags = EXCLUDED.tags,
	logs = EXCLUDED.logs
WHERE spans.status = 'in_progress'`

// traceSelection is the base SELECT for querying traces.
const traceSelection = `
SELECT
	trace_id,
	entry_kind,
	route,
	session_id,
	actor_id,
	tenant,
	start_time,
	end_time,
	duration_ms,
	status,
	error_detail,
	tags,
	span_count
FROM traces
WHERE 1=1`

const spanSelection = `
SELECT
	trace_id,
	span_id,
	parent_span_id,
	name,
	start_time,
	end_time,
	duration_ms,
	status,
	error_detail,
	tags,
	logs
FROM spans
WHERE trace_id = $1
ORDER BY start_time ASC, span_id ASC`

// InsertTraces persists a drained batch of finished traces with their spans.
// Conflicting IDs are skipped so a retried batch never duplicates rows.
func (s *store) InsertTraces(ctx context.Context, traces []*models.TraceContext) error {
	if len(traces) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, trace := range traces {
		if trace == nil {
			continue
		}

		batch.Queue(insertTraceQuery,
			trace.ID,
			trace.EntryKind,
			trace.Route,
			trace.SessionID,
			trace.ActorID,
			trace.Tenant,
			trace.StartTime,
			nullableTime(trace.EndTime),
			trace.DurationMS,
			string(trace.Status),
			trace.ErrorDetail,
			stringMapJSON(trace.Tags),
			len(trace.Spans),
		)

		for _, span := range trace.Spans {
			if span == nil {
				continue
			}

			queueSpan(batch, trace.ID, span)
		}
	}

	return s.sendBatch(ctx, batch, "traces")
}

// InsertSpans persists spans whose trace row already exists, which is the
// case for spans finishing after their trace was flushed.
func (s *store) InsertSpans(ctx context.Context, spans []*models.Span) error {
	if len(spans) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, span := range spans {
		if span == nil {
			continue
		}

		queueSpan(batch, span.TraceID, span)
	}

	return s.sendBatch(ctx, batch, "spans")
}

func queueSpan(batch *pgx.Batch, traceID string, span *models.Span) {
	logsJSON := []byte("[]")

	if len(span.Logs) > 0 {
		if b, err := json.Marshal(span.Logs); err == nil {
			logsJSON = b
		}
	}

	batch.Queue(insertSpanQuery,
		traceID,
		span.ID,
		span.ParentSpanID,
		span.Name,
		span.StartTime,
		nullableTime(span.EndTime),
		span.DurationMS,
		string(span.Status),
		span.ErrorDetail,
		stringMapJSON(span.Tags),
		logsJSON,
	)
}

// GetTrace retrieves one trace with its spans attached.
func (s *store) GetTrace(ctx context.Context, id string) (*models.TraceContext, error) {
	row := s.pool.QueryRow(ctx, traceSelection+" AND trace_id = $1", id)

	trace, err := scanTraceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTraceNotFound
		}

		return nil, fmt.Errorf("%w traces: %w", ErrFailedToQuery, err)
	}

	spans, err := s.querySpans(ctx, id)
	if err != nil {
		return nil, err
	}

	trace.Spans = spans

	return trace, nil
}

// ListTraces returns trace summaries matching the filter, newest first.
// Spans are not loaded; use GetTrace for the full record.
func (s *store) ListTraces(ctx context.Context, filter *models.TraceFilter) ([]*models.TraceContext, error) {
	if filter == nil {
		filter = &models.TraceFilter{}
	}

	filter.Clamp()

	query := traceSelection

	var args []interface{}

	if !filter.Start.IsZero() {
		query += fmt.Sprintf(" AND start_time >= $%d", len(args)+1)
		args = append(args, filter.Start)
	}

	if !filter.End.IsZero() {
		query += fmt.Sprintf(" AND start_time <= $%d", len(args)+1)
		args = append(args, filter.End)
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(filter.Status))
	}

	if filter.Route != "" {
		query += fmt.Sprintf(" AND route = $%d", len(args)+1)
		args = append(args, filter.Route)
	}

	if filter.SessionID != "" {
		query += fmt.Sprintf(" AND session_id = $%d", len(args)+1)
		args = append(args, filter.SessionID)
	}

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", len(args)+1)
		args = append(args, filter.ActorID)
	}

	if filter.Tenant != "" {
		query += fmt.Sprintf(" AND tenant = $%d", len(args)+1)
		args = append(args, filter.Tenant)
	}

	if filter.MinDurationMS > 0 {
		query += fmt.Sprintf(" AND duration_ms >= $%d", len(args)+1)
		args = append(args, filter.MinDurationMS)
	}

	query += fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w traces: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	return gatherTraces(rows)
}

// ListSpans returns the stored spans of one trace in start order.
func (s *store) ListSpans(ctx context.Context, traceID string) ([]*models.Span, error) {
	return s.querySpans(ctx, traceID)
}

func (s *store) querySpans(ctx context.Context, traceID string) ([]*models.Span, error) {
	rows, err := s.pool.Query(ctx, spanSelection, traceID)
	if err != nil {
		return nil, fmt.Errorf("%w spans: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var spans []*models.Span

	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}

		spans = append(spans, span)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w spans: %w", ErrFailedToQuery, err)
	}

	return spans, nil
}

// scanTraceRow scans a single trace row without spans.
func scanTraceRow(row pgx.Row) (*models.TraceContext, error) {
	var (
		trace    models.TraceContext
		status   string
		endTime  sql.NullTime
		tagsJSON []byte
	)

	err := row.Scan(
		&trace.ID,
		&trace.EntryKind,
		&trace.Route,
		&trace.SessionID,
		&trace.ActorID,
		&trace.Tenant,
		&trace.StartTime,
		&endTime,
		&trace.DurationMS,
		&status,
		&trace.ErrorDetail,
		&tagsJSON,
		&trace.SpanCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("%w trace row: %w", ErrFailedToScan, err)
	}

	trace.Status = models.TraceStatus(status)

	if endTime.Valid {
		trace.EndTime = endTime.Time
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &trace.Tags); err != nil {
			return nil, fmt.Errorf("%w trace tags: %w", ErrFailedToScan, err)
		}
	}

	return &trace, nil
}

func gatherTraces(rows pgx.Rows) ([]*models.TraceContext, error) {
	var traces []*models.TraceContext

	for rows.Next() {
		trace, err := scanTraceRow(rows)
		if err != nil {
			return nil, err
		}

		traces = append(traces, trace)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w traces: %w", ErrFailedToQuery, err)
	}

	return traces, nil
}

func scanSpan(row pgx.Row) (*models.Span, error) {
	var (
		span     models.Span
		status   string
		endTime  sql.NullTime
		tagsJSON []byte
		logsJSON []byte
	)

	err := row.Scan(
		&span.TraceID,
		&span.ID,
		&span.ParentSpanID,
		&span.Name,
		&span.StartTime,
		&endTime,
		&span.DurationMS,
		&status,
		&span.ErrorDetail,
		&tagsJSON,
		&logsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("%w span row: %w", ErrFailedToScan, err)
	}

	span.Status = models.TraceStatus(status)

	if endTime.Valid {
		span.EndTime = endTime.Time
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &span.Tags); err != nil {
			return nil, fmt.Errorf("%w span tags: %w", ErrFailedToScan, err)
		}
	}

	if len(logsJSON) > 0 {
		if err := json.Unmarshal(logsJSON, &span.Logs); err != nil {
			return nil, fmt.Errorf("%w span logs: %w", ErrFailedToScan, err)
		}
	}

	return &span, nil
}

// stringMapJSON renders a tag map as JSONB input. A nil map becomes {}.
func stringMapJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}

	return b
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}

	return t
}
