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

	"github.com/jackc/pgx/v5"

	"github.com/carelane/pulse/pkg/models"
)

const insertLogQuery = `
INSERT INTO log_records (
	id, timestamp, level, source, message,
	trace_id, span_id, actor_id, session_id, route,
	fields, error
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10,
	$11::jsonb, $12::jsonb
)
ON CONFLICT (id) DO NOTHING`

// logSelection is the base SELECT for querying log records.
const logSelection = `
SELECT
	id,
	timestamp,
	level,
	source,
	message,
	trace_id,
	span_id,
	actor_id,
	session_id,
	route,
	fields,
	error
FROM log_records
WHERE 1=1`

// InsertLogs persists a drained batch of log records. Conflicting IDs are
// skipped so a retried batch never duplicates rows.
func (s *store) InsertLogs(ctx context.Context, records []*models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, rec := range records {
		if rec == nil {
			continue
		}

		batch.Queue(insertLogQuery,
			rec.ID,
			rec.Timestamp,
			string(rec.Level),
			rec.Source,
			rec.Message,
			rec.TraceID,
			rec.SpanID,
			rec.ActorID,
			rec.SessionID,
			rec.Route,
			fieldsJSON(rec.Fields),
			capturedErrorJSON(rec.Error),
		)
	}

	return s.sendBatch(ctx, batch, "log_records")
}

// GetLog retrieves one stored log record by id.
func (s *store) GetLog(ctx context.Context, id string) (*models.LogRecord, error) {
	row := s.pool.QueryRow(ctx, logSelection+" AND id = $1", id)

	rec, err := scanLogRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogNotFound
		}

		return nil, fmt.Errorf("%w log_records: %w", ErrFailedToQuery, err)
	}

	return rec, nil
}

// ListLogs returns log records matching the filter, newest first. Search
// terms go through full-text matching with a substring fallback so short
// fragments still hit.
func (s *store) ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.LogRecord, error) {
	if filter == nil {
		filter = &models.LogFilter{}
	}

	filter.Clamp()

	query := logSelection

	var args []interface{}

	if !filter.Start.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args)+1)
		args = append(args, filter.Start)
	}

	if !filter.End.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args)+1)
		args = append(args, filter.End)
	}

	if len(filter.Levels) > 0 {
		levels := make([]string, 0, len(filter.Levels))
		for _, level := range filter.Levels {
			levels = append(levels, string(level))
		}

		query += fmt.Sprintf(" AND level = ANY($%d)", len(args)+1)
		args = append(args, levels)
	}

	if filter.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", len(args)+1)
		args = append(args, filter.Source)
	}

	if filter.TraceID != "" {
		query += fmt.Sprintf(" AND trace_id = $%d", len(args)+1)
		args = append(args, filter.TraceID)
	}

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", len(args)+1)
		args = append(args, filter.ActorID)
	}

	if filter.Search != "" {
		query += fmt.Sprintf(
			" AND (to_tsvector('english', message) @@ websearch_to_tsquery('english', $%d) OR message ILIKE $%d)",
			len(args)+1, len(args)+2)
		args = append(args, filter.Search, "%"+filter.Search+"%")
	}

	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w log_records: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	return gatherLogRecords(rows)
}

func gatherLogRecords(rows pgx.Rows) ([]*models.LogRecord, error) {
	var records []*models.LogRecord

	for rows.Next() {
		rec, err := scanLogRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w log_records: %w", ErrFailedToQuery, err)
	}

	return records, nil
}

// scanLogRecord scans a single log row.
func scanLogRecord(row pgx.Row) (*models.LogRecord, error) {
	var (
		rec        models.LogRecord
		level      string
		fieldsData []byte
		errData    []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&level,
		&rec.Source,
		&rec.Message,
		&rec.TraceID,
		&rec.SpanID,
		&rec.ActorID,
		&rec.SessionID,
		&rec.Route,
		&fieldsData,
		&errData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("%w log row: %w", ErrFailedToScan, err)
	}

	rec.Level = models.LogLevel(level)

	if len(fieldsData) > 0 {
		if err := json.Unmarshal(fieldsData, &rec.Fields); err != nil {
			return nil, fmt.Errorf("%w log fields: %w", ErrFailedToScan, err)
		}
	}

	if len(errData) > 0 {
		if err := json.Unmarshal(errData, &rec.Error); err != nil {
			return nil, fmt.Errorf("%w log error: %w", ErrFailedToScan, err)
		}
	}

	return &rec, nil
}

// fieldsJSON renders structured fields as JSONB input. Unmarshalable values
// degrade to an empty object rather than failing the batch.
func fieldsJSON(fields map[string]any) []byte {
	if len(fields) == 0 {
		return []byte("{}")
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return []byte("{}")
	}

	return b
}

func capturedErrorJSON(ce *models.CapturedError) interface{} {
	if ce == nil {
		return nil
	}

	b, err := json.Marshal(ce)
	if err != nil {
		return nil
	}

	return b
}
