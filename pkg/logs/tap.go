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
	"encoding/json"
	"io"
	"time"

	"github.com/carelane/pulse/pkg/models"
)

// Tap returns an io.Writer that feeds zerolog JSON output back into the
// pipeline, so the process's own logs are captured, correlated and persisted
// like any caller's. Wire it as an additional zerolog output; records keep
// the emitting component as their source when one is present. Non-JSON
// writes pass through uncaptured. Tap the root logger, not the pipeline's
// own component logger, or every drain message becomes a new record.
func (p *Pipeline) Tap(source string) io.Writer {
	return &tapWriter{pipeline: p, source: source}
}

type tapWriter struct {
	pipeline *Pipeline
	source   string
}

func (w *tapWriter) Write(data []byte) (int, error) {
	entry := make(map[string]interface{})
	if err := json.Unmarshal(data, &entry); err != nil {
		return len(data), nil
	}

	level := models.LevelInfo
	if levelStr, ok := entry["level"].(string); ok {
		level = mapZerologLevel(levelStr)

		delete(entry, "level")
	}

	if level.Rank() < w.pipeline.minRank {
		return len(data), nil
	}

	timestamp := w.pipeline.nowFn().UTC()

	if raw, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			timestamp = parsed.UTC()
		}

		delete(entry, "time")
	}

	message := ""
	if msg, ok := entry["message"].(string); ok {
		message = msg

		delete(entry, "message")
	}

	source := w.source
	if component, ok := entry["component"].(string); ok && component != "" {
		source = component

		delete(entry, "component")
	}

	record := &models.LogRecord{
		ID:        w.pipeline.idFn(),
		Timestamp: timestamp,
		Level:     level,
		Source:    source,
		Message:   message,
	}

	// Correlation ids attached as zerolog fields become first-class columns.
	if traceID, ok := entry["trace_id"].(string); ok {
		record.TraceID = traceID

		delete(entry, "trace_id")
	}

	if spanID, ok := entry["span_id"].(string); ok {
		record.SpanID = spanID

		delete(entry, "span_id")
	}

	if errText, ok := entry["error"].(string); ok && errText != "" {
		record.Error = &models.CapturedError{Message: errText}

		delete(entry, "error")
	}

	if len(entry) > 0 {
		record.Fields = entry
	}

	w.pipeline.severity.add(timestamp, level)
	w.pipeline.enqueue(record)

	return len(data), nil
}

func mapZerologLevel(level string) models.LogLevel {
	switch level {
	case "trace", "debug":
		return models.LevelDebug
	case "info":
		return models.LevelInfo
	case "warn":
		return models.LevelWarn
	case "error":
		return models.LevelError
	case "fatal", "panic":
		return models.LevelFatal
	default:
		return models.LevelInfo
	}
}
