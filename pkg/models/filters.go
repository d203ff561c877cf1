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

package models

import "time"

// DefaultQueryLimit caps result sets when the caller does not ask for a
// specific page size.
const DefaultQueryLimit = 100

// MaxQueryLimit is the hard ceiling on a single page of results.
const MaxQueryLimit = 1000

// Page is the shared limit/offset envelope for list queries.
type Page struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Clamp normalizes the page to the allowed bounds.
func (p *Page) Clamp() {
	if p.Limit <= 0 {
		p.Limit = DefaultQueryLimit
	}

	if p.Limit > MaxQueryLimit {
		p.Limit = MaxQueryLimit
	}

	if p.Offset < 0 {
		p.Offset = 0
	}
}

// TraceFilter selects stored traces. Zero-valued fields are ignored.
// Results are ordered by start time descending.
type TraceFilter struct {
	Start         time.Time   `json:"start,omitempty"`
	End           time.Time   `json:"end,omitempty"`
	Status        TraceStatus `json:"status,omitempty"`
	Route         string      `json:"route,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	ActorID       string      `json:"actor_id,omitempty"`
	Tenant        string      `json:"tenant,omitempty"`
	MinDurationMS float64     `json:"min_duration_ms,omitempty"`
	Page
}

// LogFilter selects stored log records. Levels narrows to the listed
// severities; Search is matched against the message text. Results are
// ordered by timestamp descending.
type LogFilter struct {
	Start   time.Time  `json:"start,omitempty"`
	End     time.Time  `json:"end,omitempty"`
	Levels  []LogLevel `json:"levels,omitempty"`
	Source  string     `json:"source,omitempty"`
	TraceID string     `json:"trace_id,omitempty"`
	ActorID string     `json:"actor_id,omitempty"`
	Search  string     `json:"search,omitempty"`
	Page
}

// AlertInstanceFilter selects fired alert instances, ordered by firing
// time descending.
type AlertInstanceFilter struct {
	RuleID string      `json:"rule_id,omitempty"`
	Status AlertStatus `json:"status,omitempty"`
	Start  time.Time   `json:"start,omitempty"`
	End    time.Time   `json:"end,omitempty"`
	Page
}
