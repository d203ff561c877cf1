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

// WindowStats summarizes one bounded sample window at read time.
type WindowStats struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// RouteStats aggregates request outcomes for a single route.
type RouteStats struct {
	Route      string  `json:"route"`
	Requests   int64   `json:"requests"`
	Errors     int64   `json:"errors"`
	ErrorRate  float64 `json:"error_rate"`
	AvgLatency float64 `json:"avg_latency_ms"`
	P95Latency float64 `json:"p95_latency_ms"`
}

// ExternalCallStats aggregates outcomes of calls to one upstream provider.
type ExternalCallStats struct {
	Provider   string  `json:"provider"`
	Calls      int64   `json:"calls"`
	Errors     int64   `json:"errors"`
	TotalCost  float64 `json:"total_cost"`
	AvgLatency float64 `json:"avg_latency_ms"`
}

// ResourceUsage is a point-in-time reading of host resource gauges.
// Readings that could not be collected are reported as -1.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	Goroutines    int     `json:"goroutines"`
}

// Gauge resolves a named gauge for alert rules. The second return is false
// for names outside the known set.
func (u ResourceUsage) Gauge(name string) (float64, bool) {
	switch name {
	case "cpu_percent":
		return u.CPUPercent, true
	case "memory_percent":
		return u.MemoryPercent, true
	case "memory_used_mb":
		return u.MemoryUsedMB, true
	case "disk_percent":
		return u.DiskPercent, true
	case "goroutines":
		return float64(u.Goroutines), true
	default:
		return 0, false
	}
}

// LogSeverityCounts summarizes recent log volume by severity.
type LogSeverityCounts struct {
	LastHour map[LogLevel]int64 `json:"last_hour,omitempty"`
	LastDay  map[LogLevel]int64 `json:"last_day,omitempty"`
}

// MetricSnapshot is the full point-in-time view assembled by the aggregator.
type MetricSnapshot struct {
	Timestamp     time.Time           `json:"timestamp"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Requests      int64               `json:"requests"`
	Errors        int64               `json:"errors"`
	ErrorRate     float64             `json:"error_rate"`
	Routes        []RouteStats        `json:"routes,omitempty"`
	External      []ExternalCallStats `json:"external,omitempty"`
	Windows       []WindowStats       `json:"windows,omitempty"`
	CacheHits     int64               `json:"cache_hits"`
	CacheMisses   int64               `json:"cache_misses"`
	CacheHitRate  float64             `json:"cache_hit_rate"`
	TokensIn      int64               `json:"tokens_in"`
	TokensOut     int64               `json:"tokens_out"`
	TotalCost     float64             `json:"total_cost"`
	Counters      map[string]int64    `json:"counters,omitempty"`
	Logs          *LogSeverityCounts  `json:"logs,omitempty"`
	Resources     ResourceUsage       `json:"resources"`
}

// HealthState is the coarse health classification derived from a snapshot.
type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// HealthStatus reports the derived health state together with the reasons
// that produced it. Reasons is empty when the state is ok.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Reasons   []string    `json:"reasons,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
