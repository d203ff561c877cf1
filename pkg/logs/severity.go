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
	"sync"
	"time"

	"github.com/carelane/pulse/pkg/models"
)

const severityRetention = 24 * time.Hour

type severityBucket struct {
	minute time.Time
	counts map[models.LogLevel]int64
}

// severityTracker keeps per-minute severity counts for the trailing day so
// dashboards can show recent log volume without touching storage.
type severityTracker struct {
	mu      sync.Mutex
	buckets []severityBucket
}

func newSeverityTracker() *severityTracker {
	return &severityTracker{buckets: make([]severityBucket, 0, 256)}
}

func (t *severityTracker) add(now time.Time, level models.LogLevel) {
	minute := now.Truncate(time.Minute)

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.buckets); n > 0 && t.buckets[n-1].minute.Equal(minute) {
		t.buckets[n-1].counts[level]++
		return
	}

	t.buckets = append(t.buckets, severityBucket{
		minute: minute,
		counts: map[models.LogLevel]int64{level: 1},
	})

	cutoff := minute.Add(-severityRetention)

	start := 0
	for start < len(t.buckets) && t.buckets[start].minute.Before(cutoff) {
		start++
	}

	if start > 0 {
		t.buckets = append([]severityBucket(nil), t.buckets[start:]...)
	}
}

// counts sums the per-level totals of buckets inside the trailing window.
// Buckets are minute-aligned in append order, so the scan walks backwards
// and stops at the first bucket outside the window.
func (t *severityTracker) counts(now time.Time, window time.Duration) map[models.LogLevel]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-window).Truncate(time.Minute)
	out := make(map[models.LogLevel]int64)

	for i := len(t.buckets) - 1; i >= 0; i-- {
		if t.buckets[i].minute.Before(cutoff) {
			break
		}

		for level, n := range t.buckets[i].counts {
			out[level] += n
		}
	}

	return out
}
