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

// Package metrics keeps bounded in-memory sample windows and monotonic
// counters and assembles point-in-time snapshots for dashboards and the
// alert engine.
package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/carelane/pulse/pkg/models"
)

// DefaultWindowSize is the per-metric sample capacity when the config does
// not set one.
const DefaultWindowSize = 1000

// Window is a fixed-capacity ring of float64 samples. Once full, each new
// sample evicts the oldest. All methods are safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

// NewWindow returns a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}

	return &Window{samples: make([]float64, 0, capacity)}
}

// Record appends a sample, evicting the oldest once the window is full.
// Non-finite values are clamped so downstream stats stay well defined.
func (w *Window) Record(value float64) {
	value = clampFinite(value)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, value)
		return
	}

	w.samples[w.next] = value
	w.next = (w.next + 1) % len(w.samples)
}

// Count returns the number of samples currently held.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.samples)
}

// Average returns the mean of the held samples, 0 for an empty window.
func (w *Window) Average() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return average(w.samples)
}

// Percentile returns the nearest-rank percentile of the held samples.
// An empty window yields 0; p is clamped to (0, 100].
func (w *Window) Percentile(p float64) float64 {
	w.mu.Lock()
	sorted := append([]float64(nil), w.samples...)
	w.mu.Unlock()

	sort.Float64s(sorted)

	return nearestRank(sorted, p)
}

// Stats computes all summary statistics under a single lock and sort.
func (w *Window) Stats(name string) models.WindowStats {
	w.mu.Lock()
	sorted := append([]float64(nil), w.samples...)
	w.mu.Unlock()

	sort.Float64s(sorted)

	stats := models.WindowStats{
		Name:    name,
		Count:   len(sorted),
		Average: average(sorted),
		P50:     nearestRank(sorted, 50),
		P95:     nearestRank(sorted, 95),
		P99:     nearestRank(sorted, 99),
	}

	if len(sorted) > 0 {
		stats.Min = sorted[0]
		stats.Max = sorted[len(sorted)-1]
	}

	return stats
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}

	return sum / float64(len(samples))
}

// nearestRank picks the sample at rank ceil(p/100 * n) from a sorted slice.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}

	if p > 100 {
		p = 100
	}

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}

	return sorted[rank-1]
}

func clampFinite(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return 0
	case math.IsInf(value, 1):
		return math.MaxFloat64
	case math.IsInf(value, -1):
		return -math.MaxFloat64
	default:
		return value
	}
}
