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

package metrics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEvictsOldestWhenFull(t *testing.T) {
	w := NewWindow(3)

	for _, v := range []float64{1, 2, 3} {
		w.Record(v)
	}

	require.Equal(t, 3, w.Count())
	assert.InDelta(t, 2.0, w.Average(), 0.001)

	// The 1 falls out, leaving {2, 3, 10}.
	w.Record(10)

	require.Equal(t, 3, w.Count())
	assert.InDelta(t, 5.0, w.Average(), 0.001)
	assert.InDelta(t, 2.0, w.Percentile(1), 0.001)
}

func TestWindowDefaultCapacity(t *testing.T) {
	w := NewWindow(0)

	for i := 0; i < DefaultWindowSize+50; i++ {
		w.Record(float64(i))
	}

	assert.Equal(t, DefaultWindowSize, w.Count())
}

func TestWindowClampsNonFiniteSamples(t *testing.T) {
	w := NewWindow(8)

	w.Record(math.NaN())
	w.Record(math.Inf(1))
	w.Record(math.Inf(-1))

	stats := w.Stats("clamped")

	require.Equal(t, 3, stats.Count)
	assert.False(t, math.IsNaN(stats.Average))
	assert.InDelta(t, -math.MaxFloat64, stats.Min, math.MaxFloat64/1e10)
	assert.InDelta(t, math.MaxFloat64, stats.Max, math.MaxFloat64/1e10)
}

func TestPercentileNearestRank(t *testing.T) {
	w := NewWindow(10)

	for i := 1; i <= 10; i++ {
		w.Record(float64(i))
	}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"p50 of 1..10", 50, 5},
		{"p90 of 1..10", 90, 9},
		{"p95 rounds up", 95, 10},
		{"p99 rounds up", 99, 10},
		{"p100 is max", 100, 10},
		{"p0 clamps to min", 0, 1},
		{"above 100 clamps to max", 150, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, w.Percentile(tt.p), 0.001)
		})
	}
}

func TestPercentileEmptyWindow(t *testing.T) {
	w := NewWindow(4)

	assert.Zero(t, w.Percentile(95))
	assert.Zero(t, w.Average())

	stats := w.Stats("empty")
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.Min)
	assert.Zero(t, stats.Max)
}

// Percentiles must never invert regardless of the sample distribution, and
// every percentile stays inside [min, max].
func TestPercentileOrderingHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		w := NewWindow(256)

		n := 1 + rng.Intn(256)
		for i := 0; i < n; i++ {
			w.Record(rng.NormFloat64() * 250)
		}

		stats := w.Stats("random")

		require.LessOrEqual(t, stats.Min, stats.P50)
		require.LessOrEqual(t, stats.P50, stats.P95)
		require.LessOrEqual(t, stats.P95, stats.P99)
		require.LessOrEqual(t, stats.P99, stats.Max)
	}
}

func TestStatsMatchesIndividualReads(t *testing.T) {
	w := NewWindow(16)

	for _, v := range []float64{4, 8, 15, 16, 23, 42} {
		w.Record(v)
	}

	stats := w.Stats("lost")

	assert.Equal(t, "lost", stats.Name)
	assert.Equal(t, w.Count(), stats.Count)
	assert.InDelta(t, w.Average(), stats.Average, 0.001)
	assert.InDelta(t, w.Percentile(50), stats.P50, 0.001)
	assert.InDelta(t, w.Percentile(95), stats.P95, 0.001)
	assert.InDelta(t, w.Percentile(99), stats.P99, 0.001)
	assert.InDelta(t, 4, stats.Min, 0.001)
	assert.InDelta(t, 42, stats.Max, 0.001)
}
