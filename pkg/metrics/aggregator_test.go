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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

var errGaugesUnavailable = errors.New("gauges unavailable")

func newTestAggregator(t *testing.T, cfg models.MetricsConfig) *Aggregator {
	t.Helper()

	agg := NewAggregator(cfg, logger.NewTestLogger())
	stubResources(agg, 10, 20, 512)

	return agg
}

// stubResources pins the host gauges so health checks are deterministic.
func stubResources(agg *Aggregator, cpuPct, memPct, memUsedMB float64) {
	agg.resources.cpuFn = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{cpuPct}, nil
	}
	agg.resources.memFn = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{
			UsedPercent: memPct,
			Used:        uint64(memUsedMB) * 1024 * 1024,
		}, nil
	}
	agg.resources.diskFn = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{UsedPercent: 40}, nil
	}
}

func TestRecordRequestAggregates(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	agg.RecordRequest("/v1/chat", 120, false)
	agg.RecordRequest("/v1/chat", 80, true)
	agg.RecordRequest("/v1/search", 40, false)

	snap := agg.Snapshot(context.Background())

	assert.Equal(t, int64(3), snap.Requests)
	assert.Equal(t, int64(1), snap.Errors)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 0.001)

	require.Len(t, snap.Routes, 2)
	assert.Equal(t, "/v1/chat", snap.Routes[0].Route)
	assert.Equal(t, int64(2), snap.Routes[0].Requests)
	assert.Equal(t, int64(1), snap.Routes[0].Errors)
	assert.InDelta(t, 0.5, snap.Routes[0].ErrorRate, 0.001)
	assert.InDelta(t, 100, snap.Routes[0].AvgLatency, 0.001)

	assert.Equal(t, "/v1/search", snap.Routes[1].Route)
	assert.Equal(t, int64(1), snap.Routes[1].Requests)
	assert.Zero(t, snap.Routes[1].Errors)

	assert.InDelta(t, 80, agg.WindowPercentile(WindowRequestLatency, 50), 0.001)
	assert.InDelta(t, 80, agg.WindowAverage(WindowRequestLatency), 0.001)
}

func TestWindowedCountsRespectWindow(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.nowFn = func() time.Time { return now }

	agg.RecordRequest("/v1/chat", 50, true)
	agg.RecordRequest("/v1/chat", 60, true)
	agg.RecordError()

	assert.Equal(t, int64(3), agg.ErrorsInWindow(5*time.Minute))
	assert.Equal(t, int64(2), agg.RequestsInWindow(5*time.Minute))

	now = now.Add(10 * time.Minute)

	assert.Zero(t, agg.ErrorsInWindow(5*time.Minute))
	assert.Zero(t, agg.RequestsInWindow(5*time.Minute))
	assert.Equal(t, int64(3), agg.ErrorsInWindow(15*time.Minute))

	agg.RecordError()

	assert.Equal(t, int64(1), agg.ErrorsInWindow(5*time.Minute))
	assert.Equal(t, int64(4), agg.ErrorsInWindow(time.Hour))
}

func TestBucketPruneDropsExpired(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	agg.nowFn = func() time.Time { return now }

	agg.RecordError()
	require.Len(t, agg.buckets, 1)

	now = now.Add(bucketRetention + 2*time.Minute)
	agg.RecordError()

	assert.Len(t, agg.buckets, 1)
	assert.Equal(t, int64(1), agg.ErrorsInWindow(bucketRetention))
}

func TestCacheHitRate(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	assert.Zero(t, agg.CacheHitRate())

	agg.RecordRetrieval(25, nil, 3, true)
	agg.RecordRetrieval(90, nil, 5, false)
	agg.RecordRetrieval(30, nil, 2, true)

	assert.InDelta(t, 2.0/3.0, agg.CacheHitRate(), 0.001)

	snap := agg.Snapshot(context.Background())
	assert.Equal(t, int64(2), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.Equal(t, int64(10), snap.Counters["retrieval_results"])
}

func TestRecordRetrievalPhaseWindows(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	agg.RecordRetrieval(100, map[string]float64{
		"embed": 30,
		"rank":  20,
	}, 4, false)

	assert.InDelta(t, 100, agg.WindowAverage(WindowRetrievalTotal), 0.001)
	assert.InDelta(t, 30, agg.WindowAverage("retrieval_embed_ms"), 0.001)
	assert.InDelta(t, 20, agg.WindowAverage("retrieval_rank_ms"), 0.001)
}

func TestRecordExternalCall(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.nowFn = func() time.Time { return now }

	agg.RecordExternalCall("openai", 900, 120, 1000, 250, 0.04, false)
	agg.RecordExternalCall("openai", 1500, 0, 2000, 400, 0.09, true)
	agg.RecordExternalCall("anthropic", 700, 95, 800, 300, 0.05, false)

	snap := agg.Snapshot(context.Background())

	assert.Equal(t, int64(3800), snap.TokensIn)
	assert.Equal(t, int64(950), snap.TokensOut)
	assert.InDelta(t, 0.18, snap.TotalCost, 0.0001)

	require.Len(t, snap.External, 2)
	assert.Equal(t, "anthropic", snap.External[0].Provider)
	assert.Equal(t, int64(1), snap.External[0].Calls)
	assert.Equal(t, "openai", snap.External[1].Provider)
	assert.Equal(t, int64(2), snap.External[1].Calls)
	assert.Equal(t, int64(1), snap.External[1].Errors)
	assert.InDelta(t, 0.13, snap.External[1].TotalCost, 0.0001)

	// A failed upstream call counts toward the error buckets.
	assert.Equal(t, int64(1), agg.ErrorsInWindow(5*time.Minute))
	assert.InDelta(t, 0.18, agg.CostInWindow(5*time.Minute), 0.0001)

	// first_result window only sees calls that reported one.
	assert.InDelta(t, 107.5, agg.WindowAverage(WindowExternalFirstByte), 0.001)
}

func TestWindowReadsUnknownName(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	assert.Zero(t, agg.WindowPercentile("no_such_window", 95))
	assert.Zero(t, agg.WindowAverage("no_such_window"))
}

func TestCountersExportedInSnapshot(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	agg.AddCounter("traces_dropped", 2)
	agg.AddCounter("traces_dropped", 3)
	agg.AddCounter("logs_dropped", 1)

	assert.Equal(t, int64(5), agg.Counter("traces_dropped"))

	snap := agg.Snapshot(context.Background())
	assert.Equal(t, int64(5), snap.Counters["traces_dropped"])
	assert.Equal(t, int64(1), snap.Counters["logs_dropped"])
	assert.Zero(t, agg.Counter("never_written"))
}

func TestObserveFeedsNamedWindow(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{WindowSize: 4})

	for _, v := range []float64{10, 20, 30, 40, 50} {
		agg.Observe("queue_depth", v)
	}

	// Capacity 4, so the 10 was evicted.
	assert.InDelta(t, 35, agg.WindowAverage("queue_depth"), 0.001)
}

func TestHealthOKWhenQuiet(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	status := agg.Health(context.Background())

	assert.Equal(t, models.HealthOK, status.State)
	assert.Empty(t, status.Reasons)
}

func TestHealthErrorRateThresholds(t *testing.T) {
	tests := []struct {
		name   string
		errors int
		total  int
		want   models.HealthState
	}{
		{"rate below warn", 1, 100, models.HealthOK},
		{"rate above warn", 6, 100, models.HealthDegraded},
		{"rate above crit", 30, 100, models.HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t, models.MetricsConfig{})

			for i := 0; i < tt.total; i++ {
				agg.RecordRequest("/v1/chat", 10, i < tt.errors)
			}

			status := agg.Health(context.Background())
			assert.Equal(t, tt.want, status.State)

			if tt.want != models.HealthOK {
				assert.NotEmpty(t, status.Reasons)
			}
		})
	}
}

func TestHealthResourceThresholds(t *testing.T) {
	tests := []struct {
		name   string
		cpuPct float64
		memPct float64
		want   models.HealthState
	}{
		{"all nominal", 20, 30, models.HealthOK},
		{"cpu warn", 90, 30, models.HealthDegraded},
		{"cpu crit", 97, 30, models.HealthCritical},
		{"mem warn", 20, 88, models.HealthDegraded},
		{"mem crit beats cpu warn", 90, 99, models.HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t, models.MetricsConfig{})
			stubResources(agg, tt.cpuPct, tt.memPct, 512)

			status := agg.Health(context.Background())
			assert.Equal(t, tt.want, status.State)
		})
	}
}

func TestHealthSkipsUnknownGauges(t *testing.T) {
	agg := newTestAggregator(t, models.MetricsConfig{})

	agg.resources.cpuFn = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, errGaugesUnavailable
	}
	agg.resources.memFn = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errGaugesUnavailable
	}
	agg.resources.diskFn = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, errGaugesUnavailable
	}

	status := agg.Health(context.Background())

	// Uncollectable gauges read -1 and must not trip thresholds.
	assert.Equal(t, models.HealthOK, status.State)
	assert.Empty(t, status.Reasons)
}
