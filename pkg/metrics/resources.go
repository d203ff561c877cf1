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
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const diskRoot = "/"

// resourceReader samples host gauges through gopsutil. A gauge the host
// cannot provide reads -1, which keeps "unknown" distinguishable from a real
// zero.
type resourceReader struct {
	logger logger.Logger

	cpuFn  func(context.Context, time.Duration, bool) ([]float64, error)
	memFn  func(context.Context) (*mem.VirtualMemoryStat, error)
	diskFn func(context.Context, string) (*disk.UsageStat, error)

	mu sync.Mutex
}

func newResourceReader(log logger.Logger) *resourceReader {
	return &resourceReader{
		logger: log,
		cpuFn:  cpu.PercentWithContext,
		memFn:  mem.VirtualMemoryWithContext,
		diskFn: disk.UsageWithContext,
	}
}

// Read samples the host gauges synchronously so every snapshot, and every
// alert rule over a resource gauge, sees the state at call time. The mutex
// serializes the CPU delta reads, which compare against the previous call.
func (r *resourceReader) Read(ctx context.Context) models.ResourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collect(ctx)
}

func (r *resourceReader) collect(ctx context.Context) models.ResourceUsage {
	usage := models.ResourceUsage{
		CPUPercent:    -1,
		MemoryPercent: -1,
		MemoryUsedMB:  -1,
		DiskPercent:   -1,
		Goroutines:    runtime.NumGoroutine(),
	}

	// Interval 0 compares against the previous call instead of blocking.
	if percents, err := r.cpuFn(ctx, 0, false); err != nil {
		r.logger.Warn().Err(err).Msg("cpu usage collection failed")
	} else if len(percents) > 0 {
		usage.CPUPercent = percents[0]
	}

	if vmStats, err := r.memFn(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("memory usage collection failed")
	} else {
		usage.MemoryPercent = vmStats.UsedPercent
		usage.MemoryUsedMB = float64(vmStats.Used) / (1024 * 1024)
	}

	if diskStats, err := r.diskFn(ctx, diskRoot); err != nil {
		r.logger.Warn().Err(err).Msg("disk usage collection failed")
	} else {
		usage.DiskPercent = diskStats.UsedPercent
	}

	return usage
}
