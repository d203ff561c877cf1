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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

// Well-known window names recorded by the aggregator. Alert rules with a
// latency_percentile source reference these (or any Observe'd name).
const (
	WindowRequestLatency    = "request_latency_ms"
	WindowRetrievalTotal    = "retrieval_total_ms"
	WindowExternalLatency   = "external_latency_ms"
	WindowExternalFirstByte = "external_first_result_ms"
	retrievalPhaseWindowFmt = "retrieval_%s_ms"
)

// bucketRetention bounds how far back the per-minute error/cost buckets
// reach. Alert windows beyond this see a partial count.
const bucketRetention = 24 * time.Hour

type routeMetrics struct {
	requests int64
	errors   int64
	latency  *Window
}

type providerMetrics struct {
	calls   int64
	errors  int64
	cost    float64
	latency *Window
}

// minuteBucket accumulates per-minute totals so windowed alert sources can
// be answered without a store round trip.
type minuteBucket struct {
	requests int64
	errors   int64
	cost     float64
}

// Aggregator is the process-wide metrics sink: named sample windows,
// monotonic counters, a cost accumulator and per-minute error buckets.
// Writers are concurrent call paths; the snapshot reader is the dashboard
// or the alert engine.
type Aggregator struct {
	config    models.MetricsConfig
	logger    logger.Logger
	resources *resourceReader
	startTime time.Time
	windowCap int

	mu          sync.Mutex
	windows     map[string]*Window
	counters    map[string]int64
	routes      map[string]*routeMetrics
	external    map[string]*providerMetrics
	buckets     map[int64]*minuteBucket
	lastPrune   int64
	requests    int64
	errors      int64
	cacheHits   int64
	cacheMisses int64
	tokensIn    int64
	tokensOut   int64
	totalCost   float64

	nowFn func() time.Time
}

// NewAggregator builds an empty aggregator. Zero config fields fall back to
// the documented defaults.
func NewAggregator(cfg models.MetricsConfig, log logger.Logger) *Aggregator {
	windowCap := cfg.WindowSize
	if windowCap <= 0 {
		windowCap = DefaultWindowSize
	}

	return &Aggregator{
		config:    cfg,
		logger:    log,
		resources: newResourceReader(log),
		startTime: time.Now(),
		windowCap: windowCap,
		windows:   make(map[string]*Window),
		counters:  make(map[string]int64),
		routes:    make(map[string]*routeMetrics),
		external:  make(map[string]*providerMetrics),
		buckets:   make(map[int64]*minuteBucket),
		nowFn:     time.Now,
	}
}

// Observe records a sample into the named window, creating it on first use.
func (a *Aggregator) Observe(name string, value float64) {
	a.window(name).Record(value)
}

// AddCounter adds n to a named monotonic counter.
func (a *Aggregator) AddCounter(name string, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters[name] += n
}

// Counter reads a named counter, 0 if never written.
func (a *Aggregator) Counter(name string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.counters[name]
}

// RecordRequest tracks one handled request: global and per-route counts,
// the latency windows and the per-minute buckets.
func (a *Aggregator) RecordRequest(route string, latencyMS float64, isErr bool) {
	a.mu.Lock()

	a.requests++

	bucket := a.bucketLocked()
	bucket.requests++

	if isErr {
		a.errors++
		bucket.errors++
	}

	r, ok := a.routes[route]
	if !ok {
		r = &routeMetrics{latency: NewWindow(a.windowCap)}
		a.routes[route] = r
	}

	r.requests++

	if isErr {
		r.errors++
	}

	global := a.windowLocked(WindowRequestLatency)
	perRoute := r.latency

	a.mu.Unlock()

	global.Record(latencyMS)
	perRoute.Record(latencyMS)
}

// RecordError counts an error that happened outside a request path, such as
// a background job failure.
func (a *Aggregator) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors++
	a.bucketLocked().errors++
}

// RecordRetrieval tracks one retrieval operation with optional per-phase
// timings and its cache outcome.
func (a *Aggregator) RecordRetrieval(totalMS float64, phases map[string]float64, resultCount int, cacheHit bool) {
	a.mu.Lock()

	if cacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}

	a.counters["retrieval_results"] += int64(resultCount)

	total := a.windowLocked(WindowRetrievalTotal)

	phaseWindows := make([]*Window, 0, len(phases))
	phaseValues := make([]float64, 0, len(phases))

	for phase, ms := range phases {
		phaseWindows = append(phaseWindows, a.windowLocked(fmt.Sprintf(retrievalPhaseWindowFmt, phase)))
		phaseValues = append(phaseValues, ms)
	}

	a.mu.Unlock()

	total.Record(totalMS)

	for i, w := range phaseWindows {
		w.Record(phaseValues[i])
	}
}

// RecordExternalCall tracks one upstream provider call: latency, token and
// cost accounting, and the error buckets when it failed.
func (a *Aggregator) RecordExternalCall(provider string, latencyMS, firstResultMS float64, tokensIn, tokensOut int64, cost float64, isErr bool) {
	a.mu.Lock()

	p, ok := a.external[provider]
	if !ok {
		p = &providerMetrics{latency: NewWindow(a.windowCap)}
		a.external[provider] = p
	}

	p.calls++
	p.cost += cost

	a.tokensIn += tokensIn
	a.tokensOut += tokensOut
	a.totalCost += cost

	bucket := a.bucketLocked()
	bucket.cost += cost

	if isErr {
		p.errors++
		a.errors++
		bucket.errors++
	}

	global := a.windowLocked(WindowExternalLatency)
	first := a.windowLocked(WindowExternalFirstByte)
	perProvider := p.latency

	a.mu.Unlock()

	global.Record(latencyMS)
	perProvider.Record(latencyMS)

	if firstResultMS > 0 {
		first.Record(firstResultMS)
	}
}

// ErrorsInWindow sums errors recorded over the trailing window.
func (a *Aggregator) ErrorsInWindow(window time.Duration) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total int64

	a.eachBucketLocked(window, func(b *minuteBucket) {
		total += b.errors
	})

	return total
}

// RequestsInWindow sums requests recorded over the trailing window.
func (a *Aggregator) RequestsInWindow(window time.Duration) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total int64

	a.eachBucketLocked(window, func(b *minuteBucket) {
		total += b.requests
	})

	return total
}

// CostInWindow sums external call cost over the trailing window.
func (a *Aggregator) CostInWindow(window time.Duration) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total float64

	a.eachBucketLocked(window, func(b *minuteBucket) {
		total += b.cost
	})

	return total
}

// CacheHitRate returns hits/(hits+misses), 0 before any cache activity.
func (a *Aggregator) CacheHitRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := a.cacheHits + a.cacheMisses
	if total == 0 {
		return 0
	}

	return float64(a.cacheHits) / float64(total)
}

// WindowPercentile reads a percentile from a named window, 0 if the window
// does not exist or is empty.
func (a *Aggregator) WindowPercentile(name string, p float64) float64 {
	a.mu.Lock()
	w, ok := a.windows[name]
	a.mu.Unlock()

	if !ok {
		return 0
	}

	return w.Percentile(p)
}

// WindowAverage reads the mean of a named window, 0 if absent or empty.
func (a *Aggregator) WindowAverage(name string) float64 {
	a.mu.Lock()
	w, ok := a.windows[name]
	a.mu.Unlock()

	if !ok {
		return 0
	}

	return w.Average()
}

// Snapshot assembles the full read model: counters, window stats, per-route
// and per-provider summaries, and host gauges read synchronously.
func (a *Aggregator) Snapshot(ctx context.Context) *models.MetricSnapshot {
	now := a.nowFn()

	a.mu.Lock()

	snap := &models.MetricSnapshot{
		Timestamp:     now.UTC(),
		UptimeSeconds: now.Sub(a.startTime).Seconds(),
		Requests:      a.requests,
		Errors:        a.errors,
		CacheHits:     a.cacheHits,
		CacheMisses:   a.cacheMisses,
		TokensIn:      a.tokensIn,
		TokensOut:     a.tokensOut,
		TotalCost:     a.totalCost,
	}

	if a.requests > 0 {
		snap.ErrorRate = float64(a.errors) / float64(a.requests)
	}

	if total := a.cacheHits + a.cacheMisses; total > 0 {
		snap.CacheHitRate = float64(a.cacheHits) / float64(total)
	}

	if len(a.counters) > 0 {
		snap.Counters = make(map[string]int64, len(a.counters))
		for name, value := range a.counters {
			snap.Counters[name] = value
		}
	}

	routeNames := make([]string, 0, len(a.routes))
	for name := range a.routes {
		routeNames = append(routeNames, name)
	}

	providerNames := make([]string, 0, len(a.external))
	for name := range a.external {
		providerNames = append(providerNames, name)
	}

	windowNames := make([]string, 0, len(a.windows))
	for name := range a.windows {
		windowNames = append(windowNames, name)
	}

	routeRefs := make(map[string]*routeMetrics, len(a.routes))
	for name, r := range a.routes {
		routeRefs[name] = r
	}

	providerRefs := make(map[string]*providerMetrics, len(a.external))
	for name, p := range a.external {
		providerRefs[name] = p
	}

	windowRefs := make(map[string]*Window, len(a.windows))
	for name, w := range a.windows {
		windowRefs[name] = w
	}

	routeCounts := make(map[string][2]int64, len(a.routes))
	for name, r := range a.routes {
		routeCounts[name] = [2]int64{r.requests, r.errors}
	}

	providerCounts := make(map[string][3]float64, len(a.external))
	for name, p := range a.external {
		providerCounts[name] = [3]float64{float64(p.calls), float64(p.errors), p.cost}
	}

	a.mu.Unlock()

	sort.Strings(routeNames)
	sort.Strings(providerNames)
	sort.Strings(windowNames)

	for _, name := range routeNames {
		counts := routeCounts[name]
		stats := routeRefs[name].latency.Stats(name)

		route := models.RouteStats{
			Route:      name,
			Requests:   counts[0],
			Errors:     counts[1],
			AvgLatency: stats.Average,
			P95Latency: stats.P95,
		}

		if route.Requests > 0 {
			route.ErrorRate = float64(route.Errors) / float64(route.Requests)
		}

		snap.Routes = append(snap.Routes, route)
	}

	for _, name := range providerNames {
		counts := providerCounts[name]

		snap.External = append(snap.External, models.ExternalCallStats{
			Provider:   name,
			Calls:      int64(counts[0]),
			Errors:     int64(counts[1]),
			TotalCost:  counts[2],
			AvgLatency: providerRefs[name].latency.Average(),
		})
	}

	for _, name := range windowNames {
		snap.Windows = append(snap.Windows, windowRefs[name].Stats(name))
	}

	snap.Resources = a.resources.Read(ctx)

	return snap
}

// Health classifies the current snapshot against the configured thresholds.
// The error rate is computed over the trailing five minutes so an old burst
// does not keep the service degraded forever.
func (a *Aggregator) Health(ctx context.Context) *models.HealthStatus {
	snap := a.Snapshot(ctx)

	status := &models.HealthStatus{
		State:     models.HealthOK,
		Timestamp: snap.Timestamp,
	}

	cpuWarn := defaultFloat(a.config.CPUWarnPercent, 85)
	cpuCrit := defaultFloat(a.config.CPUCritPercent, 95)
	memWarn := defaultFloat(a.config.MemWarnPercent, 85)
	memCrit := defaultFloat(a.config.MemCritPercent, 95)
	rateWarn := defaultFloat(a.config.ErrorRateWarn, 0.05)
	rateCrit := defaultFloat(a.config.ErrorRateCrit, 0.25)

	degrade := func(crit bool, reason string) {
		status.Reasons = append(status.Reasons, reason)

		if crit {
			status.State = models.HealthCritical
		} else if status.State != models.HealthCritical {
			status.State = models.HealthDegraded
		}
	}

	if cpu := snap.Resources.CPUPercent; cpu >= 0 {
		switch {
		case cpu >= cpuCrit:
			degrade(true, fmt.Sprintf("cpu at %.1f%%", cpu))
		case cpu >= cpuWarn:
			degrade(false, fmt.Sprintf("cpu at %.1f%%", cpu))
		}
	}

	if mem := snap.Resources.MemoryPercent; mem >= 0 {
		switch {
		case mem >= memCrit:
			degrade(true, fmt.Sprintf("memory at %.1f%%", mem))
		case mem >= memWarn:
			degrade(false, fmt.Sprintf("memory at %.1f%%", mem))
		}
	}

	recentRequests := a.RequestsInWindow(5 * time.Minute)
	if recentRequests > 0 {
		rate := float64(a.ErrorsInWindow(5*time.Minute)) / float64(recentRequests)

		switch {
		case rate >= rateCrit:
			degrade(true, fmt.Sprintf("error rate at %.1f%%", rate*100))
		case rate >= rateWarn:
			degrade(false, fmt.Sprintf("error rate at %.1f%%", rate*100))
		}
	}

	return status
}

// window fetches or creates a named sample window.
func (a *Aggregator) window(name string) *Window {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.windowLocked(name)
}

func (a *Aggregator) windowLocked(name string) *Window {
	w, ok := a.windows[name]
	if !ok {
		w = NewWindow(a.windowCap)
		a.windows[name] = w
	}

	return w
}

// bucketLocked returns the bucket for the current minute, pruning expired
// buckets when the minute rolls over. Callers hold a.mu.
func (a *Aggregator) bucketLocked() *minuteBucket {
	minute := a.nowFn().Unix() / 60

	if minute > a.lastPrune {
		horizon := minute - int64(bucketRetention/time.Minute)

		for m := range a.buckets {
			if m < horizon {
				delete(a.buckets, m)
			}
		}

		a.lastPrune = minute
	}

	b, ok := a.buckets[minute]
	if !ok {
		b = &minuteBucket{}
		a.buckets[minute] = b
	}

	return b
}

// eachBucketLocked visits buckets that fall inside the trailing window.
// Callers hold a.mu.
func (a *Aggregator) eachBucketLocked(window time.Duration, fn func(*minuteBucket)) {
	if window <= 0 {
		window = time.Minute
	}

	nowMinute := a.nowFn().Unix() / 60
	firstMinute := nowMinute - int64(window/time.Minute)

	for minute, bucket := range a.buckets {
		if minute > firstMinute {
			fn(bucket)
		}
	}
}

func defaultFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}

	return v
}
