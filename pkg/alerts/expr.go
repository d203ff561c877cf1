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

package alerts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/carelane/pulse/pkg/models"
)

var errExprNotNumeric = errors.New("alert expression did not produce a number")

// exprEvaluator compiles custom rule expressions and caches the compiled
// programs by expression text. Expressions must evaluate to a number; the
// rule's operator and threshold are applied to the result.
type exprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newExprEvaluator() *exprEvaluator {
	return &exprEvaluator{cache: make(map[string]*vm.Program)}
}

// evaluate runs the expression against an environment built from the
// snapshot and returns the numeric result.
func (e *exprEvaluator) evaluate(expression string, snapshot *models.MetricSnapshot) (float64, error) {
	program, err := e.compile(expression)
	if err != nil {
		return 0, err
	}

	out, err := expr.Run(program, snapshotEnv(snapshot))
	if err != nil {
		return 0, fmt.Errorf("failed to run alert expression: %w", err)
	}

	value, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: got %T", errExprNotNumeric, out)
	}

	return value, nil
}

func (e *exprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.AsFloat64(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile alert expression: %w", err)
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()

	return program, nil
}

// snapshotEnv flattens a snapshot into the variables expressions can read.
// Sample windows are exposed as windows.<name>.<stat>, e.g.
// windows.request_latency_ms.p95.
func snapshotEnv(snapshot *models.MetricSnapshot) map[string]interface{} {
	env := map[string]interface{}{
		"uptime_seconds": snapshot.UptimeSeconds,
		"requests":       float64(snapshot.Requests),
		"errors":         float64(snapshot.Errors),
		"error_rate":     snapshot.ErrorRate,
		"cache_hits":     float64(snapshot.CacheHits),
		"cache_misses":   float64(snapshot.CacheMisses),
		"cache_hit_rate": snapshot.CacheHitRate,
		"tokens_in":      float64(snapshot.TokensIn),
		"tokens_out":     float64(snapshot.TokensOut),
		"total_cost":     snapshot.TotalCost,
		"cpu_percent":    snapshot.Resources.CPUPercent,
		"memory_percent": snapshot.Resources.MemoryPercent,
		"memory_used_mb": snapshot.Resources.MemoryUsedMB,
		"disk_percent":   snapshot.Resources.DiskPercent,
		"goroutines":     float64(snapshot.Resources.Goroutines),
	}

	counters := make(map[string]interface{}, len(snapshot.Counters))
	for name, value := range snapshot.Counters {
		counters[name] = float64(value)
	}

	env["counters"] = counters

	windows := make(map[string]interface{}, len(snapshot.Windows))
	for _, w := range snapshot.Windows {
		windows[w.Name] = map[string]interface{}{
			"count":   float64(w.Count),
			"average": w.Average,
			"p50":     w.P50,
			"p95":     w.P95,
			"p99":     w.P99,
			"min":     w.Min,
			"max":     w.Max,
		}
	}

	env["windows"] = windows

	return env
}
