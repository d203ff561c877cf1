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
	"context"
	"time"

	"github.com/carelane/pulse/pkg/models"
)

// MetricReader is the aggregator surface the engine resolves rule values
// from. Windowed reads take the rule's own trailing range; everything else
// comes from the per-cycle snapshot.
type MetricReader interface {
	ErrorsInWindow(window time.Duration) int64
	CostInWindow(window time.Duration) float64
	WindowPercentile(name string, p float64) float64
	Snapshot(ctx context.Context) *models.MetricSnapshot
}

// resolve computes the observed value for one rule. The second return is
// false when no value can be produced this cycle, in which case the rule is
// skipped without touching its evaluation timestamps.
func (e *Engine) resolve(rule *models.AlertRule, snapshot *models.MetricSnapshot) (float64, bool) {
	switch rule.Source.Kind {
	case models.SourceErrorCount:
		return float64(e.metrics.ErrorsInWindow(time.Duration(rule.Window))), true
	case models.SourceLatencyPercentile:
		return e.metrics.WindowPercentile(rule.Source.Metric, rule.Source.Percentile), true
	case models.SourceCostTotal:
		return e.metrics.CostInWindow(time.Duration(rule.Window)), true
	case models.SourceCacheHitRate:
		return snapshot.CacheHitRate, true
	case models.SourceResourceGauge:
		value, ok := snapshot.Resources.Gauge(rule.Source.Gauge)
		if !ok {
			e.logger.Warn().
				Str("rule_id", rule.ID).
				Str("gauge", rule.Source.Gauge).
				Msg("Unknown resource gauge, skipping rule")

			return 0, false
		}

		// Gauges report -1 when the reading could not be collected.
		if value < 0 {
			return 0, false
		}

		return value, true
	case models.SourceCustom:
		value, err := e.evaluator.evaluate(rule.Source.Expr, snapshot)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("rule_id", rule.ID).
				Msg("Alert expression failed, skipping rule")

			return 0, false
		}

		return value, true
	default:
		e.logger.Warn().
			Str("rule_id", rule.ID).
			Str("kind", string(rule.Source.Kind)).
			Msg("Unknown metric source kind, skipping rule")

		return 0, false
	}
}
