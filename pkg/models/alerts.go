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

import (
	"errors"
	"fmt"
	"time"
)

// MetricSourceKind selects which reading an alert rule evaluates. The set is
// closed; rules carrying an unknown kind are skipped at evaluation time.
type MetricSourceKind string

const (
	SourceErrorCount        MetricSourceKind = "error_count"
	SourceLatencyPercentile MetricSourceKind = "latency_percentile"
	SourceCostTotal         MetricSourceKind = "cost_total"
	SourceCacheHitRate      MetricSourceKind = "cache_hit_rate"
	SourceResourceGauge     MetricSourceKind = "resource_gauge"
	SourceCustom            MetricSourceKind = "custom"
)

// MetricSource describes where an alert rule reads its value from. Which
// parameter fields apply depends on Kind: Metric names the sample window for
// latency percentiles, Gauge names a resource gauge, Expr carries a custom
// expression.
type MetricSource struct {
	Kind       MetricSourceKind `json:"kind"`
	Metric     string           `json:"metric,omitempty"`
	Percentile float64          `json:"percentile,omitempty"`
	Gauge      string           `json:"gauge,omitempty"`
	Expr       string           `json:"expr,omitempty"`
}

// CompareOp is the comparison an alert rule applies between the observed
// value and its threshold.
type CompareOp string

const (
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpEqual        CompareOp = "="
	OpNotEqual     CompareOp = "!="
)

// Apply evaluates value against threshold under the operator.
func (op CompareOp) Apply(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		return false
	}
}

// AlertSeverity labels how urgent a rule's firing is.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// ChannelType identifies a notification transport.
type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelEmail   ChannelType = "email"
)

// NotificationChannel is one delivery target attached to an alert rule.
// Target is a URL for webhooks and a recipient address for email.
type NotificationChannel struct {
	Type   ChannelType `json:"type"`
	Target string      `json:"target"`
	Secret string      `json:"secret,omitempty"`
}

// AlertRule is an operator-defined threshold condition evaluated on a fixed
// cadence. Disabled rules are retained but never evaluated. The two
// evaluation timestamps are written by the engine, never by operators.
//
// Window is the trailing time range windowed sources (error_count,
// cost_total) count over. Interval is the per-rule evaluation cadence; zero
// means every engine cycle.
type AlertRule struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	Source          MetricSource          `json:"source"`
	Operator        CompareOp             `json:"operator"`
	Threshold       float64               `json:"threshold"`
	Window          Duration              `json:"window,omitempty"`
	Interval        Duration              `json:"interval,omitempty"`
	Severity        AlertSeverity         `json:"severity"`
	Enabled         bool                  `json:"enabled"`
	Cooldown        Duration              `json:"cooldown"`
	Channels        []NotificationChannel `json:"channels,omitempty"`
	LastEvaluatedAt *time.Time            `json:"last_evaluated_at,omitempty"`
	LastTriggeredAt *time.Time            `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

var (
	errRuleName      = errors.New("alert rule requires a name")
	errRuleSeverity  = errors.New("alert rule severity must be info, warning or critical")
	errRuleOperator  = errors.New("alert rule operator is not recognized")
	errRuleChannel   = errors.New("alert rule channel requires a target")
	errRuleExpr      = errors.New("custom metric source requires an expression")
	errRuleMetric    = errors.New("latency_percentile source requires a metric name")
	errRuleGauge     = errors.New("resource_gauge source requires a gauge name")
	errRuleWindow    = errors.New("windowed source requires a positive evaluation window")
	errRulePctBounds = errors.New("percentile must be in (0, 100]")
)

// Validate checks the fields an operator can get wrong when defining a rule.
// Unknown source kinds pass validation so rules can be stored ahead of an
// upgrade; the engine skips them at evaluation time.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return errRuleName
	}

	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("%w: %q", errRuleSeverity, r.Severity)
	}

	switch r.Operator {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
	default:
		return fmt.Errorf("%w: %q", errRuleOperator, r.Operator)
	}

	switch r.Source.Kind {
	case SourceErrorCount, SourceCostTotal:
		if r.Window <= 0 {
			return errRuleWindow
		}
	case SourceLatencyPercentile:
		if r.Source.Metric == "" {
			return errRuleMetric
		}

		if r.Source.Percentile <= 0 || r.Source.Percentile > 100 {
			return errRulePctBounds
		}
	case SourceResourceGauge:
		if r.Source.Gauge == "" {
			return errRuleGauge
		}
	case SourceCustom:
		if r.Source.Expr == "" {
			return errRuleExpr
		}
	}

	for i := range r.Channels {
		if r.Channels[i].Target == "" {
			return fmt.Errorf("%w (channel %d)", errRuleChannel, i)
		}
	}

	return nil
}

// AlertStatus is the lifecycle state of a fired alert instance. Transitions
// are forward-only: firing -> acknowledged -> resolved.
type AlertStatus string

const (
	AlertFiring       AlertStatus = "firing"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// DeliveryState records the outcome of one notification attempt.
type DeliveryState string

const (
	DeliverySent   DeliveryState = "sent"
	DeliveryFailed DeliveryState = "failed"
)

// DeliveryRecord captures a single per-channel notification outcome.
type DeliveryRecord struct {
	Channel     ChannelType   `json:"channel"`
	Target      string        `json:"target"`
	State       DeliveryState `json:"state"`
	Error       string        `json:"error,omitempty"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

// AlertInstance is one concrete firing of a rule, pinned to the observed
// value and threshold at the moment of evaluation.
type AlertInstance struct {
	ID             string           `json:"id"`
	RuleID         string           `json:"rule_id"`
	RuleName       string           `json:"rule_name"`
	Severity       AlertSeverity    `json:"severity"`
	Value          float64          `json:"value"`
	Threshold      float64          `json:"threshold"`
	Operator       CompareOp        `json:"operator"`
	Message        string           `json:"message,omitempty"`
	Status         AlertStatus      `json:"status"`
	FiredAt        time.Time        `json:"fired_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	Deliveries     []DeliveryRecord `json:"deliveries,omitempty"`
}
