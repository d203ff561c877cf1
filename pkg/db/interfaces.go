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

// Package db persists traces, logs and alert state in Postgres.
package db

import (
	"context"
	"time"

	"github.com/carelane/pulse/pkg/models"
)

//go:generate mockgen -destination=mock_store.go -package=db github.com/carelane/pulse/pkg/db Store

// Store represents all database operations for the pulse core.
type Store interface {
	Close()

	// Trace operations.

	InsertTraces(ctx context.Context, traces []*models.TraceContext) error
	// InsertSpans writes spans that arrived after their trace was flushed.
	InsertSpans(ctx context.Context, spans []*models.Span) error
	GetTrace(ctx context.Context, id string) (*models.TraceContext, error)
	ListTraces(ctx context.Context, filter *models.TraceFilter) ([]*models.TraceContext, error)
	ListSpans(ctx context.Context, traceID string) ([]*models.Span, error)

	// Log operations.

	InsertLogs(ctx context.Context, records []*models.LogRecord) error
	GetLog(ctx context.Context, id string) (*models.LogRecord, error)
	ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.LogRecord, error)

	// Alert rule operations.

	CreateAlertRule(ctx context.Context, rule *models.AlertRule) error
	UpdateAlertRule(ctx context.Context, rule *models.AlertRule) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error)
	// TouchRuleEvaluation stamps a rule's last evaluation time; when
	// triggered is true the last-triggered time is set as well.
	TouchRuleEvaluation(ctx context.Context, ruleID string, evaluatedAt time.Time, triggered bool) error

	// Alert instance operations.

	InsertAlertInstance(ctx context.Context, instance *models.AlertInstance) error
	GetAlertInstance(ctx context.Context, id string) (*models.AlertInstance, error)
	SetAlertInstanceStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error
	// UpdateAlertDeliveries replaces an instance's per-channel delivery
	// records once dispatch has run.
	UpdateAlertDeliveries(ctx context.Context, id string, deliveries []models.DeliveryRecord) error
	ListAlertInstances(ctx context.Context, filter *models.AlertInstanceFilter) ([]*models.AlertInstance, error)
	// LastFiringTimes returns the most recent firing time per rule, used to
	// seed cooldown state after a restart.
	LastFiringTimes(ctx context.Context) (map[string]time.Time, error)
}
