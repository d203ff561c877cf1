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

// Package alerts evaluates operator-defined threshold rules against live
// metrics and dispatches notifications when they trip.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const (
	defaultEvalInterval    = 60 * time.Second
	defaultRuleCooldown    = 5 * time.Minute
	defaultDispatchTimeout = 10 * time.Second
)

// RuleStore is the slice of the persistence layer the engine reads rules
// from and writes firings through.
type RuleStore interface {
	ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error)
	TouchRuleEvaluation(ctx context.Context, ruleID string, evaluatedAt time.Time, triggered bool) error
	InsertAlertInstance(ctx context.Context, instance *models.AlertInstance) error
	UpdateAlertDeliveries(ctx context.Context, id string, deliveries []models.DeliveryRecord) error
	LastFiringTimes(ctx context.Context) (map[string]time.Time, error)
}

// EngineOption adjusts an Engine at construction time.
type EngineOption func(*Engine)

// WithNotifier registers or replaces the notifier for a channel type.
func WithNotifier(channelType models.ChannelType, notifier Notifier) EngineOption {
	return func(e *Engine) {
		e.notifiers[channelType] = notifier
	}
}

// Engine evaluates enabled alert rules on a fixed cadence. A rule that trips
// produces one persisted AlertInstance and one notification attempt per
// configured channel; a rule inside its cooldown window is skipped entirely.
type Engine struct {
	store     RuleStore
	metrics   MetricReader
	logger    logger.Logger
	notifiers map[models.ChannelType]Notifier

	interval        time.Duration
	defaultCooldown time.Duration
	dispatchTimeout time.Duration

	evaluator *exprEvaluator

	nowFn func() time.Time
	idFn  func() string

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewEngine builds an engine over the given store and metrics. A webhook
// notifier is always registered; email is registered only when SMTP is
// configured.
func NewEngine(store RuleStore, metrics MetricReader, cfg models.AlertConfig, log logger.Logger, opts ...EngineOption) *Engine {
	interval := time.Duration(cfg.Interval)
	if interval <= 0 {
		interval = defaultEvalInterval
	}

	cooldown := time.Duration(cfg.DefaultCooldown)
	if cooldown <= 0 {
		cooldown = defaultRuleCooldown
	}

	dispatchTimeout := time.Duration(cfg.DispatchTimeout)
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}

	e := &Engine{
		store:           store,
		metrics:         metrics,
		logger:          log,
		notifiers:       make(map[models.ChannelType]Notifier),
		interval:        interval,
		defaultCooldown: cooldown,
		dispatchTimeout: dispatchTimeout,
		evaluator:       newExprEvaluator(),
		nowFn:           time.Now,
		idFn:            uuid.NewString,
		lastFired:       make(map[string]time.Time),
	}

	e.notifiers[models.ChannelWebhook] = NewWebhookNotifier(log)

	if cfg.SMTP != nil {
		e.notifiers[models.ChannelEmail] = NewEmailNotifier(*cfg.SMTP, log)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run evaluates rules on the configured cadence until the context is
// canceled. Cooldown state survives restarts: the most recent firing per
// rule is loaded from the store before the first cycle.
func (e *Engine) Run(ctx context.Context) {
	e.seedCooldowns(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

func (e *Engine) seedCooldowns(ctx context.Context) {
	times, err := e.store.LastFiringTimes(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to load cooldown state, starting cold")
		return
	}

	e.mu.Lock()
	for ruleID, at := range times {
		e.lastFired[ruleID] = at
	}
	e.mu.Unlock()
}

// Evaluate runs one full evaluation cycle. It is exported so a management
// surface can force a cycle between ticks.
func (e *Engine) Evaluate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("Alert evaluation cycle panicked")
		}
	}()

	rules, err := e.store.ListAlertRules(ctx, true)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to load alert rules, skipping cycle")
		return
	}

	if len(rules) == 0 {
		return
	}

	snapshot := e.metrics.Snapshot(ctx)
	now := e.nowFn().UTC()

	for _, rule := range rules {
		e.evaluateRule(ctx, rule, snapshot, now)
	}
}

// evaluateRule applies one rule against the cycle's snapshot. Skips leave
// the rule's evaluation timestamps untouched so the skip is visible as a
// stale LastEvaluatedAt.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule, snapshot *models.MetricSnapshot, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("rule_id", rule.ID).Msg("Alert rule evaluation panicked")
		}
	}()

	if last, ok := e.lastFiring(rule); ok && now.Sub(last) < e.cooldownFor(rule) {
		return
	}

	if interval := time.Duration(rule.Interval); interval > 0 && rule.LastEvaluatedAt != nil {
		if now.Sub(*rule.LastEvaluatedAt) < interval {
			return
		}
	}

	value, ok := e.resolve(rule, snapshot)
	if !ok {
		return
	}

	if !rule.Operator.Apply(value, rule.Threshold) {
		if err := e.store.TouchRuleEvaluation(ctx, rule.ID, now, false); err != nil {
			e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Failed to stamp rule evaluation")
		}

		return
	}

	e.fire(ctx, rule, value, now)
}

func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, value float64, now time.Time) {
	instance := &models.AlertInstance{
		ID:        e.idFn(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Value:     value,
		Threshold: rule.Threshold,
		Operator:  rule.Operator,
		Message:   fireMessage(rule, value),
		Status:    models.AlertFiring,
		FiredAt:   now,
	}

	if err := e.store.InsertAlertInstance(ctx, instance); err != nil {
		// Not recorded, so no cooldown starts; the rule gets another chance
		// next cycle.
		e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Failed to record alert instance")
		return
	}

	e.mu.Lock()
	e.lastFired[rule.ID] = now
	e.mu.Unlock()

	if err := e.store.TouchRuleEvaluation(ctx, rule.ID, now, true); err != nil {
		e.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Failed to stamp rule evaluation")
	}

	e.logger.Info().
		Str("rule_id", rule.ID).
		Str("rule_name", rule.Name).
		Str("severity", string(rule.Severity)).
		Float64("value", value).
		Float64("threshold", rule.Threshold).
		Msg("Alert fired")

	deliveries := e.dispatch(ctx, rule, instance)
	if len(deliveries) == 0 {
		return
	}

	instance.Deliveries = deliveries

	if err := e.store.UpdateAlertDeliveries(ctx, instance.ID, deliveries); err != nil {
		e.logger.Warn().Err(err).Str("instance_id", instance.ID).Msg("Failed to record alert deliveries")
	}
}

// dispatch notifies every channel on the rule, recording one outcome per
// channel. A failing channel never blocks the others.
func (e *Engine) dispatch(ctx context.Context, rule *models.AlertRule, instance *models.AlertInstance) []models.DeliveryRecord {
	if len(rule.Channels) == 0 {
		return nil
	}

	deliveries := make([]models.DeliveryRecord, 0, len(rule.Channels))

	for _, channel := range rule.Channels {
		record := models.DeliveryRecord{
			Channel:     channel.Type,
			Target:      channel.Target,
			State:       models.DeliverySent,
			AttemptedAt: e.nowFn().UTC(),
		}

		notifier, ok := e.notifiers[channel.Type]
		if !ok {
			record.State = models.DeliveryFailed
			record.Error = "no notifier configured for channel type"

			e.logger.Warn().
				Str("rule_id", rule.ID).
				Str("channel", string(channel.Type)).
				Msg("No notifier configured for channel type")

			deliveries = append(deliveries, record)

			continue
		}

		notifyCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
		err := notifier.Notify(notifyCtx, channel, instance)

		cancel()

		if err != nil {
			record.State = models.DeliveryFailed
			record.Error = err.Error()

			e.logger.Warn().
				Err(err).
				Str("rule_id", rule.ID).
				Str("channel", string(channel.Type)).
				Str("target", channel.Target).
				Msg("Alert notification failed")
		}

		deliveries = append(deliveries, record)
	}

	return deliveries
}

// lastFiring reports the most recent firing known for the rule, whichever
// of the in-memory record and the stored LastTriggeredAt is later.
func (e *Engine) lastFiring(rule *models.AlertRule) (time.Time, bool) {
	e.mu.Lock()
	last, ok := e.lastFired[rule.ID]
	e.mu.Unlock()

	if rule.LastTriggeredAt != nil && (!ok || rule.LastTriggeredAt.After(last)) {
		return *rule.LastTriggeredAt, true
	}

	return last, ok
}

func (e *Engine) cooldownFor(rule *models.AlertRule) time.Duration {
	if rule.Cooldown > 0 {
		return time.Duration(rule.Cooldown)
	}

	return e.defaultCooldown
}

func fireMessage(rule *models.AlertRule, value float64) string {
	return fmt.Sprintf("%s: %g %s %g", rule.Name, value, rule.Operator, rule.Threshold)
}
