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

	"github.com/google/uuid"

	"github.com/carelane/pulse/pkg/models"
)

// RuleCatalog is the slice of storage the rule admin surface uses.
type RuleCatalog interface {
	CreateAlertRule(ctx context.Context, rule *models.AlertRule) error
	UpdateAlertRule(ctx context.Context, rule *models.AlertRule) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error)
	ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error)
}

// Rules is the operator-facing rule admin surface. Validation failures are
// returned synchronously; the engine picks up changes on its next cycle.
type Rules struct {
	store RuleCatalog

	nowFn func() time.Time
	idFn  func() string
}

// NewRules returns a rule admin surface over the given store.
func NewRules(store RuleCatalog) *Rules {
	return &Rules{
		store: store,
		nowFn: time.Now,
		idFn:  uuid.NewString,
	}
}

// Create validates and stores a new rule, assigning an ID when the caller
// left it empty. The stored rule is returned.
func (r *Rules) Create(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if rule.ID == "" {
		rule.ID = r.idFn()
	}

	now := r.nowFn().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := r.store.CreateAlertRule(ctx, rule); err != nil {
		return nil, err
	}

	return rule, nil
}

// Update validates and replaces an existing rule. The evaluation timestamps
// are owned by the engine and ignored on the way in.
func (r *Rules) Update(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	rule.UpdatedAt = r.nowFn().UTC()

	if err := r.store.UpdateAlertRule(ctx, rule); err != nil {
		return nil, err
	}

	return rule, nil
}

// Delete removes a rule. Instances already fired by it are retained.
func (r *Rules) Delete(ctx context.Context, id string) error {
	return r.store.DeleteAlertRule(ctx, id)
}

// Toggle enables or disables a rule without touching its definition.
func (r *Rules) Toggle(ctx context.Context, id string, enabled bool) (*models.AlertRule, error) {
	rule, err := r.store.GetAlertRule(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled
	rule.UpdatedAt = r.nowFn().UTC()

	if err := r.store.UpdateAlertRule(ctx, rule); err != nil {
		return nil, err
	}

	return rule, nil
}

// Get returns one rule by ID.
func (r *Rules) Get(ctx context.Context, id string) (*models.AlertRule, error) {
	return r.store.GetAlertRule(ctx, id)
}

// List returns rules, optionally restricted to enabled ones.
func (r *Rules) List(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error) {
	return r.store.ListAlertRules(ctx, enabledOnly)
}

// InstanceLog is the slice of storage the instance admin surface uses.
type InstanceLog interface {
	GetAlertInstance(ctx context.Context, id string) (*models.AlertInstance, error)
	SetAlertInstanceStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error
	ListAlertInstances(ctx context.Context, filter *models.AlertInstanceFilter) ([]*models.AlertInstance, error)
}

// Instances is the operator-facing view of fired alerts. Status moves
// forward only; the store rejects transitions that would move an instance
// backwards.
type Instances struct {
	store InstanceLog

	nowFn func() time.Time
}

// NewInstances returns an instance admin surface over the given store.
func NewInstances(store InstanceLog) *Instances {
	return &Instances{
		store: store,
		nowFn: time.Now,
	}
}

// Get returns one fired instance by ID.
func (i *Instances) Get(ctx context.Context, id string) (*models.AlertInstance, error) {
	return i.store.GetAlertInstance(ctx, id)
}

// List returns fired instances matching the filter, newest first.
func (i *Instances) List(ctx context.Context, filter *models.AlertInstanceFilter) ([]*models.AlertInstance, error) {
	return i.store.ListAlertInstances(ctx, filter)
}

// Acknowledge marks a firing instance as seen by an operator.
func (i *Instances) Acknowledge(ctx context.Context, id string) error {
	return i.store.SetAlertInstanceStatus(ctx, id, models.AlertAcknowledged, i.nowFn().UTC())
}

// Resolve closes out an instance. Resolution is an operator action; the
// engine never resolves instances on its own.
func (i *Instances) Resolve(ctx context.Context, id string) error {
	return i.store.SetAlertInstanceStatus(ctx, id, models.AlertResolved, i.nowFn().UTC())
}
