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

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carelane/pulse/pkg/models"
)

var (
	errRuleIDMissing     = errors.New("alert rule id is required")
	errInstanceIDMissing = errors.New("alert instance id is required")
)

// ruleSelection is the base SELECT for querying alert rules.
const ruleSelection = `
SELECT
	id,
	name,
	description,
	source,
	operator,
	threshold,
	window_ns,
	interval_ns,
	severity,
	enabled,
	cooldown_ns,
	channels,
	last_evaluated_at,
	last_triggered_at,
	created_at,
	updated_at
FROM alert_rules
WHERE 1=1`

// instanceSelection is the base SELECT for querying alert instances.
const instanceSelection = `
SELECT
	id,
	rule_id,
	rule_name,
	severity,
	value,
	threshold,
	operator,
	message,
	status,
	fired_at,
	acknowledged_at,
	resolved_at,
	deliveries
FROM alert_instances
WHERE 1=1`

// CreateAlertRule persists a new rule. The caller assigns the ID.
func (s *store) CreateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if rule == nil {
		return ErrRuleNil
	}

	if rule.ID == "" {
		return errRuleIDMissing
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	sourceJSON, channelsJSON, err := ruleJSONFields(rule)
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO alert_rules (
		id, name, description, source, operator, threshold, window_ns,
		interval_ns, severity, enabled, cooldown_ns, channels,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4::jsonb, $5, $6, $7,
		$8, $9, $10, $11, $12::jsonb,
		$13, $14
	)`

	_, err = s.pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		sourceJSON,
		string(rule.Operator),
		rule.Threshold,
		int64(rule.Window),
		int64(rule.Interval),
		string(rule.Severity),
		rule.Enabled,
		int64(rule.Cooldown),
		channelsJSON,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	return nil
}

// UpdateAlertRule replaces the operator-editable fields of an existing rule.
// Evaluation timestamps are owned by the engine and left untouched.
func (s *store) UpdateAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if rule == nil {
		return ErrRuleNil
	}

	if rule.ID == "" {
		return errRuleIDMissing
	}

	rule.UpdatedAt = time.Now().UTC()

	sourceJSON, channelsJSON, err := ruleJSONFields(rule)
	if err != nil {
		return err
	}

	const query = `
	UPDATE alert_rules SET
		name = $2,
		description = $3,
		source = $4::jsonb,
		operator = $5,
		threshold = $6,
		window_ns = $7,
		interval_ns = $8,
		severity = $9,
		enabled = $10,
		cooldown_ns = $11,
		channels = $12::jsonb,
		updated_at = $13
	WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		sourceJSON,
		string(rule.Operator),
		rule.Threshold,
		int64(rule.Window),
		int64(rule.Interval),
		string(rule.Severity),
		rule.Enabled,
		int64(rule.Cooldown),
		channelsJSON,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAlertRuleNotFound
	}

	return nil
}

// DeleteAlertRule removes a rule. Rules with recorded instances are kept;
// the FK constraint surfaces as ErrRuleHasInstances.
func (s *store) DeleteAlertRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRuleHasInstances
		}

		return fmt.Errorf("failed to delete alert rule: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAlertRuleNotFound
	}

	return nil
}

// GetAlertRule retrieves one rule by ID.
func (s *store) GetAlertRule(ctx context.Context, id string) (*models.AlertRule, error) {
	row := s.pool.QueryRow(ctx, ruleSelection+" AND id = $1", id)

	rule, err := scanAlertRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertRuleNotFound
		}

		return nil, fmt.Errorf("%w alert_rules: %w", ErrFailedToQuery, err)
	}

	return rule, nil
}

// ListAlertRules returns rules in creation order, optionally only the
// enabled ones.
func (s *store) ListAlertRules(ctx context.Context, enabledOnly bool) ([]*models.AlertRule, error) {
	query := ruleSelection

	if enabledOnly {
		query += " AND enabled"
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w alert_rules: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var rules []*models.AlertRule

	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w alert_rules: %w", ErrFailedToQuery, err)
	}

	return rules, nil
}

// TouchRuleEvaluation stamps the evaluation bookkeeping on a rule.
func (s *store) TouchRuleEvaluation(ctx context.Context, ruleID string, evaluatedAt time.Time, triggered bool) error {
	query := `UPDATE alert_rules SET last_evaluated_at = $2 WHERE id = $1`
	if triggered {
		query = `UPDATE alert_rules SET last_evaluated_at = $2, last_triggered_at = $2 WHERE id = $1`
	}

	tag, err := s.pool.Exec(ctx, query, ruleID, evaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to stamp rule evaluation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAlertRuleNotFound
	}

	return nil
}

// InsertAlertInstance records one firing with its delivery outcomes.
func (s *store) InsertAlertInstance(ctx context.Context, instance *models.AlertInstance) error {
	if instance == nil {
		return ErrInstanceNil
	}

	if instance.ID == "" {
		return errInstanceIDMissing
	}

	deliveriesJSON := []byte("[]")

	if len(instance.Deliveries) > 0 {
		b, err := json.Marshal(instance.Deliveries)
		if err != nil {
			return fmt.Errorf("failed to serialize alert deliveries: %w", err)
		}

		deliveriesJSON = b
	}

	const query = `
	INSERT INTO alert_instances (
		id, rule_id, rule_name, severity, value, threshold, operator,
		message, status, fired_at, acknowledged_at, resolved_at, deliveries
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13::jsonb
	)
	ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		instance.ID,
		instance.RuleID,
		instance.RuleName,
		string(instance.Severity),
		instance.Value,
		instance.Threshold,
		string(instance.Operator),
		instance.Message,
		string(instance.Status),
		instance.FiredAt,
		instance.AcknowledgedAt,
		instance.ResolvedAt,
		deliveriesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert instance: %w", err)
	}

	return nil
}

// GetAlertInstance retrieves one fired instance by ID.
func (s *store) GetAlertInstance(ctx context.Context, id string) (*models.AlertInstance, error) {
	row := s.pool.QueryRow(ctx, instanceSelection+" AND id = $1", id)

	instance, err := scanAlertInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertInstanceNotFound
		}

		return nil, fmt.Errorf("%w alert_instances: %w", ErrFailedToQuery, err)
	}

	return instance, nil
}

// UpdateAlertDeliveries replaces an instance's delivery records with the
// outcomes observed during dispatch.
func (s *store) UpdateAlertDeliveries(ctx context.Context, id string, deliveries []models.DeliveryRecord) error {
	deliveriesJSON := []byte("[]")

	if len(deliveries) > 0 {
		b, err := json.Marshal(deliveries)
		if err != nil {
			return fmt.Errorf("failed to serialize alert deliveries: %w", err)
		}

		deliveriesJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_instances SET deliveries = $2::jsonb WHERE id = $1`,
		id, deliveriesJSON)
	if err != nil {
		return fmt.Errorf("failed to update alert deliveries: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAlertInstanceNotFound
	}

	return nil
}

// SetAlertInstanceStatus advances an instance through its lifecycle. Only
// forward transitions are applied: firing to acknowledged or resolved, and
// acknowledged to resolved.
func (s *store) SetAlertInstanceStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error {
	var (
		query string
		args  []interface{}
	)

	switch status {
	case models.AlertAcknowledged:
		query = `UPDATE alert_instances SET status = $2, acknowledged_at = $3
			WHERE id = $1 AND status = 'firing'`
		args = []interface{}{id, string(status), at}
	case models.AlertResolved:
		query = `UPDATE alert_instances SET status = $2, resolved_at = $3
			WHERE id = $1 AND status IN ('firing', 'acknowledged')`
		args = []interface{}{id, string(status), at}
	default:
		return fmt.Errorf("%w: cannot set %q", ErrInvalidStatusTransition, status)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alert instance status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing instance from one already past this state.
		if _, err := s.GetAlertInstance(ctx, id); err != nil {
			return err
		}

		return ErrInvalidStatusTransition
	}

	return nil
}

// ListAlertInstances returns fired instances matching the filter, newest
// first.
func (s *store) ListAlertInstances(ctx context.Context, filter *models.AlertInstanceFilter) ([]*models.AlertInstance, error) {
	if filter == nil {
		filter = &models.AlertInstanceFilter{}
	}

	filter.Clamp()

	query := instanceSelection

	var args []interface{}

	if filter.RuleID != "" {
		query += fmt.Sprintf(" AND rule_id = $%d", len(args)+1)
		args = append(args, filter.RuleID)
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(filter.Status))
	}

	if !filter.Start.IsZero() {
		query += fmt.Sprintf(" AND fired_at >= $%d", len(args)+1)
		args = append(args, filter.Start)
	}

	if !filter.End.IsZero() {
		query += fmt.Sprintf(" AND fired_at <= $%d", len(args)+1)
		args = append(args, filter.End)
	}

	query += fmt.Sprintf(" ORDER BY fired_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w alert_instances: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var instances []*models.AlertInstance

	for rows.Next() {
		instance, err := scanAlertInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w alert_instances: %w", ErrFailedToQuery, err)
	}

	return instances, nil
}

// LastFiringTimes returns the last-triggered timestamp per rule so the
// engine can seed cooldown state after a restart.
func (s *store) LastFiringTimes(ctx context.Context) (map[string]time.Time, error) {
	const query = `SELECT id, last_triggered_at FROM alert_rules WHERE last_triggered_at IS NOT NULL`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w alert_rules: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	firing := make(map[string]time.Time)

	for rows.Next() {
		var (
			id        string
			triggered time.Time
		)

		if err := rows.Scan(&id, &triggered); err != nil {
			return nil, fmt.Errorf("%w firing times: %w", ErrFailedToScan, err)
		}

		firing[id] = triggered
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w alert_rules: %w", ErrFailedToQuery, err)
	}

	return firing, nil
}

func ruleJSONFields(rule *models.AlertRule) (sourceJSON, channelsJSON []byte, err error) {
	sourceJSON, err = json.Marshal(rule.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize alert rule source: %w", err)
	}

	channelsJSON = []byte("[]")

	if len(rule.Channels) > 0 {
		channelsJSON, err = json.Marshal(rule.Channels)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to serialize alert rule channels: %w", err)
		}
	}

	return sourceJSON, channelsJSON, nil
}

// scanAlertRule scans a single rule row.
func scanAlertRule(row pgx.Row) (*models.AlertRule, error) {
	var (
		rule          models.AlertRule
		operator      string
		severity      string
		windowNS      int64
		intervalNS    int64
		cooldownNS    int64
		sourceJSON    []byte
		channelsJSON  []byte
		lastEvaluated sql.NullTime
		lastTriggered sql.NullTime
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&sourceJSON,
		&operator,
		&rule.Threshold,
		&windowNS,
		&intervalNS,
		&severity,
		&rule.Enabled,
		&cooldownNS,
		&channelsJSON,
		&lastEvaluated,
		&lastTriggered,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("%w alert rule row: %w", ErrFailedToScan, err)
	}

	rule.Operator = models.CompareOp(operator)
	rule.Severity = models.AlertSeverity(severity)
	rule.Window = models.Duration(windowNS)
	rule.Interval = models.Duration(intervalNS)
	rule.Cooldown = models.Duration(cooldownNS)

	if len(sourceJSON) > 0 {
		if err := json.Unmarshal(sourceJSON, &rule.Source); err != nil {
			return nil, fmt.Errorf("%w alert rule source: %w", ErrFailedToScan, err)
		}
	}

	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &rule.Channels); err != nil {
			return nil, fmt.Errorf("%w alert rule channels: %w", ErrFailedToScan, err)
		}
	}

	if lastEvaluated.Valid {
		t := lastEvaluated.Time
		rule.LastEvaluatedAt = &t
	}

	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggeredAt = &t
	}

	return &rule, nil
}

// scanAlertInstance scans a single instance row.
func scanAlertInstance(row pgx.Row) (*models.AlertInstance, error) {
	var (
		instance       models.AlertInstance
		severity       string
		operator       string
		status         string
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
		deliveriesJSON []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.RuleID,
		&instance.RuleName,
		&severity,
		&instance.Value,
		&instance.Threshold,
		&operator,
		&instance.Message,
		&status,
		&instance.FiredAt,
		&acknowledgedAt,
		&resolvedAt,
		&deliveriesJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("%w alert instance row: %w", ErrFailedToScan, err)
	}

	instance.Severity = models.AlertSeverity(severity)
	instance.Operator = models.CompareOp(operator)
	instance.Status = models.AlertStatus(status)

	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		instance.AcknowledgedAt = &t
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		instance.ResolvedAt = &t
	}

	if len(deliveriesJSON) > 0 {
		if err := json.Unmarshal(deliveriesJSON, &instance.Deliveries); err != nil {
			return nil, fmt.Errorf("%w alert deliveries: %w", ErrFailedToScan, err)
		}
	}

	return &instance, nil
}
