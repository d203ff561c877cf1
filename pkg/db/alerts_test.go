package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/models"
)

func TestScanAlertRule(t *testing.T) {
	created := time.Now().UTC().Add(-time.Hour)
	updated := created.Add(30 * time.Minute)
	triggered := updated.Add(5 * time.Minute)

	row := &fakeRow{
		values: []interface{}{
			"rule-1",
			"high error rate",
			"errors over 5m window",
			[]byte(`{"kind":"error_count"}`),
			">",
			10.0,
			int64(5 * time.Minute),
			int64(time.Minute),
			"critical",
			true,
			int64(15 * time.Minute),
			[]byte(`[{"type":"webhook","target":"https://hooks.example.com/x"}]`),
			nil,
			triggered,
			created,
			updated,
		},
	}

	rule, err := scanAlertRule(row)
	require.NoError(t, err)

	assert.Equal(t, "rule-1", rule.ID)
	assert.Equal(t, "high error rate", rule.Name)
	assert.Equal(t, models.SourceErrorCount, rule.Source.Kind)
	assert.Equal(t, models.OpGreater, rule.Operator)
	assert.InDelta(t, 10.0, rule.Threshold, 0.001)
	assert.Equal(t, 5*time.Minute, time.Duration(rule.Window))
	assert.Equal(t, time.Minute, time.Duration(rule.Interval))
	assert.Equal(t, models.SeverityCritical, rule.Severity)
	assert.True(t, rule.Enabled)
	assert.Equal(t, 15*time.Minute, time.Duration(rule.Cooldown))
	require.Len(t, rule.Channels, 1)
	assert.Equal(t, models.ChannelWebhook, rule.Channels[0].Type)
	assert.Nil(t, rule.LastEvaluatedAt)
	require.NotNil(t, rule.LastTriggeredAt)
	assert.Equal(t, triggered, *rule.LastTriggeredAt)
}

func TestScanAlertInstance(t *testing.T) {
	fired := time.Now().UTC().Add(-10 * time.Minute)
	acked := fired.Add(2 * time.Minute)

	row := &fakeRow{
		values: []interface{}{
			"inst-1",
			"rule-1",
			"high error rate",
			"critical",
			17.0,
			10.0,
			">",
			"high error rate: 17 > 10",
			"acknowledged",
			fired,
			acked,
			nil,
			[]byte(`[{"channel":"webhook","target":"https://hooks.example.com/x","state":"sent","attempted_at":"2025-06-01T10:00:00Z"}]`),
		},
	}

	instance, err := scanAlertInstance(row)
	require.NoError(t, err)

	assert.Equal(t, "inst-1", instance.ID)
	assert.Equal(t, "rule-1", instance.RuleID)
	assert.Equal(t, "high error rate: 17 > 10", instance.Message)
	assert.InDelta(t, 17.0, instance.Value, 0.001)
	assert.InDelta(t, 10.0, instance.Threshold, 0.001)
	assert.Equal(t, models.AlertAcknowledged, instance.Status)
	require.NotNil(t, instance.AcknowledgedAt)
	assert.Equal(t, acked, *instance.AcknowledgedAt)
	assert.Nil(t, instance.ResolvedAt)
	require.Len(t, instance.Deliveries, 1)
	assert.Equal(t, models.DeliverySent, instance.Deliveries[0].State)
}

func TestRuleJSONFields(t *testing.T) {
	rule := &models.AlertRule{
		Source: models.MetricSource{Kind: models.SourceCacheHitRate},
	}

	sourceJSON, channelsJSON, err := ruleJSONFields(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"cache_hit_rate"}`, string(sourceJSON))
	assert.Equal(t, []byte("[]"), channelsJSON)

	rule.Channels = []models.NotificationChannel{
		{Type: models.ChannelEmail, Target: "oncall@carelane.io"},
	}

	_, channelsJSON, err = ruleJSONFields(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"email","target":"oncall@carelane.io"}]`, string(channelsJSON))
}
