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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "string form", input: `"250ms"`, expected: 250 * time.Millisecond},
		{name: "string with units", input: `"1h30m"`, expected: 90 * time.Minute},
		{name: "numeric nanoseconds", input: `5000000000`, expected: 5 * time.Second},
		{name: "bad string", input: `"not-a-duration"`, wantErr: true},
		{name: "wrong type", input: `{"value": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, time.Duration(d))
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	cfg := AlertConfig{Interval: Duration(90 * time.Second)}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"1m30s"`)

	var decoded AlertConfig

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Interval, decoded.Interval)
}

func TestCoreConfigValidate(t *testing.T) {
	valid := CoreConfig{
		Database: PostgresConfig{Host: "localhost", Database: "pulse"},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*CoreConfig)
		want   error
	}{
		{
			name:   "missing host",
			mutate: func(c *CoreConfig) { c.Database.Host = "" },
			want:   errDatabaseHostRequired,
		},
		{
			name:   "missing database name",
			mutate: func(c *CoreConfig) { c.Database.Database = "" },
			want:   errDatabaseNameRequired,
		},
		{
			name:   "nats without url",
			mutate: func(c *CoreConfig) { c.NATS = &NATSConfig{} },
			want:   errNATSURLRequired,
		},
		{
			name:   "telemetry enabled without endpoint",
			mutate: func(c *CoreConfig) { c.Telemetry = &TelemetryConfig{Enabled: true} },
			want:   errTelemetryEndpointNeeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestTelemetryOTelExport(t *testing.T) {
	var nilCfg *TelemetryConfig

	assert.Nil(t, nilCfg.OTelExport())
	assert.Nil(t, (&TelemetryConfig{Endpoint: "otel:4317"}).OTelExport())
	assert.Nil(t, (&TelemetryConfig{Enabled: true}).OTelExport())

	cfg := &TelemetryConfig{
		Enabled:     true,
		Endpoint:    "otel:4317",
		ServiceName: "pulse-dev",
		Insecure:    true,
		Headers:     map[string]string{"authorization": "token"},
	}

	exported := cfg.OTelExport()
	require.NotNil(t, exported)
	assert.True(t, exported.Enabled)
	assert.Equal(t, "otel:4317", exported.Endpoint)
	assert.Equal(t, "pulse-dev", exported.ServiceName)
	assert.True(t, exported.Insecure)
	assert.Equal(t, "token", exported.Headers["authorization"])
}
