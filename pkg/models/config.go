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
	"fmt"
	"time"

	"github.com/carelane/pulse/pkg/logger"
)

// Duration wraps time.Duration so JSON configs can use "250ms" style strings.
// Numeric values are parsed as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// TLSFiles points at the client certificate material used when the database
// requires mutual TLS. Relative paths resolve against CertDir.
type TLSFiles struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// PostgresConfig describes the Postgres cluster that stores traces, logs and
// alert state.
type PostgresConfig struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	ApplicationName    string            `json:"application_name,omitempty"`
	MaxConnections     int32             `json:"max_connections,omitempty"`
	MinConnections     int32             `json:"min_connections,omitempty"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod  Duration          `json:"health_check_period,omitempty"`
	StatementTimeout   Duration          `json:"statement_timeout,omitempty"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
	CertDir            string            `json:"cert_dir,omitempty"`
	TLS                *TLSFiles         `json:"tls,omitempty"`
}

// MetricsConfig tunes the in-memory aggregator.
type MetricsConfig struct {
	WindowSize     int     `json:"window_size,omitempty"`      // samples kept per window, default 1000
	CPUWarnPercent float64 `json:"cpu_warn_percent,omitempty"` // degraded above this, default 85
	CPUCritPercent float64 `json:"cpu_crit_percent,omitempty"` // critical above this, default 95
	MemWarnPercent float64 `json:"mem_warn_percent,omitempty"` // default 85
	MemCritPercent float64 `json:"mem_crit_percent,omitempty"` // default 95
	ErrorRateWarn  float64 `json:"error_rate_warn,omitempty"`  // default 0.05
	ErrorRateCrit  float64 `json:"error_rate_crit,omitempty"`  // default 0.25
}

// TraceConfig tunes the trace collector's buffering and flush behavior.
type TraceConfig struct {
	BufferSize    int      `json:"buffer_size,omitempty"`    // default 4096 traces
	FlushInterval Duration `json:"flush_interval,omitempty"` // default 10s
	FlushBatch    int      `json:"flush_batch,omitempty"`    // default 256 per write
	MaxSpanDepth  int      `json:"max_span_depth,omitempty"` // default 32
}

// LogConfig tunes the log pipeline.
type LogConfig struct {
	BufferSize    int      `json:"buffer_size,omitempty"`    // default 8192 records
	FlushInterval Duration `json:"flush_interval,omitempty"` // default 5s
	FlushBatch    int      `json:"flush_batch,omitempty"`    // default 500 per write
	MinLevel      LogLevel `json:"min_level,omitempty"`      // records below this are not captured
	CaptureStack  bool     `json:"capture_stack,omitempty"`  // attach stacks to error records
}

// SMTPConfig is the mail relay email notifications go through.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"` // default 587
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
}

// AlertConfig tunes the alert engine.
type AlertConfig struct {
	Interval        Duration    `json:"interval,omitempty"`         // evaluation cadence, default 60s
	DefaultCooldown Duration    `json:"default_cooldown,omitempty"` // default 5m
	DispatchTimeout Duration    `json:"dispatch_timeout,omitempty"` // per-channel, default 10s
	SMTP            *SMTPConfig `json:"smtp,omitempty"`             // nil disables email channels
}

// NATSConfig enables publishing live-tail notifications on JetStream instead
// of the in-process broker.
type NATSConfig struct {
	URL       string    `json:"url"`
	Subject   string    `json:"subject,omitempty"` // default pulse.logs.tail
	Stream    string    `json:"stream,omitempty"`  // default PULSE_LOGS
	CredsFile string    `json:"creds_file,omitempty"`
	CertDir   string    `json:"cert_dir,omitempty"`
	TLS       *TLSFiles `json:"tls,omitempty"`
}

// TelemetryConfig mirrors collected data to an OTLP endpoint. All exports are
// best-effort; the local store remains authoritative.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Traces      bool              `json:"traces,omitempty"`
	Logs        bool              `json:"logs,omitempty"`
	Metrics     bool              `json:"metrics,omitempty"`
}

// OTelExport returns the exporter settings shared by the telemetry mirrors,
// nil when export is disabled or no endpoint is set. The per-signal flags
// (Traces, Logs, Metrics) still gate each mirror individually.
func (t *TelemetryConfig) OTelExport() *logger.OTelConfig {
	if t == nil || !t.Enabled || t.Endpoint == "" {
		return nil
	}

	return &logger.OTelConfig{
		Enabled:     true,
		Endpoint:    t.Endpoint,
		ServiceName: t.ServiceName,
		Insecure:    t.Insecure,
		Headers:     t.Headers,
	}
}

// CoreConfig is the top-level configuration for the pulse core service.
type CoreConfig struct {
	ServiceName string           `json:"service_name,omitempty"` // default pulse-core
	Database    PostgresConfig   `json:"database"`
	Metrics     MetricsConfig    `json:"metrics,omitempty"`
	Traces      TraceConfig      `json:"traces,omitempty"`
	Logs        LogConfig        `json:"logs,omitempty"`
	Alerts      AlertConfig      `json:"alerts,omitempty"`
	NATS        *NATSConfig      `json:"nats,omitempty"`
	Telemetry   *TelemetryConfig `json:"telemetry,omitempty"`
	Logging     *logger.Config   `json:"logging,omitempty"`
}

var (
	errInvalidDuration         = fmt.Errorf("invalid duration")
	errDatabaseHostRequired    = fmt.Errorf("database host is required")
	errDatabaseNameRequired    = fmt.Errorf("database name is required")
	errNATSURLRequired         = fmt.Errorf("nats url is required when nats is configured")
	errTelemetryEndpointNeeded = fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
)

func (c *CoreConfig) Validate() error {
	if c.Database.Host == "" {
		return errDatabaseHostRequired
	}

	if c.Database.Database == "" {
		return errDatabaseNameRequired
	}

	if c.NATS != nil && c.NATS.URL == "" {
		return errNATSURLRequired
	}

	if c.Telemetry != nil && c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errTelemetryEndpointNeeded
	}

	return nil
}
