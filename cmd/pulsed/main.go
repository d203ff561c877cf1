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

// pulsed runs the pulse observability core standalone: it opens the store,
// starts the flush, drain and alert loops, and serves as the shared sink for
// development and dashboard rendering.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelane/pulse/pkg/config"
	"github.com/carelane/pulse/pkg/core"
	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
	"github.com/carelane/pulse/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/carelane/pulse.json", "Path to pulse config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLogger, err := logger.NewLogger(ctx, nil)
	if err != nil {
		return err
	}

	cfg := &models.CoreConfig{}

	loader := config.NewConfig(bootLogger)
	if err := loader.LoadAndValidate(ctx, *configPath, cfg); err != nil {
		return err
	}

	applyTelemetryLogExport(cfg)

	svcLogger, err := logger.NewComponentLogger(ctx, "pulse", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := logger.Shutdown(); err != nil {
			bootLogger.Error().Err(err).Msg("Logger shutdown failed")
		}
	}()

	if cfg.Telemetry != nil && cfg.Telemetry.Metrics {
		if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
			ServiceName: cfg.ServiceName,
			OTel:        cfg.Telemetry.OTelExport(),
		}); err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
			return err
		}
	}

	svc, err := core.NewService(ctx, cfg, svcLogger)
	if err != nil {
		return err
	}

	// The main logger tees into the pipeline so pulsed's own output is
	// captured alongside the instrumented callers'.
	mainLogger, err := logger.NewLoggerWithTap(ctx, cfg.Logging, svc.LogTap("pulsed"))
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("config", *configPath).
		Msg("pulsed started")

	<-ctx.Done()

	mainLogger.Info().Msg("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return svc.Stop(stopCtx)
}

// applyTelemetryLogExport copies the telemetry exporter settings onto the
// logging config when log export is requested, so every zerolog line is also
// delivered to the OTLP collector.
func applyTelemetryLogExport(cfg *models.CoreConfig) {
	otelCfg := cfg.Telemetry.OTelExport()
	if otelCfg == nil || !cfg.Telemetry.Logs {
		return
	}

	if cfg.Logging == nil {
		cfg.Logging = logger.DefaultConfig()
	}

	cfg.Logging.OTel = *otelCfg
}
