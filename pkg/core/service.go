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

// Package core wires the pulse subsystem together. One Service per process
// owns the store, the metric aggregator, the trace collector, the log
// pipeline and the alert engine, and runs their background loops.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/carelane/pulse/pkg/alerts"
	"github.com/carelane/pulse/pkg/db"
	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/logs"
	"github.com/carelane/pulse/pkg/metrics"
	"github.com/carelane/pulse/pkg/models"
	"github.com/carelane/pulse/pkg/tracing"
)

const defaultServiceName = "pulse-core"

var (
	errConfigNil      = errors.New("core config is nil")
	errAlreadyStarted = errors.New("service already started")
	errNotStarted     = errors.New("service not started")
)

// Service is the process-wide pulse instance. Construct it once at startup
// and pass it by reference to the call sites that instrument work.
type Service struct {
	cfg    *models.CoreConfig
	logger logger.Logger

	store      db.Store
	aggregator *metrics.Aggregator
	collector  *tracing.Collector
	tracer     *tracing.Tracer
	pipeline   *logs.Pipeline
	hub        *logs.Hub
	natsBroker *logs.NATSBroker
	engine     *alerts.Engine
	rules      *alerts.Rules
	instances  *alerts.Instances

	telemetry *sdktrace.TracerProvider

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService validates the config, opens the store and wires the service.
// Start must be called before buffered work is persisted.
func NewService(ctx context.Context, cfg *models.CoreConfig, log logger.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errConfigNil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid core config: %w", err)
	}

	store, err := db.New(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}

	svc, err := assemble(ctx, store, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	return svc, nil
}

// assemble wires the in-memory components over an already-open store.
func assemble(ctx context.Context, store db.Store, cfg *models.CoreConfig, log logger.Logger) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: log,
		store:  store,
	}

	s.aggregator = metrics.NewAggregator(cfg.Metrics, log)

	var broker logs.Broker

	if cfg.NATS != nil {
		natsBroker, err := logs.ConnectNATSBroker(ctx, *cfg.NATS, log)
		if err != nil {
			return nil, err
		}

		s.natsBroker = natsBroker
		broker = natsBroker
	} else {
		s.hub = logs.NewHub(log)
		broker = s.hub
	}

	s.pipeline = logs.NewPipeline(store, cfg.Logs, log,
		logs.WithBroker(broker),
		logs.WithDropCounter(s.aggregator),
	)

	collectorOpts := []tracing.CollectorOption{tracing.WithDropCounter(s.aggregator)}

	if otelCfg := cfg.Telemetry.OTelExport(); otelCfg != nil && cfg.Telemetry.Traces {
		provider, err := logger.InitializeTracing(ctx, logger.TracingConfig{
			ServiceName: telemetryServiceName(cfg),
			OTel:        otelCfg,
		})
		if err != nil {
			if s.natsBroker != nil {
				s.natsBroker.Close()
			}

			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}

		s.telemetry = provider
		collectorOpts = append(collectorOpts, tracing.WithTraceMirror(provider))
	}

	s.collector = tracing.NewCollector(store, cfg.Traces, log, collectorOpts...)
	s.tracer = tracing.NewTracer(s.collector, cfg.Traces, log)
	s.engine = alerts.NewEngine(store, s.aggregator, cfg.Alerts, log)
	s.rules = alerts.NewRules(store)
	s.instances = alerts.NewInstances(store)

	return s, nil
}

// Start launches the flush, drain and evaluation loops. It returns
// immediately; the loops run until Stop or until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info().Str("service", serviceName(s.cfg)).Msg("Starting pulse core")

	s.wg.Add(3)

	go func() {
		defer s.wg.Done()
		s.collector.Run(runCtx)
	}()

	go func() {
		defer s.wg.Done()
		s.pipeline.Run(runCtx)
	}()

	go func() {
		defer s.wg.Done()
		s.engine.Run(runCtx)
	}()

	return nil
}

// Stop cancels the background loops, waits for their final flushes and
// releases the store and broker connections. In-flight notification
// dispatch may be abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return errNotStarted
	}

	cancel()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for background loops: %w", ctx.Err())
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}

	if s.natsBroker != nil {
		s.natsBroker.Close()
	}

	if s.hub != nil {
		s.hub.Close()
	}

	s.store.Close()

	s.logger.Info().Msg("Pulse core stopped")

	return nil
}

func serviceName(cfg *models.CoreConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}

	return defaultServiceName
}

func telemetryServiceName(cfg *models.CoreConfig) string {
	if cfg.Telemetry != nil && cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}

	return serviceName(cfg)
}
