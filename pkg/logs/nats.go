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

package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const (
	defaultTailSubject = "pulse.logs.tail"
	defaultTailStream  = "PULSE_LOGS"
	tailStreamMaxAge   = 24 * time.Hour
)

// NATSBroker publishes live-tail notifications on a JetStream subject so
// other processes can follow the log stream.
type NATSBroker struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  logger.Logger
}

// ConnectNATSBroker dials NATS, ensures the tail stream exists and returns a
// broker publishing on the configured subject.
func ConnectNATSBroker(ctx context.Context, cfg models.NATSConfig, log logger.Logger) (*NATSBroker, error) {
	opts := []nats.Option{
		nats.Name("pulse-core"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	if cfg.TLS != nil {
		resolve := func(path string) string {
			if path == "" || filepath.IsAbs(path) || cfg.CertDir == "" {
				return path
			}

			return filepath.Join(cfg.CertDir, path)
		}

		if caFile := resolve(cfg.TLS.CAFile); caFile != "" {
			opts = append(opts, nats.RootCAs(caFile))
		}

		if certFile, keyFile := resolve(cfg.TLS.CertFile), resolve(cfg.TLS.KeyFile); certFile != "" && keyFile != "" {
			opts = append(opts, nats.ClientCert(certFile, keyFile))
		}
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := tailSubject(cfg)
	stream := tailStream(cfg)

	if _, err := js.Stream(ctx, stream); err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			MaxAge:   tailStreamMaxAge,
		}

		if _, err := js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create or get stream %s: %w", stream, err)
		}

		log.Info().
			Str("stream", stream).
			Str("subject", subject).
			Msg("Created JetStream live-tail stream")
	}

	return &NATSBroker{nc: nc, js: js, subject: subject, logger: log}, nil
}

// Publish sends one notification to the tail subject.
func (b *NATSBroker) Publish(ctx context.Context, n models.LogNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal log notification: %w", err)
	}

	if _, err := b.js.Publish(ctx, b.subject, payload); err != nil {
		return fmt.Errorf("failed to publish log notification: %w", err)
	}

	return nil
}

// Close drops the NATS connection.
func (b *NATSBroker) Close() {
	b.nc.Close()
}

func tailSubject(cfg models.NATSConfig) string {
	if cfg.Subject != "" {
		return cfg.Subject
	}

	return defaultTailSubject
}

func tailStream(cfg models.NATSConfig) string {
	if cfg.Stream != "" {
		return cfg.Stream
	}

	return defaultTailStream
}
