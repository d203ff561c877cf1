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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

var _ Store = (*store)(nil)

// PostgreSQL SQLSTATE codes for transient errors that should be retried.
const (
	sqlstateDeadlockDetected    = "40P01"
	sqlstateSerializationFailed = "40001"
	sqlstateStatementTimeout    = "57014"

	sqlstateForeignKeyViolation = "23503"
)

const (
	maxBatchAttempts = 3
	baseBackoff      = 150 * time.Millisecond
)

// store is the pgx-backed Store implementation.
type store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// New connects to Postgres, runs migrations and returns a ready Store.
func New(ctx context.Context, cfg *models.PostgresConfig, log logger.Logger) (Store, error) {
	pool, err := NewPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if pool == nil {
		return nil, ErrFailedOpenDB
	}

	if err := RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return &store{pool: pool, logger: log}, nil
}

// NewWithPool wraps an existing pool without running migrations. Used by
// tools that manage schema separately.
func NewWithPool(pool *pgxpool.Pool, log logger.Logger) Store {
	return &store{pool: pool, logger: log}
}

func (s *store) Close() {
	s.pool.Close()
}

// sendBatch executes every queued command, retrying transient failures with
// exponential backoff.
func (s *store) sendBatch(ctx context.Context, batch *pgx.Batch, name string) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	var lastErr error

	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.execBatch(ctx, batch, name)
		if err == nil {
			return nil
		}

		lastErr = err

		sqlstate, transient := classifyPgError(err)
		if !transient {
			return err
		}

		delay := backoffDelay(attempt)

		s.logger.Warn().
			Str("operation", name).
			Str("sqlstate", sqlstate).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient database error, retrying batch")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (s *store) execBatch(ctx context.Context, batch *pgx.Batch, name string) (err error) {
	br := s.pool.SendBatch(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", name, closeErr)
		}
	}()

	// Read results for each queued command to properly detect errors.
	for i := 0; i < batch.Len(); i++ {
		if _, err = br.Exec(); err != nil {
			return fmt.Errorf("%s batch exec (command %d): %w", name, i, err)
		}
	}

	return nil
}

// classifyPgError reports the SQLSTATE of an error and whether it is a
// transient failure worth retrying.
func classifyPgError(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateDeadlockDetected, sqlstateSerializationFailed, sqlstateStatementTimeout:
			return pgErr.Code, true
		}

		return pgErr.Code, false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock detected"):
		return sqlstateDeadlockDetected, true
	case strings.Contains(msg, "could not serialize access"):
		return sqlstateSerializationFailed, true
	default:
		return "", false
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := baseBackoff * time.Duration(1<<(attempt-1))

	// Jitter breaks lockstep retries across workers.
	jitter := time.Duration(time.Now().UnixNano() % int64(baseBackoff))

	return backoff + jitter
}

// isForeignKeyViolation reports whether err is a Postgres FK violation.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateForeignKeyViolation
}
