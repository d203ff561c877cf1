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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

func TestHubFanout(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	first, cancelFirst := hub.Subscribe(4)
	defer cancelFirst()

	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	require.Equal(t, 2, hub.Subscribers())

	n := models.LogNotification{ID: "log-1", Level: models.LevelError, Message: "boom"}
	require.NoError(t, hub.Publish(context.Background(), n))

	assert.Equal(t, n, <-first)
	assert.Equal(t, n, <-second)
}

func TestHubSlowSubscriberSkipped(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	slow, cancel := hub.Subscribe(1)
	defer cancel()

	require.NoError(t, hub.Publish(context.Background(), models.LogNotification{ID: "log-1"}))
	require.NoError(t, hub.Publish(context.Background(), models.LogNotification{ID: "log-2"}))

	got := <-slow
	assert.Equal(t, "log-1", got.ID)

	select {
	case extra := <-slow:
		t.Fatalf("expected second notification to be skipped, got %s", extra.ID)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	ch, cancel := hub.Subscribe(4)

	cancel()
	cancel() // second call is a no-op

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers())

	require.NoError(t, hub.Publish(context.Background(), models.LogNotification{ID: "log-1"}))
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(logger.NewTestLogger())

	ch, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Close()

	_, open := <-ch
	assert.False(t, open)

	late, lateCancel := hub.Subscribe(4)
	defer lateCancel()

	_, open = <-late
	assert.False(t, open)

	require.NoError(t, hub.Publish(context.Background(), models.LogNotification{ID: "log-1"}))
}

func TestTailStreamDefaults(t *testing.T) {
	assert.Equal(t, defaultTailSubject, tailSubject(models.NATSConfig{}))
	assert.Equal(t, defaultTailStream, tailStream(models.NATSConfig{}))

	cfg := models.NATSConfig{Subject: "observability.logs", Stream: "OBS"}
	assert.Equal(t, "observability.logs", tailSubject(cfg))
	assert.Equal(t, "OBS", tailStream(cfg))
}
