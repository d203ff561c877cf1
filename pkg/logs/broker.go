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
	"sync"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

// Broker delivers live-tail notifications to whoever is watching. The drain
// loop publishes once per stored record; delivery is best-effort.
type Broker interface {
	Publish(ctx context.Context, n models.LogNotification) error
}

const defaultSubscriberBuffer = 64

// Hub is the in-process Broker. Each subscriber gets its own buffered
// channel; a subscriber that falls behind has notifications skipped rather
// than stalling the drain loop.
type Hub struct {
	logger logger.Logger

	mu     sync.Mutex
	subs   map[int]chan models.LogNotification
	nextID int
	closed bool
}

// NewHub returns an empty hub. Publishing with no subscribers is free.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger: log,
		subs:   make(map[int]chan models.LogNotification),
	}
}

// Subscribe registers a live-tail consumer and returns its channel together
// with a cancel function. Cancel closes the channel; calling it twice is
// safe. A closed hub returns an already-closed channel.
func (h *Hub) Subscribe(buffer int) (<-chan models.LogNotification, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan models.LogNotification)
		close(ch)

		return ch, func() {}
	}

	id := h.nextID
	h.nextID++

	ch := make(chan models.LogNotification, buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish fans the notification out to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, n models.LogNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.logger.Debug().
				Int("subscriber_id", id).
				Str("log_id", n.ID).
				Msg("Live-tail subscriber lagging, notification skipped")
		}
	}

	return nil
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close disconnects all subscribers. Later Publish calls are no-ops and
// later Subscribe calls receive closed channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
