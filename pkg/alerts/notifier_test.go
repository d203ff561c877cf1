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

package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

var errRelayDown = errors.New("relay down")

func sampleInstance() *models.AlertInstance {
	return &models.AlertInstance{
		ID:        "ai-1",
		RuleID:    "r-1",
		RuleName:  "db down",
		Severity:  models.SeverityCritical,
		Value:     17,
		Threshold: 10,
		Operator:  models.OpGreater,
		Message:   "db down: 17 > 10",
		Status:    models.AlertFiring,
		FiredAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierPostsSignedPayload(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader http.Header
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		gotBody = body
		gotHeader = r.Header.Clone()

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(logger.NewTestLogger())

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelWebhook,
		Target: server.URL,
		Secret: "s3cret",
	}, sampleInstance())
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, signPayload("s3cret", gotBody), gotHeader.Get("X-Pulse-Signature"))

	var delivered models.AlertInstance

	require.NoError(t, json.Unmarshal(gotBody, &delivered))
	assert.Equal(t, "ai-1", delivered.ID)
	assert.Equal(t, "db down: 17 > 10", delivered.Message)
	assert.Equal(t, models.AlertFiring, delivered.Status)
}

func TestWebhookNotifierOmitsSignatureWithoutSecret(t *testing.T) {
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(logger.NewTestLogger())

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelWebhook,
		Target: server.URL,
	}, sampleInstance())
	require.NoError(t, err)

	assert.Empty(t, gotHeader.Get("X-Pulse-Signature"))
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(logger.NewTestLogger())

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelWebhook,
		Target: server.URL,
	}, sampleInstance())

	require.ErrorIs(t, err, errWebhookStatus)
	assert.ErrorContains(t, err, "500")
}

func TestWebhookNotifierReportsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	target := server.URL

	server.Close()

	n := NewWebhookNotifier(logger.NewTestLogger())

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelWebhook,
		Target: target,
	}, sampleInstance())

	require.Error(t, err)
	assert.ErrorContains(t, err, "webhook request failed")
}

type sendCapture struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  []byte
	err  error
}

func (s *sendCapture) send(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	s.addr = addr
	s.auth = a
	s.from = from
	s.to = to
	s.msg = msg

	return s.err
}

func TestEmailNotifierSendsRenderedMail(t *testing.T) {
	capture := &sendCapture{}

	n := NewEmailNotifier(models.SMTPConfig{
		Host:     "mail.example.com",
		Username: "pulse",
		Password: "pw",
		From:     "pulse@example.com",
	}, logger.NewTestLogger())
	n.sendFn = capture.send

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelEmail,
		Target: "oncall@example.com",
	}, sampleInstance())
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", capture.addr)
	assert.NotNil(t, capture.auth)
	assert.Equal(t, "pulse@example.com", capture.from)
	assert.Equal(t, []string{"oncall@example.com"}, capture.to)

	msg := string(capture.msg)
	assert.Contains(t, msg, "Subject: [CRITICAL] db down\r\n")
	assert.Contains(t, msg, "To: oncall@example.com\r\n")
	assert.Contains(t, msg, "db down: 17 > 10")
	assert.Contains(t, msg, "Observed: 17 (threshold > 10)")
	assert.Contains(t, msg, "Fired at: 2025-06-01T12:00:00Z")
	assert.True(t, strings.Contains(msg, "\r\n\r\n"), "headers and body must be separated by a blank line")
}

func TestEmailNotifierSkipsAuthWithoutUsername(t *testing.T) {
	capture := &sendCapture{}

	n := NewEmailNotifier(models.SMTPConfig{
		Host: "mail.example.com",
		Port: 2525,
		From: "pulse@example.com",
	}, logger.NewTestLogger())
	n.sendFn = capture.send

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelEmail,
		Target: "oncall@example.com",
	}, sampleInstance())
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:2525", capture.addr)
	assert.Nil(t, capture.auth)
}

func TestEmailNotifierWrapsSendFailure(t *testing.T) {
	capture := &sendCapture{err: errRelayDown}

	n := NewEmailNotifier(models.SMTPConfig{
		Host: "mail.example.com",
		From: "pulse@example.com",
	}, logger.NewTestLogger())
	n.sendFn = capture.send

	err := n.Notify(context.Background(), models.NotificationChannel{
		Type:   models.ChannelEmail,
		Target: "oncall@example.com",
	}, sampleInstance())

	require.ErrorIs(t, err, errRelayDown)
	assert.ErrorContains(t, err, "failed to send alert mail")
}
