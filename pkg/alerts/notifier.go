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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/carelane/pulse/pkg/logger"
	"github.com/carelane/pulse/pkg/models"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultSMTPPort       = 587

	signatureHeader = "X-Pulse-Signature"
)

var errWebhookStatus = errors.New("webhook returned non-success status")

// Notifier delivers a fired alert instance to one channel target.
type Notifier interface {
	Notify(ctx context.Context, channel models.NotificationChannel, instance *models.AlertInstance) error
}

// WebhookNotifier posts the alert instance as a JSON document. When the
// channel carries a secret the payload is signed with HMAC-SHA256 and the
// hex digest is sent in the X-Pulse-Signature header so receivers can
// verify origin.
type WebhookNotifier struct {
	client *http.Client
	logger logger.Logger
}

// NewWebhookNotifier returns a notifier with a bounded request timeout.
func NewWebhookNotifier(log logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: log,
	}
}

// Notify posts the instance to the channel target.
func (n *WebhookNotifier) Notify(ctx context.Context, channel models.NotificationChannel, instance *models.AlertInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to serialize alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.Target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if channel.Secret != "" {
		req.Header.Set(signatureHeader, signPayload(channel.Secret, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errWebhookStatus, resp.StatusCode)
	}

	return nil
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// EmailNotifier sends plain-text alert mail over SMTP. Authentication is
// attempted only when a username is configured.
type EmailNotifier struct {
	cfg    models.SMTPConfig
	logger logger.Logger

	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier returns a notifier for the given SMTP relay.
func NewEmailNotifier(cfg models.SMTPConfig, log logger.Logger) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}

	return &EmailNotifier{
		cfg:    cfg,
		logger: log,
		sendFn: smtp.SendMail,
	}
}

// Notify mails the instance to the channel target. net/smtp carries no
// context; cancellation is bounded by the engine's dispatch timeout only
// insofar as the caller gives up waiting.
func (n *EmailNotifier) Notify(_ context.Context, channel models.NotificationChannel, instance *models.AlertInstance) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := buildAlertMail(n.cfg.From, channel.Target, instance)

	if err := n.sendFn(addr, auth, n.cfg.From, []string{channel.Target}, msg); err != nil {
		return fmt.Errorf("failed to send alert mail: %w", err)
	}

	return nil
}

func buildAlertMail(from, to string, instance *models.AlertInstance) []byte {
	var b strings.Builder

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(instance.Severity)), instance.RuleName)

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", instance.Message)
	fmt.Fprintf(&b, "Rule: %s\r\n", instance.RuleName)
	fmt.Fprintf(&b, "Observed: %g (threshold %s %g)\r\n", instance.Value, instance.Operator, instance.Threshold)
	fmt.Fprintf(&b, "Fired at: %s\r\n", instance.FiredAt.UTC().Format(time.RFC3339))

	return []byte(b.String())
}
