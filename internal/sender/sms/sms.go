// Package sms provides SMS notification sending through an HTTP gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/payload"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/strategy"
)

// Message is the JSON body posted to the gateway.
type Message struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Sender implements SMS sending via HTTP POST to a gateway.
type Sender struct {
	gatewayURL string
	httpClient *http.Client
}

// NewSender creates a new SMS sender for the given gateway URL.
func NewSender(gatewayURL string) *Sender {
	return &Sender{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns the endpoint type this sender handles.
func (s *Sender) Type() string {
	return strategy.TypeSMS
}

// Send posts a short text for the notification to the gateway.
// The endpointValue should be a phone number.
func (s *Sender) Send(ctx context.Context, endpointValue string, n *events.Notification) error {
	phone := strings.TrimSpace(endpointValue)
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !isValidURL(s.gatewayURL) {
		return fmt.Errorf("invalid SMS gateway URL: %q (must be a valid HTTP/HTTPS URL)", s.gatewayURL)
	}

	jsonData, err := json.Marshal(Message{To: phone, Message: payload.BuildSMSText(n)})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("SMS gateway returned error status",
			"status_code", resp.StatusCode,
			"alert_id", n.AlertID,
		)
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode)
	}

	slog.Debug("SMS notification sent",
		"alert_id", n.AlertID,
		"subscription_id", n.SubscriptionID,
	)
	return nil
}

func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
