// Package gateways holds thin HTTP clients for external collaborators:
// the SMS gateway and the text-to-speech / QR service. Their failures are
// best-effort by contract and never fatal to callers.
package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSSender delivers one text message. Failures are logged by callers,
// never retried at this layer.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, text string) (bool, error)
}

// HTTPSMSGateway talks to the provider's REST endpoint.
type HTTPSMSGateway struct {
	baseURL string
	apiKey  string
	sender  string
	client  *http.Client
}

func NewHTTPSMSGateway(baseURL, apiKey, sender string) *HTTPSMSGateway {
	return &HTTPSMSGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type smsResponse struct {
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

func (g *HTTPSMSGateway) Send(ctx context.Context, phoneNumber, text string) (bool, error) {
	body, err := json.Marshal(smsRequest{To: phoneNumber, From: g.sender, Body: text})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("sms gateway response unreadable: %w", err)
	}
	if !out.Delivered && out.Error != "" {
		return false, fmt.Errorf("sms gateway rejected message: %s", out.Error)
	}
	return out.Delivered, nil
}
