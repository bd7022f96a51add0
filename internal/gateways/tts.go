package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SpeechClient synthesizes audio from text and encodes URLs as QR images.
// Invoked only from the voice channel path; failures are non-fatal to
// notification dispatch.
type SpeechClient interface {
	Synthesize(ctx context.Context, text string) (assetURL string, err error)
	EncodeAsQR(ctx context.Context, url string) (imageURL string, err error)
}

// HTTPSpeechClient talks to the speech/QR service's REST endpoints.
type HTTPSpeechClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSpeechClient(baseURL, apiKey string) *HTTPSpeechClient {
	return &HTTPSpeechClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPSpeechClient) Synthesize(ctx context.Context, text string) (string, error) {
	var out struct {
		AssetURL string `json:"asset_url"`
	}
	if err := c.post(ctx, "/v1/synthesize", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.AssetURL, nil
}

func (c *HTTPSpeechClient) EncodeAsQR(ctx context.Context, url string) (string, error) {
	var out struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.post(ctx, "/v1/qr", map[string]string{"url": url}, &out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

func (c *HTTPSpeechClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("speech service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
