// Package gemini is a minimal client for the generateContent endpoint.
// The credential travels as a query parameter; the envelope is treated as
// opaque JSON probed with gjson.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GenerationConfig carries the per-operation sampling settings.
type GenerationConfig struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client issues single-attempt generateContent calls. No retry, no
// backoff: the caller's quota accounting assumes every dispatch is
// deliberate.
type Client struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// NewClient creates a client for {baseURL}/models/{model}:generateContent.
// The timeout applies at the HTTP client level; the gateway itself imposes
// none.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// GenerateContent sends one prompt and returns the generated text.
// Transport failures, non-2xx statuses and empty candidates all surface
// as errors; nothing is retried.
func (c *Client) GenerateContent(ctx context.Context, key, prompt string, cfg GenerationConfig) (string, error) {
	body, err := buildRequestBody(prompt, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to build request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("upstream returned %d: %s", resp.StatusCode, msg)
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return "", fmt.Errorf("upstream response contained no text")
	}
	return text, nil
}

// Probe issues a tiny generation request to verify the credential and
// endpoint are reachable.
func (c *Client) Probe(ctx context.Context, key string) error {
	_, err := c.GenerateContent(ctx, key, "Test", GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 10,
	})
	return err
}

func buildRequestBody(prompt string, cfg GenerationConfig) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "contents.0.parts.0.text", prompt)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "generationConfig.temperature", cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "generationConfig.maxOutputTokens", cfg.MaxOutputTokens)
}
