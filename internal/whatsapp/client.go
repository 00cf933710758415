// Package whatsapp talks to an Evolution API instance: sending text
// messages, fetching media referenced by webhook events, and parsing
// webhook payloads into bus messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an Evolution API HTTP client.
type Client struct {
	baseURL  string
	instance string
	apiKey   string
	http     *http.Client
}

// NewClient creates a client for one Evolution instance.
func NewClient(baseURL, instance, apiKey string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		instance: instance,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// SendText delivers one text chunk to a phone number.
func (c *Client) SendText(ctx context.Context, number, text string) error {
	payload := map[string]interface{}{
		"number": number,
		"text":   text,
	}
	var resp struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	err := c.post(ctx, "/message/sendText/"+c.instance, payload, &resp)
	if err != nil {
		return fmt.Errorf("send text to %s: %w", number, err)
	}
	return nil
}

// FetchMedia retrieves the binary content of a media message by its id.
// Evolution returns the payload base64-encoded together with its mimetype.
func (c *Client) FetchMedia(ctx context.Context, messageID string) ([]byte, string, error) {
	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"key": map[string]interface{}{"id": messageID},
		},
		"convertToMp4": false,
	}
	var resp struct {
		Base64   string `json:"base64"`
		Mimetype string `json:"mimetype"`
	}
	if err := c.post(ctx, "/chat/getBase64FromMediaMessage/"+c.instance, payload, &resp); err != nil {
		return nil, "", fmt.Errorf("fetch media %s: %w", messageID, err)
	}
	if resp.Base64 == "" {
		return nil, "", fmt.Errorf("fetch media %s: empty payload", messageID)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media %s: decode base64: %w", messageID, err)
	}
	return data, resp.Mimetype, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
