// Package suggest asks an external service for checklist lines.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxItems = 20

// Client implements service.Suggester over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.Named("suggest"),
	}
}

type request struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type response struct {
	Items []string `json:"items"`
	Error string   `json:"error,omitempty"`
}

// SuggestChecklist posts the ticket text and returns the suggested lines.
// Errors are returned as is; callers decide how to surface them.
func (c *Client) SuggestChecklist(ctx context.Context, title, description string) ([]string, error) {
	body, err := json.Marshal(request{Title: title, Description: description})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/suggest/checklist", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggestion service unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out response
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return nil, errors.New(out.Error)
		}
		return nil, fmt.Errorf("suggestion service returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Items) > maxItems {
		c.log.Debug("truncating suggestions", zap.Int("got", len(out.Items)))
		out.Items = out.Items[:maxItems]
	}
	return out.Items, nil
}
