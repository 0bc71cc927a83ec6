// Package ingestion calls the external ingestion service that moves provider
// data into tenant destination tables. One call covers one time window for
// one connector; the service itself is upsert-based, so repeating a window is
// safe and the callers here rely on that.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 120 * time.Second
	maxErrorBodySize = 64 << 10
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates an ingestion client. It validates that baseURL and token are provided.
func New(baseURL, token string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)

	if base == "" {
		return nil, errors.New("ingestion base URL is required")
	}
	if token == "" {
		return nil, errors.New("ingestion token is required")
	}

	return &Client{
		BaseURL: base,
		Token:   token,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

type historicalRequest struct {
	ConnectorID string `json:"connectorId"`
	Duration    int    `json:"duration"`
}

type futureRequest struct {
	ConnectorID    string `json:"connectorId"`
	ResyncDuration int    `json:"resyncDuration"`
}

// TriggerHistorical asks the service to backfill the given connector over the
// trailing window. Durations are expressed in whole days on the wire.
func (c *Client) TriggerHistorical(ctx context.Context, providerPath, connectorID string, window time.Duration) error {
	body := historicalRequest{ConnectorID: connectorID, Duration: wholeDays(window)}
	return c.post(ctx, providerPath, "historical", body)
}

// TriggerFuture asks the service to resync the given connector going forward.
func (c *Client) TriggerFuture(ctx context.Context, providerPath, connectorID string, window time.Duration) error {
	body := futureRequest{ConnectorID: connectorID, ResyncDuration: wholeDays(window)}
	return c.post(ctx, providerPath, "future", body)
}

func (c *Client) post(ctx context.Context, providerPath, endpoint string, body any) error {
	if err := c.ensureClient(); err != nil {
		return err
	}
	providerPath = strings.Trim(strings.TrimSpace(providerPath), "/")
	if providerPath == "" {
		return errors.New("ingestion provider path is required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	target := fmt.Sprintf("%s/%s/%s", c.BaseURL, url.PathEscape(providerPath), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ingestion %s/%s: %w", providerPath, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return fmt.Errorf("ingestion %s/%s: status %d: %s",
		providerPath, endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
}

func (c *Client) ensureClient() error {
	if c.BaseURL == "" {
		return errors.New("ingestion base URL is required")
	}
	if c.Token == "" {
		return errors.New("ingestion token is required")
	}
	if c.HTTP == nil {
		return errors.New("ingestion http client is not configured")
	}
	return nil
}

func wholeDays(d time.Duration) int {
	days := int((d + 24*time.Hour - 1) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return days
}
