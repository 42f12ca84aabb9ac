package geoawareness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

// CheckResult is the geoawareness service's answer.
type CheckResult struct {
	LiveChannelRef string `json:"liveChannelRef"`
}

// Checker runs a geoawareness check of a plan against an airspace.
type Checker interface {
	Check(ctx context.Context, planID, airspace string) (CheckResult, error)
}

// Client provides methods to interact with the geoawareness REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var _ Checker = (*Client)(nil)

// NewClient creates a new geoawareness client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Check asks the service to evaluate planID in airspace.
func (c *Client) Check(ctx context.Context, planID, airspace string) (CheckResult, error) {
	payload, err := json.Marshal(map[string]string{"airspace": airspace})
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to marshal request body: %w", err)
	}
	endpoint := fmt.Sprintf("%s/api/plans/%s/geoawareness", c.BaseURL, url.PathEscape(planID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return CheckResult{}, fmt.Errorf("geoawareness request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to read geoawareness response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CheckResult{}, fmt.Errorf("geoawareness error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}

	var out CheckResult
	if err := json.Unmarshal(body, &out); err != nil {
		return CheckResult{}, fmt.Errorf("failed to parse geoawareness response: %w", err)
	}
	if out.LiveChannelRef == "" {
		return CheckResult{}, fmt.Errorf("geoawareness response has no live channel")
	}
	return out, nil
}
