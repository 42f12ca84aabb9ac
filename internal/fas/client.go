// Package fas talks to the Flight Authorization Service.
//
// Submission is synchronous only as far as acceptance: FAS answers a
// submission with an HTTP status, and delivers its approve/deny decision
// later through the callback server in this package.
package fas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fpw-project/fpw/internal/uplan"
)

const (
	DefaultTimeout = 30 * time.Second

	// DefaultTokenTTL is how long FAS may take to deliver a decision.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Outcome is the HTTP result of a submission. Transport failures are
// reported as errors instead.
type Outcome struct {
	StatusCode int
	Message    string
}

// Accepted reports a 2xx response.
func (o Outcome) Accepted() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Unavailable reports a 503, which FAS uses while it is down for
// maintenance or overloaded.
func (o Outcome) Unavailable() bool {
	return o.StatusCode == http.StatusServiceUnavailable
}

// Submitter is implemented by Client.
type Submitter interface {
	Submit(ctx context.Context, planID string, doc *uplan.Document) (Outcome, error)
}

// Client provides methods to interact with the FAS REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// CallbackURL, when set, is sent with each submission together with a
	// signed token so FAS can post its decision back.
	CallbackURL    string
	CallbackSecret []byte
	TokenTTL       time.Duration
}

var _ Submitter = (*Client)(nil)

// NewClient creates a new FAS client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		TokenTTL: DefaultTokenTTL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithTimeout returns a copy of c using timeout for each request.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	cp.HTTPClient = &http.Client{Timeout: timeout, Transport: c.HTTPClient.Transport}
	return &cp
}

// SubmitRequest is the JSON body posted to FAS.
type SubmitRequest struct {
	PlanID        string          `json:"plan_id"`
	UPlan         *uplan.Document `json:"uplan"`
	CallbackURL   string          `json:"callback_url,omitempty"`
	CallbackToken string          `json:"callback_token,omitempty"`
}

// Submit posts doc for planID. It makes exactly one attempt; retrying is
// left to the operator.
func (c *Client) Submit(ctx context.Context, planID string, doc *uplan.Document) (Outcome, error) {
	body := SubmitRequest{PlanID: planID, UPlan: doc}
	if c.CallbackURL != "" && len(c.CallbackSecret) > 0 {
		ttl := c.TokenTTL
		if ttl <= 0 {
			ttl = DefaultTokenTTL
		}
		token, err := GenerateToken(planID, time.Now().Add(ttl), c.CallbackSecret)
		if err != nil {
			return Outcome{}, err
		}
		body.CallbackURL = c.CallbackURL
		body.CallbackToken = token
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/uplans", bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("FAS request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read FAS response: %w", err)
	}
	return Outcome{StatusCode: resp.StatusCode, Message: responseMessage(respBody)}, nil
}

// responseMessage pulls a human-readable message out of a FAS response,
// falling back to the raw body.
func responseMessage(body []byte) string {
	var fields struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, m := range []string{fields.Message, fields.Detail, fields.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
