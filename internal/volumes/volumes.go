// Package volumes produces the operation volumes of a flight plan: the 4D
// envelopes the Flight Authorization Service requires before it accepts a
// submission.
//
// Two generators are provided. HTTPGenerator delegates to the external
// volume service; LocalGenerator derives volumes from the plan's trajectory
// CSV without any network access.
package volumes

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

	"github.com/fpw-project/fpw/internal/uplan"
)

// DefaultTimeout bounds a single call to the volume service.
const DefaultTimeout = 60 * time.Second

// ErrNoTrajectory is returned when the plan has no trajectory to derive
// volumes from.
var ErrNoTrajectory = errors.New("plan has no trajectory")

// Generated is the result of a volume generation run.
type Generated struct {
	Document         *uplan.Document `json:"authorizationDocument"`
	VolumesGenerated int             `json:"volumesGenerated"`
}

// Generator creates operation volumes for a plan.
type Generator interface {
	Generate(ctx context.Context, planID string) (Generated, error)
}

// HTTPGenerator calls the external volume service.
type HTTPGenerator struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var _ Generator = (*HTTPGenerator)(nil)

// NewHTTPGenerator creates a generator for the service at baseURL.
func NewHTTPGenerator(baseURL, token string) *HTTPGenerator {
	return &HTTPGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Generate asks the service to build volumes for planID. Any non-2xx
// response is an error; the service is not retried.
func (g *HTTPGenerator) Generate(ctx context.Context, planID string) (Generated, error) {
	endpoint := fmt.Sprintf("%s/api/plans/%s/volumes", g.BaseURL, url.PathEscape(planID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Generated{}, fmt.Errorf("failed to create request: %w", err)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return Generated{}, fmt.Errorf("volume service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Generated{}, fmt.Errorf("failed to read volume service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Generated{}, fmt.Errorf("volume service error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}

	var out Generated
	if err := json.Unmarshal(body, &out); err != nil {
		return Generated{}, fmt.Errorf("failed to parse volume service response: %w", err)
	}
	if out.Document == nil {
		return Generated{}, fmt.Errorf("volume service returned no document")
	}
	if out.VolumesGenerated == 0 {
		out.VolumesGenerated = len(out.Document.OperationVolumes)
	}
	return out, nil
}
