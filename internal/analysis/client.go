// Package analysis delegates free-text document interpretation to a
// remote specialist service. The orchestrating oracle stays small; heavy
// narrative analysis runs elsewhere.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the specialist service cannot be
// reached. Callers treat it as a recoverable tool failure, never as a
// session-fatal error.
var ErrUnavailable = errors.New("analysis service unavailable")

// Default configuration values.
const (
	DefaultTimeout = 2 * time.Minute
)

// Config holds the specialist service configuration.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client calls the specialist analysis service over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client. An empty endpoint yields a disabled client
// whose calls fail with ErrUnavailable.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

type analyzeRequest struct {
	Content      string `json:"content"`
	AnalysisType string `json:"analysis_type"`
}

type analyzeResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// AnalyzeDocument sends document content to the specialist and returns
// its interpretation. analysisType names the lens: "summary",
// "findings", "medication_review".
func (c *Client) AnalyzeDocument(ctx context.Context, content, analysisType string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	body, err := json.Marshal(analyzeRequest{Content: content, AnalysisType: analysisType})
	if err != nil {
		return "", fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, data)
	}

	var out analyzeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode analysis response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("analysis service error: %s", out.Error)
	}
	return out.Result, nil
}
