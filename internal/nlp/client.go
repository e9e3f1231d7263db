// Package nlp is the HTTP client for the external language-model triage
// service. It only speaks the wire protocol; deciding what to do when the
// service is down or returns garbage is the caller's job.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vigia-health/platform/internal/shared/config"
	"github.com/vigia-health/platform/internal/shared/metrics"
	"github.com/vigia-health/platform/internal/triage"
)

// ErrDisabled is returned when the client was configured without an endpoint
var ErrDisabled = errors.New("nlp: triage service not configured")

// SchemaError marks a response that arrived but did not match the expected
// verdict schema. Callers treat it the same as a transport failure.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "nlp: invalid response: " + e.Reason
}

// Client calls the triage NLP service over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	enabled    bool
}

// NewClient creates an NLP triage client. The configured timeout is a hard
// ceiling on every classification call.
func NewClient(cfg config.TriageConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		enabled: cfg.Enabled && cfg.URL != "",
	}
}

// Classify sends the patient report to the NLP service and returns its
// verdict. Any transport error, non-200 status, or schema violation is
// returned as an error; the client never invents a verdict.
func (c *Client) Classify(ctx context.Context, req triage.Request) (*triage.Result, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	start := time.Now()
	result, err := c.classify(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordNLPRequest(status, time.Since(start))
	return result, err
}

func (c *Client) classify(ctx context.Context, req triage.Request) (*triage.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/triage", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nlp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nlp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("nlp: service returned status %d", resp.StatusCode)
	}

	var result triage.Result
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	if err := dec.Decode(&result); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	if err := result.Validate(); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	return &result, nil
}

// Health checks whether the NLP service is reachable
func (c *Client) Health(ctx context.Context) error {
	if !c.enabled {
		return ErrDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nlp: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nlp: health check returned status %d", resp.StatusCode)
	}
	return nil
}
