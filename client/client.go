// Package client is a thin HTTP client for the docintake API.
package client

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

	"docintake/jobs"
	"docintake/types"
)

// Client represents the docintake API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("API returned %d: %s", e.StatusCode, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("API returned %d: %s (%s)", e.StatusCode, e.Message, strings.Join(parts, "; "))
}

// JobStatus is the GET /status/:jobId reply.
type JobStatus struct {
	types.Job
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Submitted struct {
	JobID   string         `json:"jobId"`
	State   types.JobState `json:"state"`
	Message string         `json:"message"`
}

type Health struct {
	Status string `json:"status"`
	Checks map[string]struct {
		Status         string `json:"status"`
		ResponseTimeMs int64  `json:"responseTimeMs"`
		Error          string `json:"error,omitempty"`
	} `json:"checks"`
}

// CleanResult reports how many finished jobs were dropped.
type CleanResult struct {
	Removed      int `json:"removed"`
	RemovedLocal int `json:"removedLocal"`
}

func (c *Client) SubmitJob(ctx context.Context, req types.JobRequest) (*Submitted, error) {
	var out Submitted
	if err := c.doJSONRequest(ctx, http.MethodPost, "/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JobStatus(ctx context.Context, id string) (*JobStatus, error) {
	var out JobStatus
	if err := c.doJSONRequest(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) QueueStats(ctx context.Context) (*jobs.QueueStats, error) {
	var out struct {
		Stats jobs.QueueStats `json:"stats"`
	}
	if err := c.doJSONRequest(ctx, http.MethodGet, "/queue/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

func (c *Client) PauseQueue(ctx context.Context) error {
	return c.doJSONRequest(ctx, http.MethodPost, "/queue/pause", nil, nil)
}

func (c *Client) ResumeQueue(ctx context.Context) error {
	return c.doJSONRequest(ctx, http.MethodPost, "/queue/resume", nil, nil)
}

func (c *Client) CleanQueue(ctx context.Context, olderThan time.Duration) (*CleanResult, error) {
	var out CleanResult
	path := "/queue/clean?olderThan=" + url.QueryEscape(olderThan.String())
	if err := c.doJSONRequest(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the health report. An unhealthy (503) report is returned
// together with an *APIError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	err := c.doJSONRequest(ctx, http.MethodGet, "/healthz", nil, &out)
	if err != nil && out.Status == "" {
		return nil, err
	}
	return &out, err
}

// doJSONRequest performs a JSON request with the given method, path, payload, and result.
// If result is nil, the response body is not decoded. On a 503 the body is
// still decoded into result before the *APIError is returned.
func (c *Client) doJSONRequest(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Message string       `json:"message"`
			Fields  []FieldError `json:"fields"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			apiErr.Message, apiErr.Fields = envelope.Message, envelope.Fields
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if resp.StatusCode == http.StatusServiceUnavailable && result != nil {
			_ = json.Unmarshal(raw, result)
		}
		return apiErr
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
