package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"docintake/common"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// HTTPConfig configures the extraction service client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// HTTPProcessor calls the external extraction service over HTTP.
type HTTPProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	schema  *jsonschema.Schema
	log     *common.Logger
}

// NewHTTPProcessor builds a client for cfg.BaseURL.
func NewHTTPProcessor(cfg HTTPConfig, log *common.Logger) (*HTTPProcessor, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("processor base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = common.NopLogger()
	}
	schema, err := compileSchema(resultSchema)
	if err != nil {
		return nil, err
	}
	return &HTTPProcessor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		schema:  schema,
		log:     log,
	}, nil
}

// Process sends req to {baseURL}/process and decodes the validated response.
func (p *HTTPProcessor) Process(ctx context.Context, req Request) (*Result, error) {
	req.ReportProgress(10)

	raw, status, err := p.sendJSON(ctx, p.baseURL+"/process", req)
	if err != nil {
		reason := "extraction service unavailable"
		if status != 0 {
			reason = fmt.Sprintf("extraction service returned %d: %s", status, snippet(raw))
		}
		return nil, &ProcessingError{DocumentRef: req.Ref(), Reason: reason, Err: err}
	}
	req.ReportProgress(80)

	if err := validateResult(p.schema, raw); err != nil {
		return nil, &ProcessingError{DocumentRef: req.Ref(), Reason: "invalid extraction response", Err: err}
	}
	res, err := decodeResult(raw)
	if err != nil {
		return nil, &ProcessingError{DocumentRef: req.Ref(), Reason: "invalid extraction response", Err: err}
	}
	if res.TransactionCount == 0 {
		res.TransactionCount = len(res.Transactions)
	}
	req.ReportProgress(90)
	return &res, nil
}

// Ping checks {baseURL}/health.
func (p *HTTPProcessor) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("processor health returned %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProcessor) sendJSON(ctx context.Context, url string, body any) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", reqID)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.log.Debug("processor.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Error("processor.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.log.Warn("processor.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	p.log.Info("processor.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// decodeResult accepts a fractional processingTime and rounds it to whole
// milliseconds.
func decodeResult(raw []byte) (Result, error) {
	var wire struct {
		Result
		ProcessingTime float64 `json:"processingTime"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, err
	}
	res := wire.Result
	res.ProcessingTimeMs = int64(math.Round(wire.ProcessingTime))
	return res, nil
}
