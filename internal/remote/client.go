// Package remote implements the HTTP client for the remote analysis service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditkit/webaudit/internal/audit"
)

// DefaultTimeout bounds each individual round trip to the service.
const DefaultTimeout = 30 * time.Second

// Config controls the analysis service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks JSON over HTTP to the analysis service. It implements
// audit.AnalysisService and is safe for concurrent use; the underlying
// transport is the shared, reusable connection pool acquired at
// orchestrator-open time and released by Close.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient validates the config and builds a Client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analysis service base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type sessionResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string          `json:"id"`
	Status audit.RunStatus `json:"status"`
}

type outputResponse struct {
	Text string `json:"text"`
}

// CreateSession creates a remote session bound to the task content.
func (c *Client) CreateSession(ctx context.Context, content string) (string, error) {
	var resp sessionResponse
	err := c.do(ctx, "create_session", http.MethodPost, "/v1/sessions",
		map[string]string{"content": content}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create session: response missing session id")
	}
	return resp.ID, nil
}

// SubmitContent submits the content as the unit to analyze.
func (c *Client) SubmitContent(ctx context.Context, sessionID, content string) error {
	return c.do(ctx, "submit_content", http.MethodPost,
		fmt.Sprintf("/v1/sessions/%s/content", sessionID),
		map[string]string{"content": content}, nil)
}

// StartRun starts an analysis run for the session.
func (c *Client) StartRun(ctx context.Context, sessionID string) (string, error) {
	var resp runResponse
	err := c.do(ctx, "start_run", http.MethodPost,
		fmt.Sprintf("/v1/sessions/%s/runs", sessionID), struct{}{}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("start run: response missing run id")
	}
	return resp.ID, nil
}

// PollRun queries the current status of a run.
func (c *Client) PollRun(ctx context.Context, sessionID, runID string) (audit.RunStatus, error) {
	var resp runResponse
	err := c.do(ctx, "poll_run", http.MethodGet,
		fmt.Sprintf("/v1/sessions/%s/runs/%s", sessionID, runID), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// FetchOutput retrieves the produced analysis text.
func (c *Client) FetchOutput(ctx context.Context, sessionID string) (string, error) {
	var resp outputResponse
	err := c.do(ctx, "fetch_output", http.MethodGet,
		fmt.Sprintf("/v1/sessions/%s/output", sessionID), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CancelRun asks the service to cancel an outstanding run. Callers treat it
// as best-effort and ignore the error.
func (c *Client) CancelRun(ctx context.Context, sessionID, runID string) error {
	return c.do(ctx, "cancel_run", http.MethodPost,
		fmt.Sprintf("/v1/sessions/%s/runs/%s/cancel", sessionID, runID), struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	TotalRequests.WithLabelValues(op).Inc()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			TotalRequestErrors.WithLabelValues(op).Inc()
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		TotalRequestErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		TotalRequestErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		TotalRequestErrors.WithLabelValues(op).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			TotalRequestErrors.WithLabelValues(op).Inc()
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
