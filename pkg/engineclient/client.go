// Package engineclient talks to the job engine's HTTP API: job creation,
// cancellation, path deletion and version discovery.
package engineclient

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

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fileops/pkg/job"
)

const maxErrorBody = 64 << 10

// Client is an HTTP client for one engine.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryConfig
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryConfig sets the retry policy for cancel, delete and version calls.
// Job creation is never retried.
func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the engine at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryConfig(),
		logger:  log.With().Str("component", "engineclient").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startRequest struct {
	Kind   job.Kind       `json:"kind"`
	Params map[string]any `json:"params"`
}

type startResponse struct {
	JobID string `json:"jobId"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// StartJob asks the engine to create a job and returns its id. A refusal
// is returned as a *StatusError carrying the engine's reason.
func (c *Client) StartJob(ctx context.Context, kind job.Kind, params map[string]any) (string, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", startRequest{Kind: kind, Params: params}, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("engine accepted %s job without an id", kind)
	}
	c.logger.Debug().Str("job_id", resp.JobID).Str("kind", string(kind)).Msg("Engine created job")
	return resp.JobID, nil
}

// CancelJob asks the engine to cancel a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	path := "/api/v1/jobs/" + url.PathEscape(jobID) + "/cancel"
	return withRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, nil, nil)
	})
}

// DeletePath asks the engine to delete a file or directory tree.
func (c *Client) DeletePath(ctx context.Context, path string) error {
	endpoint := "/api/v1/fs?path=" + url.QueryEscape(path)
	return withRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	})
}

// Version returns the engine version.
func (c *Client) Version(ctx context.Context) (*semver.Version, error) {
	var resp versionResponse
	err := withRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/api/v1/version", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(resp.Version)
	if err != nil {
		return nil, fmt.Errorf("parse engine version %q: %w", resp.Version, err)
	}
	return v, nil
}

// CheckCompatibility verifies the engine version against constraint, for
// example ">= 1.4, < 2". An empty constraint accepts any version.
func (c *Client) CheckCompatibility(ctx context.Context, constraint string) (*semver.Version, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(constraint) == "" {
		return v, nil
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return v, fmt.Errorf("parse engine.min_version %q: %w", constraint, err)
	}
	if ok, reasons := cons.Validate(v); !ok {
		msgs := make([]string, 0, len(reasons))
		for _, r := range reasons {
			msgs = append(msgs, r.Error())
		}
		return v, WithErrorCode(
			fmt.Errorf("%w: engine %s: %s", ErrIncompatible, v, strings.Join(msgs, "; ")),
			ErrorCodeIncompatible,
		)
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorResponse
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		statusErr.Code = body.Code
		statusErr.Message = body.Message
	}
	if statusErr.Message == "" {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	if statusErr.Message == "" {
		statusErr.Message = http.StatusText(resp.StatusCode)
	}
	return statusErr
}
