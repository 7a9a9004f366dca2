package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"retriever/internal/feed"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

// ErrDaemonUnavailable marks requests that never reached the daemon.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

const defaultClientTimeout = 60 * time.Second

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for bind, which may be host:port or a URL.
func NewClient(bind string, opts ...ClientOption) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{base: base, http: &http.Client{Timeout: defaultClientTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string { return c.base.String() }

// JobQuery selects jobs for Jobs.
type JobQuery struct {
	Filter  string
	States  []string
	Backend string
	Kind    string
}

// Submit enqueues a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job fetches a single job.
func (c *Client) Job(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Jobs lists jobs.
func (c *Client) Jobs(ctx context.Context, q JobQuery) ([]*jobs.Job, error) {
	values := url.Values{}
	if strings.TrimSpace(q.Filter) != "" {
		values.Set("filter", q.Filter)
	}
	for _, state := range q.States {
		if strings.TrimSpace(state) != "" {
			values.Add("state", state)
		}
	}
	if strings.TrimSpace(q.Backend) != "" {
		values.Set("backend", q.Backend)
	}
	if strings.TrimSpace(q.Kind) != "" {
		values.Set("kind", q.Kind)
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry requeues a failed job.
func (c *Client) Retry(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Purge deletes a terminal job.
func (c *Client) Purge(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, nil)
}

// PurgeFinished deletes terminal jobs last updated more than age ago.
func (c *Client) PurgeFinished(ctx context.Context, age time.Duration) (int64, error) {
	var resp PurgeResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/purge", nil, PurgeRequest{OlderThan: age.String()}, &resp); err != nil {
		return 0, err
	}
	return resp.Purged, nil
}

// Validate checks candidates synchronously.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodPost, "/api/validate", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Overview fetches the dashboard summary.
func (c *Client) Overview(ctx context.Context) (*feed.Overview, error) {
	var ov feed.Overview
	if err := c.do(ctx, http.MethodGet, "/api/overview", nil, nil, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// Backends lists registered backends.
func (c *Client) Backends(ctx context.Context) ([]feed.BackendStatus, error) {
	var resp BackendsResponse
	if err := c.do(ctx, http.MethodGet, "/api/backends", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Backends, nil
}

// Status fetches daemon diagnostics.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Wait polls a job until it is terminal or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(*jobs.Job)) (*jobs.Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.WithHint(
			fmt.Errorf("%w at %s: %w", ErrDaemonUnavailable, c.base.Host, services.Wrap(services.ErrNetwork, "", "api", "request failed", err)),
			"start the daemon with `retriever daemon`",
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &apiErr.Payload); err != nil || apiErr.Payload.Error == "" {
		apiErr.Payload = ErrorResponse{
			Error:   string(services.ClassifyStatus(resp.StatusCode)),
			Message: strings.TrimSpace(string(raw)),
		}
	}
	return services.WithHint(apiErr, apiErr.Payload.Hint)
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDaemonUnavailable) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
