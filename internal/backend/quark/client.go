package quark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"retriever/internal/services"
)

const maxResponseBytes = 8 << 20

func (a *Adapter) getJSON(ctx context.Context, op, rawURL string, timeout time.Duration, dest any) error {
	return a.doJSON(ctx, op, http.MethodGet, rawURL, nil, timeout, false, dest)
}

// postJSON also decodes 4xx bodies since the share service reports business
// errors (expired, missing, passcode) that way.
func (a *Adapter) postJSON(ctx context.Context, op, rawURL string, body any, dest any) error {
	return a.doJSON(ctx, op, http.MethodPost, rawURL, body, 0, true, dest)
}

func (a *Adapter) doJSON(ctx context.Context, op, method, rawURL string, body any, timeout time.Duration, acceptErrorBody bool, dest any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrInternal, Name, op, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return services.Wrap(services.ErrInternal, Name, op, "build request", err)
	}
	req.Header.Set("User-Agent", a.ua)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return err
		}
		return services.Wrap(services.ErrNetwork, Name, op, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return services.Wrap(services.ErrNetwork, Name, op, "read response", err)
	}
	if resp.StatusCode >= 400 {
		if acceptErrorBody && dest != nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && json.Unmarshal(data, dest) == nil {
			return nil
		}
		kind := services.ClassifyStatus(resp.StatusCode)
		return services.Wrap(services.Marker(kind), Name, op, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return services.Wrap(services.ErrInternal, Name, op, "decode response", err)
	}
	return nil
}
