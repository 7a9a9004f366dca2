package services

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

var (
	quotaTokens = []string{
		"429",
		"rate limit",
		"too many requests",
		"quota",
		"limit reached",
		"limit exceeded",
	}
	authTokens = []string{
		"401",
		"403",
		"unauthorized",
		"forbidden",
		"expired",
		"login",
		"credential",
		"password required",
	}
	notFoundTokens = []string{
		"404",
		"not found",
		"no such",
		"does not exist",
	}
	networkTokens = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"broken pipe",
		"no route to host",
		"temporarily unavailable",
		"502",
		"503",
		"504",
		"eof",
	}
)

// Classify translates an untagged error into the taxonomy. Context deadlines
// and transport failures are network errors; everything else is matched on
// well-known message tokens and falls back to internal.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if kind := ClassifyMessage(err.Error()); kind != "" {
		return kind
	}
	return KindInternal
}

// ClassifyMessage matches free-form tool or HTTP output against the taxonomy
// tokens. It returns an empty kind when nothing matches.
func ClassifyMessage(message string) ErrorKind {
	lower := strings.ToLower(message)
	if lower == "" {
		return ""
	}
	switch {
	case containsAny(lower, quotaTokens):
		return KindQuota
	case containsAny(lower, authTokens):
		return KindAuth
	case containsAny(lower, notFoundTokens):
		return KindNotFound
	case containsAny(lower, networkTokens):
		return KindNetwork
	default:
		return ""
	}
}

// ClassifyStatus maps an HTTP status code to the taxonomy.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindQuota
	case code == 401 || code == 403:
		return KindAuth
	case code == 404 || code == 410:
		return KindNotFound
	case code == 408 || code >= 500:
		return KindNetwork
	case code >= 400:
		return KindInternal
	default:
		return ""
	}
}

func containsAny(value string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(value, token) {
			return true
		}
	}
	return false
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
