package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Failure classes of a completion call
var (
	ErrRateLimited = errors.New("provider rate limited")
	ErrTimeout     = errors.New("provider timed out")
	ErrInvalidKey  = errors.New("provider rejected the API key")
	ErrProvider    = errors.New("provider error")
)

// Retryable reports whether err is a transient failure worth another attempt
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// classifyStatus maps a non-2xx response onto the error classes
func classifyStatus(provider string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ErrInvalidKey, provider, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned %d: %s", ErrRateLimited, provider, code, msg)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s returned %d", ErrTimeout, provider, code)
	case code == 529:
		// Anthropic's "overloaded" behaves like a rate limit
		return fmt.Errorf("%w: %s returned %d: %s", ErrRateLimited, provider, code, msg)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", ErrProvider, provider, code, msg)
	}
}

// classifyTransport maps a failed round trip onto the error classes
func classifyTransport(provider string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrProvider, provider, err)
}
