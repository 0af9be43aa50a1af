package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrBackend is wrapped by every backend failure.
	ErrBackend = errors.New("backend error")

	ErrRateLimit      = fmt.Errorf("%w: rate limited", ErrBackend)
	ErrProviderDown   = fmt.Errorf("%w: provider unavailable", ErrBackend)
	ErrEmptyResponse  = fmt.Errorf("%w: empty response", ErrBackend)
	ErrNotConfigured  = errors.New("backend not configured")
	ErrUnknownBackend = errors.New("unknown backend")
)

// MapStatus converts a non-2xx HTTP status into a sentinel-wrapped error.
func MapStatus(backend string, status int, msg string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %s", backend, ErrRateLimit, msg)
	case status >= 500:
		return fmt.Errorf("%s: %w: HTTP %d: %s", backend, ErrProviderDown, status, msg)
	default:
		return fmt.Errorf("%s: %w: HTTP %d: %s", backend, ErrBackend, status, msg)
	}
}

// MapConnectionError wraps transport failures. Context errors pass through.
func MapConnectionError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrBackend) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", backend, ErrProviderDown, err)
	}
	return fmt.Errorf("%s: %w: %w", backend, ErrBackend, err)
}
