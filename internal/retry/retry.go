// Package retry provides capped exponential backoff for calls to external
// services. The policy is an explicit value passed in by the caller; which
// errors are retryable is decided by the faults taxonomy plus low-level
// network error detection, never by business logic.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/faults"
)

// Policy configures the exponential backoff retry behavior.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultPolicy returns sensible defaults for network retry.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

// IsNetworkError checks if an error is likely due to network unavailability.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkIndicators := []string{
		"connection refused",
		"no such host",
		"timeout",
		"network is unreachable",
		"no route to host",
		"host is down",
		"dial tcp",
		"i/o timeout",
		"connection reset",
		"temporary failure in name resolution",
	}
	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// retryable combines the taxonomy check with raw network error detection.
func retryable(err error) bool {
	if faults.Retryable(err) {
		return true
	}
	// Auth, not-found and quota faults are final even if the underlying
	// transport error smells transient.
	if errors.Is(err, faults.ErrAuth) || errors.Is(err, faults.ErrNotFound) || errors.Is(err, faults.ErrRateLimit) {
		return false
	}
	return IsNetworkError(err)
}

// Do executes fn with exponential backoff for transient errors only.
// Non-retryable errors fail immediately.
func Do(ctx context.Context, name string, policy Policy, logger zerolog.Logger, fn func() error) error {
	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("operation", name).Int("attempt", attempt).
					Msg("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt).
			Int("maxAttempts", policy.MaxAttempts).
			Dur("nextRetryIn", delay).
			Msg("transient error, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		next := time.Duration(float64(delay) * policy.Multiplier)
		if next > policy.MaxDelay {
			next = policy.MaxDelay
		}
		delay = next
	}

	logger.Error().Err(lastErr).Str("operation", name).
		Int("attempts", policy.MaxAttempts).
		Msg("operation failed after all retries")
	return lastErr
}
