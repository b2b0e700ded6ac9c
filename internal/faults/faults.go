// Package faults defines the error kinds shared across service adapters.
// Adapters wrap their failures with one of these sentinels so the engines
// can decide isolation and retry behavior with errors.Is, without knowing
// which service produced the error.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity marks a service as unreachable. Calls to that service
	// abort for the run; other services are unaffected.
	ErrConnectivity = errors.New("service unreachable")

	// ErrAuth marks rejected credentials. For the catalog this aborts the
	// run; for the subtitle provider it aborts only that provider's requests.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound marks a missing library, item or resource. Scoped to the
	// unit that asked; sibling scopes continue.
	ErrNotFound = errors.New("not found")

	// ErrRateLimit marks an exhausted provider quota. Remaining requests
	// are skipped, not failed.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrFileSystem marks a permission or missing-path failure. Recorded
	// per action; the enclosing plan continues.
	ErrFileSystem = errors.New("filesystem operation failed")
)

// Connectivity wraps err as a connectivity fault.
func Connectivity(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrConnectivity, err)
}

// Auth wraps err as an authentication fault.
func Auth(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrAuth, err)
}

// NotFound reports a missing named resource.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// RateLimit reports an exhausted quota.
func RateLimit(service string) error {
	return fmt.Errorf("%s: %w", service, ErrRateLimit)
}

// FileSystem wraps err as a filesystem fault.
func FileSystem(path string, err error) error {
	return fmt.Errorf("%s: %w: %w", path, ErrFileSystem, err)
}

// Retryable reports whether an error is worth retrying at the call layer.
// Only transient connectivity faults qualify; auth, not-found and quota
// failures will not get better on a second attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrRateLimit) {
		return false
	}
	return errors.Is(err, ErrConnectivity)
}
