package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the backend could not be reached at all
// (connection refused, DNS failure). It is wrapped into an *APIError so the
// upstream cause stays readable.
var ErrUnavailable = errors.New("provider unavailable")

// APIError is a failure reported by the backend itself. The worker treats it
// as a recoverable, job-level failure rather than an internal fault.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Options are the sampling constraints passed to a backend.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Provider is the pluggable text-generation backend. Implementations are
// selected once at process start and injected into the worker; Generate may
// block for the full duration of the backend call.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Name() string
}
