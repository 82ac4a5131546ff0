package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested entry or asset does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrStatusConflict is returned by conditional status updates when the row has left the expected status.
	ErrStatusConflict = errors.New("entry status changed concurrently")
	// ErrUnsupportedMediaType is returned for MIME types outside the allow-list.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// ValidationError rejects a request before anything is persisted or sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ResolutionError means an entry's media reference no longer resolves.
type ResolutionError struct {
	MediaRef string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("media asset %s could not be resolved: %v", e.MediaRef, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ProviderPhase names the step of a send that failed.
type ProviderPhase string

const (
	PhaseUpload ProviderPhase = "upload"
	PhaseSubmit ProviderPhase = "submit"
)

// ProviderError wraps an upload or submission failure.
type ProviderError struct {
	Provider   string
	Phase      ProviderPhase
	StatusCode int // HTTP status when known, 0 otherwise
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s %s failed (status %d): %v", e.Provider, e.Phase, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s failed: %v", e.Provider, e.Phase, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
