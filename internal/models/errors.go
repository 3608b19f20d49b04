package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPostNotFound          = errors.New("post not found")
	ErrPlanNotFound          = errors.New("recurrence plan not found")
	ErrClaimLost             = errors.New("claim token no longer held")
	ErrNotCancellable        = errors.New("post can only be cancelled while pending and unclaimed")
	ErrPlanConflict          = errors.New("recurrence plan was generated concurrently")
	ErrTokenConflict         = errors.New("credential was refreshed concurrently")
	ErrValidationFailed      = errors.New("platform requirements not met")
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrRefreshUnsupported    = errors.New("destination does not support token refresh")
	ErrRateLimited           = errors.New("rate limit exceeded")
)

// ValidationError carries the first platform requirement a post violated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// CredentialError is returned when no usable credential exists for a publish.
// Terminal is set when retrying cannot help, e.g. the destination cannot refresh tokens.
type CredentialError struct {
	Destination Destination
	Terminal    bool
	Err         error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential unavailable for %s", e.Destination)
	}
	return fmt.Sprintf("credential unavailable for %s: %v", e.Destination, e.Err)
}

func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredentialUnavailable}
	}
	return []error{ErrCredentialUnavailable, e.Err}
}

// RateLimitedError tells the caller when the exhausted window resets.
type RateLimitedError struct {
	Destination Destination
	ResetAt     time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s until %s", e.Destination, e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
