package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type ErrorKind string

const (
	Retryable ErrorKind = "retryable"
	Terminal  ErrorKind = "terminal"
)

// PublishError is the classified failure of a publish call.
type PublishError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s publish error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s publish error: %s", e.Kind, e.Message)
}

func RetryableError(format string, args ...any) *PublishError {
	return &PublishError{Kind: Retryable, Message: fmt.Sprintf(format, args...)}
}

func TerminalError(format string, args ...any) *PublishError {
	return &PublishError{Kind: Terminal, Message: fmt.Sprintf(format, args...)}
}

// IsTerminal reports whether err is a publish error that retrying cannot fix.
// Errors without a kind are retryable.
func IsTerminal(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind == Terminal
	}
	return false
}

type PublishResult struct {
	ProviderPostID    string
	ProviderAccountID string
}

type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// PlatformPublisher performs the network call for one destination.
// The credential passed in carries decrypted tokens.
type PlatformPublisher interface {
	Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error)
}

// TokenRefresher exchanges a refresh token for a new access token.
// It returns models.ErrRefreshUnsupported when the destination cannot refresh.
type TokenRefresher interface {
	Refresh(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error)
}

type PublisherFunc func(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error)

func (f PublisherFunc) Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error) {
	return f(ctx, post, credential)
}

type RefresherFunc func(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error)

func (f RefresherFunc) Refresh(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error) {
	return f(ctx, credential)
}
