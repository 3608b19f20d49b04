package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
	"github.com/maheshrc27/postflow-dispatch/pkg/utils"
)

const expiringBatchSize = 100

type TokenService interface {
	// GetValidCredential returns a decrypted, unexpired credential, refreshing it when needed.
	GetValidCredential(ctx context.Context, brandID int64, destination models.Destination, accountID string) (*models.OAuthCredential, error)
	ExpiringCredentials(ctx context.Context, within time.Duration) ([]*models.OAuthCredential, error)
	Refresh(ctx context.Context, stored *models.OAuthCredential) (*models.OAuthCredential, error)
}

type tokenService struct {
	creds    repository.CredentialRepository
	registry *platform.Registry
	cipher   *utils.TokenCipher
	clock    Clock
}

func NewTokenService(
	creds repository.CredentialRepository,
	registry *platform.Registry,
	cipher *utils.TokenCipher,
	clock Clock) TokenService {
	return &tokenService{
		creds:    creds,
		registry: registry,
		cipher:   cipher,
		clock:    clock,
	}
}

func (s *tokenService) GetValidCredential(ctx context.Context, brandID int64, destination models.Destination, accountID string) (*models.OAuthCredential, error) {
	stored, err := s.creds.GetValid(ctx, brandID, destination, accountID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, &models.CredentialError{
			Destination: destination,
			Err:         fmt.Errorf("no valid credential for brand %d", brandID),
		}
	}

	if !stored.Expired(s.clock.Now()) {
		return s.decrypt(stored)
	}

	return s.Refresh(ctx, stored)
}

func (s *tokenService) ExpiringCredentials(ctx context.Context, within time.Duration) ([]*models.OAuthCredential, error) {
	return s.creds.ListExpiring(ctx, s.clock.Now().Add(within), expiringBatchSize)
}

// Refresh exchanges the stored credential's refresh token and persists the result.
// A failed refresh invalidates the credential.
func (s *tokenService) Refresh(ctx context.Context, stored *models.OAuthCredential) (*models.OAuthCredential, error) {
	destination := stored.Destination

	refresher, ok := s.registry.Refresher(destination)
	if !ok {
		s.invalidate(ctx, stored, "no token refresher registered")
		metrics.TokenRefreshes.WithLabelValues(string(destination), "unsupported").Inc()
		return nil, &models.CredentialError{Destination: destination, Terminal: true, Err: models.ErrRefreshUnsupported}
	}

	plain, err := s.decrypt(stored)
	if err != nil {
		return nil, err
	}

	token, err := refresher.Refresh(ctx, plain)
	if err != nil {
		s.invalidate(ctx, stored, err.Error())
		metrics.TokenRefreshes.WithLabelValues(string(destination), "failed").Inc()
		return nil, &models.CredentialError{
			Destination: destination,
			Terminal:    errors.Is(err, models.ErrRefreshUnsupported),
			Err:         err,
		}
	}

	now := s.clock.Now()
	update := &models.OAuthCredential{
		ExpiresAt:       token.ExpiresAt,
		LastRefreshedAt: &now,
	}
	if update.AccessToken, err = s.cipher.Seal(token.AccessToken); err != nil {
		return nil, s.cipherError(stored, fmt.Errorf("sealing access token: %w", err))
	}
	if update.RefreshToken, err = s.cipher.Seal(token.RefreshToken); err != nil {
		return nil, s.cipherError(stored, fmt.Errorf("sealing refresh token: %w", err))
	}

	err = s.creds.SetToken(ctx, stored.ID, stored.AccessToken, update)
	if errors.Is(err, models.ErrTokenConflict) {
		// another worker refreshed first; use its token
		return s.reload(ctx, stored)
	}
	if err != nil {
		return nil, err
	}

	metrics.TokenRefreshes.WithLabelValues(string(destination), "refreshed").Inc()
	slog.Info("credential refreshed", "credential_id", stored.ID, "destination", destination, "expires_at", token.ExpiresAt)

	plain.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		plain.RefreshToken = token.RefreshToken
	}
	plain.ExpiresAt = token.ExpiresAt
	plain.LastRefreshedAt = &now
	return plain, nil
}

func (s *tokenService) reload(ctx context.Context, stored *models.OAuthCredential) (*models.OAuthCredential, error) {
	current, err := s.creds.GetByID(ctx, stored.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsValid || current.Expired(s.clock.Now()) {
		return nil, &models.CredentialError{Destination: stored.Destination, Err: models.ErrTokenConflict}
	}
	return s.decrypt(current)
}

func (s *tokenService) invalidate(ctx context.Context, stored *models.OAuthCredential, reason string) {
	slog.Warn("invalidating credential", "credential_id", stored.ID, "destination", stored.Destination, "reason", reason)
	if err := s.creds.Invalidate(ctx, stored.ID, reason); err != nil {
		slog.Error("failed to invalidate credential", "credential_id", stored.ID, "error", err)
	}
}

func (s *tokenService) decrypt(stored *models.OAuthCredential) (*models.OAuthCredential, error) {
	plain := *stored

	var err error
	if plain.AccessToken, err = s.cipher.Open(stored.AccessToken); err != nil {
		return nil, s.cipherError(stored, fmt.Errorf("decrypting access token of credential %d: %w", stored.ID, err))
	}
	if plain.RefreshToken, err = s.cipher.Open(stored.RefreshToken); err != nil {
		return nil, s.cipherError(stored, fmt.Errorf("decrypting refresh token of credential %d: %w", stored.ID, err))
	}
	return &plain, nil
}

// cipherError marks a token that cannot be opened or sealed with the configured key.
// Retrying with the same key cannot succeed.
func (s *tokenService) cipherError(stored *models.OAuthCredential, err error) error {
	slog.Error("credential cipher failure", "credential_id", stored.ID, "destination", stored.Destination, "error", err)
	return &models.CredentialError{Destination: stored.Destination, Terminal: true, Err: err}
}
