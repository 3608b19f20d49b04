package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
)

// TokenRefreshJob refreshes credentials that expire soon, ahead of any publish needing them.
type TokenRefreshJob struct {
	tokens service.TokenService
}

func NewTokenRefreshJob(tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		tokens: tokens,
	}
}

func (c *TokenRefreshJob) Name() string { return "token_refresh" }

func (c *TokenRefreshJob) RunOnce(ctx context.Context) error {
	credentials, err := c.tokens.ExpiringCredentials(ctx, refreshWindow)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range credentials {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.OAuthCredential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := c.tokens.Refresh(ctx, cred); err != nil {
				slog.Info("Unable to refresh token", "credential_id", cred.ID, "destination", cred.Destination, "error", err)
			}
		}(cred)
	}

	wg.Wait()
	return nil
}
