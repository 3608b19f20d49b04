package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// OAuth2Refresher refreshes access tokens against a standard OAuth2 token endpoint.
type OAuth2Refresher struct {
	conf *oauth2.Config
}

func NewOAuth2Refresher(conf *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{conf: conf}
}

func NewGoogleRefresher(clientID, clientSecret string) *OAuth2Refresher {
	return NewOAuth2Refresher(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{youtube.YoutubeUploadScope},
		Endpoint:     google.Endpoint,
	})
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error) {
	if credential.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credential %d has no refresh token", models.ErrRefreshUnsupported, credential.ID)
	}

	tokenSource := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: credential.RefreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("refreshing %s token: %w", credential.Destination, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = credential.RefreshToken
	}

	return &RefreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

// UnsupportedRefresher is registered for destinations whose tokens cannot be refreshed.
type UnsupportedRefresher struct{}

func (UnsupportedRefresher) Refresh(_ context.Context, credential *models.OAuthCredential) (*RefreshedToken, error) {
	return nil, fmt.Errorf("%w: %s", models.ErrRefreshUnsupported, credential.Destination)
}
