package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T, status int, body string) *OAuth2Refresher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return NewOAuth2Refresher(&oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	})
}

func TestOAuth2RefresherKeepsRefreshToken(t *testing.T) {
	r := newTokenServer(t, http.StatusOK, `{"access_token":"new","token_type":"Bearer","expires_in":3600}`)

	before := time.Now()
	tok, err := r.Refresh(context.Background(), &models.OAuthCredential{RefreshToken: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.True(t, tok.ExpiresAt.After(before.Add(50*time.Minute)))
}

func TestOAuth2RefresherRotatesRefreshToken(t *testing.T) {
	r := newTokenServer(t, http.StatusOK, `{"access_token":"new","token_type":"Bearer","refresh_token":"r2","expires_in":60}`)

	tok, err := r.Refresh(context.Background(), &models.OAuthCredential{RefreshToken: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r2", tok.RefreshToken)
}

func TestOAuth2RefresherFailure(t *testing.T) {
	r := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)

	_, err := r.Refresh(context.Background(), &models.OAuthCredential{RefreshToken: "r1", Destination: models.DestinationYoutube})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrRefreshUnsupported))
}

func TestOAuth2RefresherWithoutRefreshToken(t *testing.T) {
	r := NewGoogleRefresher("id", "secret")
	_, err := r.Refresh(context.Background(), &models.OAuthCredential{})
	assert.ErrorIs(t, err, models.ErrRefreshUnsupported)
}

func TestUnsupportedRefresher(t *testing.T) {
	_, err := UnsupportedRefresher{}.Refresh(context.Background(), &models.OAuthCredential{Destination: models.DestinationFacebook})
	assert.ErrorIs(t, err, models.ErrRefreshUnsupported)
}
