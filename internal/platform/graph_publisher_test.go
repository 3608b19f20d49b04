package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraphServer(t *testing.T, handler http.HandlerFunc) *GraphPublisher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGraphPublisher(srv.URL, 0)
}

func TestGraphPublisherTextPost(t *testing.T) {
	var gotPath, gotMessage, gotToken string
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotMessage = r.PostForm.Get("message")
		gotToken = r.URL.Query().Get("access_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"page_1_post_9"}`))
	})

	post := &models.Post{ID: 7, Destination: models.DestinationFacebook, Caption: "hello", Hashtags: []string{"go", "#ship"}}
	cred := &models.OAuthCredential{AccountID: "page_1", AccessToken: "tok"}

	res, err := g.Publish(context.Background(), post, cred)
	require.NoError(t, err)
	assert.Equal(t, "page_1_post_9", res.ProviderPostID)
	assert.Equal(t, "page_1", res.ProviderAccountID)
	assert.Equal(t, "/page_1/feed", gotPath)
	assert.Equal(t, "hello\n\n#go #ship", gotMessage)
	assert.Equal(t, "tok", gotToken)
}

func TestGraphPublisherPhotoUsesPostID(t *testing.T) {
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page_1/photos", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"photo_1","post_id":"page_1_post_2"}`))
	})

	post := &models.Post{Media: []models.Media{{URL: "https://cdn.test/a.jpg"}}}
	res, err := g.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "page_1"})
	require.NoError(t, err)
	assert.Equal(t, "page_1_post_2", res.ProviderPostID)
}

func TestGraphPublisherAlbum(t *testing.T) {
	var photos atomic.Int32
	var attached string
	g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/page_1/photos":
			assert.Equal(t, "false", r.PostForm.Get("published"))
			photos.Add(1)
			_, _ = w.Write([]byte(`{"id":"ph"}`))
		case "/page_1/feed":
			attached = r.PostForm.Get("attached_media[1]")
			_, _ = w.Write([]byte(`{"id":"album_post"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	post := &models.Post{Media: []models.Media{{URL: "https://cdn.test/a.jpg"}, {URL: "https://cdn.test/b.png"}}}
	res, err := g.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "page_1"})
	require.NoError(t, err)
	assert.Equal(t, "album_post", res.ProviderPostID)
	assert.EqualValues(t, 2, photos.Load())
	assert.Equal(t, `{"media_fbid":"ph"}`, attached)
}

func TestGraphPublisherErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, Retryable},
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, Retryable},
		{"transient flag", http.StatusBadRequest, `{"error":{"message":"try later","is_transient":true}}`, Retryable},
		{"app rate limit code", http.StatusBadRequest, `{"error":{"message":"limit","code":4}}`, Retryable},
		{"permission denied", http.StatusForbidden, `{"error":{"message":"no permission","code":200}}`, Terminal},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid","code":100}}`, Terminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := g.Publish(context.Background(), &models.Post{Caption: "x"}, &models.OAuthCredential{AccountID: "p"})
			require.Error(t, err)

			var pe *PublishError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestGraphPublisherNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	g := NewGraphPublisher(srv.URL, 0)
	srv.Close()

	_, err := g.Publish(context.Background(), &models.Post{Caption: "x"}, &models.OAuthCredential{AccountID: "p"})
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestGraphPublisherRequiresAccount(t *testing.T) {
	g := NewGraphPublisher("http://127.0.0.1:0", 0)
	_, err := g.Publish(context.Background(), &models.Post{ID: 1}, &models.OAuthCredential{})
	assert.True(t, IsTerminal(err))
}
