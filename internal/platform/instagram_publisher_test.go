package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instagramAPI struct {
	mu         sync.Mutex
	containers []map[string]string
	statuses   map[string][]string
	published  string
}

func (a *instagramAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/ig_1/media":
			require.NoError(t, r.ParseForm())
			form := map[string]string{}
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
			a.containers = append(a.containers, form)
			_, _ = w.Write([]byte(`{"id":"c` + strconv.Itoa(len(a.containers)) + `"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/ig_1/media_publish":
			require.NoError(t, r.ParseForm())
			a.published = r.PostForm.Get("creation_id")
			_, _ = w.Write([]byte(`{"id":"media_77"}`))
		case r.Method == http.MethodGet:
			id := strings.TrimPrefix(r.URL.Path, "/")
			status := "FINISHED"
			if queue := a.statuses[id]; len(queue) > 0 {
				status, a.statuses[id] = queue[0], queue[1:]
			}
			_, _ = w.Write([]byte(`{"id":"` + id + `","status_code":"` + status + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newInstagramServer(t *testing.T, api *instagramAPI) *InstagramPublisher {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	p := NewInstagramPublisher(srv.URL, 0)
	p.pollInterval = time.Millisecond
	return p
}

func TestInstagramPublisherSingleImage(t *testing.T) {
	api := &instagramAPI{}
	p := newInstagramServer(t, api)

	post := &models.Post{ID: 4, Caption: "sunset", Hashtags: []string{"sky"}, Media: []models.Media{{URL: "https://cdn.test/a.jpg"}}}
	res, err := p.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "ig_1", AccessToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "media_77", res.ProviderPostID)
	assert.Equal(t, "ig_1", res.ProviderAccountID)
	require.Len(t, api.containers, 1)
	assert.Equal(t, "https://cdn.test/a.jpg", api.containers[0]["image_url"])
	assert.Equal(t, "sunset\n\n#sky", api.containers[0]["caption"])
	assert.Equal(t, "c1", api.published)
}

func TestInstagramPublisherWaitsForVideo(t *testing.T) {
	api := &instagramAPI{statuses: map[string][]string{"c1": {"IN_PROGRESS", "IN_PROGRESS"}}}
	p := newInstagramServer(t, api)

	post := &models.Post{Media: []models.Media{{URL: "https://cdn.test/clip.mp4"}}}
	_, err := p.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "ig_1", AccessToken: "tok"})
	require.NoError(t, err)

	require.Len(t, api.containers, 1)
	assert.Equal(t, "REELS", api.containers[0]["media_type"])
	assert.Equal(t, "https://cdn.test/clip.mp4", api.containers[0]["video_url"])
	assert.Empty(t, api.statuses["c1"], "publish waited until the container finished")
	assert.Equal(t, "c1", api.published)
}

func TestInstagramPublisherCarousel(t *testing.T) {
	api := &instagramAPI{}
	p := newInstagramServer(t, api)

	post := &models.Post{Caption: "set", Media: []models.Media{{URL: "https://cdn.test/a.jpg"}, {URL: "https://cdn.test/b.mp4"}}}
	_, err := p.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "ig_1", AccessToken: "tok"})
	require.NoError(t, err)

	require.Len(t, api.containers, 3)
	assert.Equal(t, "true", api.containers[0]["is_carousel_item"])
	assert.Equal(t, "VIDEO", api.containers[1]["media_type"])
	assert.Equal(t, "CAROUSEL", api.containers[2]["media_type"])
	assert.Equal(t, "c1,c2", api.containers[2]["children"])
	assert.Equal(t, "set", api.containers[2]["caption"])
	assert.Equal(t, "c3", api.published)
}

func TestInstagramPublisherContainerError(t *testing.T) {
	api := &instagramAPI{statuses: map[string][]string{"c1": {"ERROR"}}}
	p := newInstagramServer(t, api)

	post := &models.Post{Media: []models.Media{{URL: "https://cdn.test/clip.mp4"}}}
	_, err := p.Publish(context.Background(), post, &models.OAuthCredential{AccountID: "ig_1", AccessToken: "tok"})
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Empty(t, api.published)
}

func TestInstagramPublisherRequiresMedia(t *testing.T) {
	p := NewInstagramPublisher("http://127.0.0.1:0", 0)
	_, err := p.Publish(context.Background(), &models.Post{Caption: "text"}, &models.OAuthCredential{AccountID: "ig_1"})
	assert.True(t, IsTerminal(err))
}

func TestInstagramPublisherClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		terminal bool
	}{
		{"transient", http.StatusBadRequest, `{"error":{"message":"try later","code":2,"is_transient":true}}`, false},
		{"server error", http.StatusInternalServerError, `{}`, false},
		{"permission", http.StatusBadRequest, `{"error":{"message":"missing permission","code":10}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			post := &models.Post{Media: []models.Media{{URL: "https://cdn.test/a.jpg"}}}
			_, err := NewInstagramPublisher(srv.URL, 0).Publish(context.Background(), post, &models.OAuthCredential{AccountID: "ig_1", AccessToken: "tok"})
			require.Error(t, err)
			assert.Equal(t, tt.terminal, IsTerminal(err))
		})
	}
}

func TestInstagramRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh_access_token", r.URL.Path)
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "long-lived", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"extended","token_type":"bearer","expires_in":5184000}`))
	}))
	t.Cleanup(srv.Close)

	before := time.Now()
	tok, err := NewInstagramRefresher(srv.URL).Refresh(context.Background(), &models.OAuthCredential{AccessToken: "long-lived"})
	require.NoError(t, err)
	assert.Equal(t, "extended", tok.AccessToken)
	assert.Empty(t, tok.RefreshToken)
	assert.True(t, tok.ExpiresAt.After(before.Add(59*24*time.Hour)))
}

func TestInstagramRefresherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Session has expired","code":190}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewInstagramRefresher(srv.URL).Refresh(context.Background(), &models.OAuthCredential{AccessToken: "old"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session has expired")
}
