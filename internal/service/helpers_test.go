package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/repository/memstore"
	"github.com/maheshrc27/postflow-dispatch/pkg/utils"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type dispatchCall struct {
	postID int64
	token  string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, postID int64, claimToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, dispatchCall{postID: postID, token: claimToken})
	return nil
}

func (d *recordingDispatcher) last(t *testing.T) dispatchCall {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.calls, "nothing was dispatched")
	return d.calls[len(d.calls)-1]
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type harness struct {
	store      *memstore.Store
	clock      *fakeClock
	registry   *platform.Registry
	dispatcher *recordingDispatcher
	rates      RateLimitService
	tokens     TokenService
	claims     ClaimService
	publish    PublishService
}

var testNow = time.Date(2026, time.March, 10, 10, 15, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:      memstore.NewStore(),
		clock:      newFakeClock(testNow),
		registry:   platform.NewRegistry(),
		dispatcher: &recordingDispatcher{},
	}

	h.rates = NewRateLimitService(h.store.RateWindows(), h.store.BrandLimits(), 0, 0, h.clock)
	h.claims = NewClaimService(h.store.Posts(), h.dispatcher, DefaultStaleClaimTimeout, h.clock)
	h.useCipher(utils.NewTokenCipher(""))
	return h
}

// useCipher rebuilds the token and publish services around cipher.
func (h *harness) useCipher(cipher *utils.TokenCipher) {
	backoff := NewBackoff(DefaultBackoffBase, DefaultBackoffMax).WithRand(func() float64 { return 0 })
	h.tokens = NewTokenService(h.store.Credentials(), h.registry, cipher, h.clock)
	h.publish = NewPublishService(h.store.Posts(), h.registry, h.rates, h.tokens, backoff, time.Second, h.clock)
}

func (h *harness) addPost(t *testing.T, post *models.Post) *models.Post {
	t.Helper()
	if post.BrandID == 0 {
		post.BrandID = 1
	}
	if post.Destination == "" {
		post.Destination = models.DestinationFacebook
	}
	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	if post.MaxRetries == 0 {
		post.MaxRetries = models.DefaultMaxRetries
	}
	_, err := h.store.Posts().Create(context.Background(), nil, post)
	require.NoError(t, err)
	return post
}

func (h *harness) addCredential(t *testing.T, cred *models.OAuthCredential) *models.OAuthCredential {
	t.Helper()
	if cred.BrandID == 0 {
		cred.BrandID = 1
	}
	if cred.Destination == "" {
		cred.Destination = models.DestinationFacebook
	}
	_, err := h.store.Credentials().Create(context.Background(), nil, cred)
	require.NoError(t, err)
	return cred
}

func (h *harness) post(t *testing.T, id int64) *models.Post {
	t.Helper()
	post, err := h.store.Posts().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, post)
	return post
}

func (h *harness) eventTypes(t *testing.T, postID int64) []models.PostEventType {
	t.Helper()
	events, err := h.store.Events().GetByPostID(context.Background(), postID)
	require.NoError(t, err)

	types := make([]models.PostEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

// countingPublisher returns result or err and records how often it was called.
type countingPublisher struct {
	mu     sync.Mutex
	calls  int
	result *platform.PublishResult
	err    error
}

func (p *countingPublisher) Publish(_ context.Context, _ *models.Post, _ *models.OAuthCredential) (*platform.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result, p.err
}

func (p *countingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
