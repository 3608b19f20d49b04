package job

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/repository/memstore"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
	"github.com/maheshrc27/postflow-dispatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 10, 15, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type countingDispatcher struct {
	mu  sync.Mutex
	ids []int64
}

func (d *countingDispatcher) Dispatch(_ context.Context, postID int64, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, postID)
	return nil
}

func (d *countingDispatcher) dispatched() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.ids...)
}

func createPost(t *testing.T, store *memstore.Store, post *models.Post) int64 {
	t.Helper()
	post.BrandID = 1
	post.Destination = models.DestinationFacebook
	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	id, err := store.Posts().Create(context.Background(), nil, post)
	require.NoError(t, err)
	return id
}

func TestClaimJobDispatchesDuePosts(t *testing.T) {
	store := memstore.NewStore()
	dispatcher := &countingDispatcher{}
	claims := service.NewClaimService(store.Posts(), dispatcher, 0, fixedClock{testNow})

	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)
	due := createPost(t, store, &models.Post{ScheduledAt: &past})
	immediate := createPost(t, store, &models.Post{})
	createPost(t, store, &models.Post{Status: models.PostStatusQueued, ScheduledAt: &future})

	job := NewClaimJob(claims, 10)
	require.NoError(t, job.RunOnce(context.Background()))
	assert.ElementsMatch(t, []int64{due, immediate}, dispatcher.dispatched())

	require.NoError(t, job.RunOnce(context.Background()))
	assert.Len(t, dispatcher.dispatched(), 2, "claimed posts are not dispatched twice")
}

func TestClaimJobRespectsBatchSize(t *testing.T) {
	store := memstore.NewStore()
	dispatcher := &countingDispatcher{}
	claims := service.NewClaimService(store.Posts(), dispatcher, 0, fixedClock{testNow})

	for i := 0; i < 5; i++ {
		createPost(t, store, &models.Post{})
	}

	require.NoError(t, NewClaimJob(claims, 2).RunOnce(context.Background()))
	assert.Len(t, dispatcher.dispatched(), 2)
}

func TestRetryJobClaimsDueRetries(t *testing.T) {
	store := memstore.NewStore()
	dispatcher := &countingDispatcher{}
	claims := service.NewClaimService(store.Posts(), dispatcher, 0, fixedClock{testNow})

	due := testNow.Add(-time.Minute)
	notYet := testNow.Add(time.Minute)
	ready := createPost(t, store, &models.Post{Status: models.PostStatusRetry, RetryCount: 1, NextRetryAt: &due})
	createPost(t, store, &models.Post{Status: models.PostStatusRetry, RetryCount: 1, NextRetryAt: &notYet})

	require.NoError(t, NewRetryJob(claims, 10).RunOnce(context.Background()))
	assert.Equal(t, []int64{ready}, dispatcher.dispatched())

	post, err := store.Posts().GetByID(context.Background(), ready)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusProcessing, post.Status)
	assert.Equal(t, 1, post.RetryCount, "retry count is preserved when the retry is claimed")
	assert.Nil(t, post.NextRetryAt)
}

func TestRecurrenceJobFillsLookahead(t *testing.T) {
	store := memstore.NewStore()
	clock := fixedClock{testNow}
	recurrences := service.NewRecurrenceService(store.Recurrences(), 3, clock)

	plan := &models.RecurrencePlan{
		BrandID:  1,
		Rule:     "@every 20m",
		IsActive: true,
		Template: models.PostTemplate{Destination: models.DestinationFacebook, Caption: "tick"},
	}
	_, err := store.Recurrences().Create(context.Background(), plan)
	require.NoError(t, err)

	job := NewRecurrenceJob(recurrences, time.Hour, clock)
	require.NoError(t, job.RunOnce(context.Background()))

	instances, err := store.Recurrences().GetInstances(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, testNow.Add(20*time.Minute), instances[0].ScheduledAt)
	assert.Equal(t, testNow.Add(time.Hour), instances[2].ScheduledAt)

	require.NoError(t, job.RunOnce(context.Background()))
	instances, err = store.Recurrences().GetInstances(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Len(t, instances, 3, "nothing new is due within the lookahead")
}

func TestTokenRefreshJobRefreshesExpiring(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()
	registry := platform.NewRegistry()

	var refreshed atomic.Int32
	registry.RegisterRefresher(models.DestinationYoutube, platform.RefresherFunc(
		func(context.Context, *models.OAuthCredential) (*platform.RefreshedToken, error) {
			n := refreshed.Add(1)
			return &platform.RefreshedToken{AccessToken: "fresh-" + string(rune('a'+n)), ExpiresAt: testNow.Add(time.Hour)}, nil
		}))

	for i := 0; i < 12; i++ {
		_, err := store.Credentials().Create(ctx, nil, &models.OAuthCredential{
			BrandID:      int64(i + 1),
			Destination:  models.DestinationYoutube,
			AccessToken:  "stale",
			RefreshToken: "refresh",
			ExpiresAt:    testNow.Add(10 * time.Minute),
		})
		require.NoError(t, err)
	}

	tokens := service.NewTokenService(store.Credentials(), registry, utils.NewTokenCipher(""), fixedClock{testNow})
	require.NoError(t, NewTokenRefreshJob(tokens).RunOnce(ctx))
	assert.Equal(t, int32(12), refreshed.Load())

	remaining, err := tokens.ExpiringCredentials(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

type signalRunner struct {
	runs chan struct{}
}

func (r *signalRunner) Name() string { return "signal" }

func (r *signalRunner) RunOnce(context.Context) error {
	select {
	case r.runs <- struct{}{}:
	default:
	}
	return nil
}

func TestSchedulerRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(ctx, log.New(io.Discard, "", 0))
	r := &signalRunner{runs: make(chan struct{}, 1)}
	require.NoError(t, s.Every(time.Hour, r))

	s.Start()
	defer s.Stop()

	select {
	case <-r.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not run at startup")
	}
}
