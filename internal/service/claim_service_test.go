package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactlyOneClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	post := h.addPost(t, &models.Post{Caption: "hi"})

	const workers = 20
	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)

	for i := 0; i < workers; i++ {
		// each worker has its own service over the shared store, like separate processes
		claims := NewClaimService(h.store.Posts(), h.dispatcher, DefaultStaleClaimTimeout, h.clock)
		snapshot := h.post(t, post.ID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := claims.ClaimDue(ctx, snapshot)
			assert.NoError(t, err)
			if ok {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
	assert.Equal(t, 1, h.dispatcher.count())
	assert.Equal(t, []models.PostEventType{models.EventProcessing}, h.eventTypes(t, post.ID))
}

func TestDueCandidatesRespectSchedule(t *testing.T) {
	h := newHarness(t)
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	due := h.addPost(t, &models.Post{Caption: "due", ScheduledAt: &past})
	h.addPost(t, &models.Post{Caption: "later", Status: models.PostStatusQueued, ScheduledAt: &future})
	immediate := h.addPost(t, &models.Post{Caption: "now"})

	candidates, err := h.claims.DueCandidates(context.Background(), 10)
	require.NoError(t, err)

	var ids []int64
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []int64{due.ID, immediate.ID}, ids)
}

func TestStaleClaimRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addCredential(t, &models.OAuthCredential{AccessToken: "tok"})
	h.registry.RegisterPublisher(models.DestinationFacebook, &countingPublisher{result: &platform.PublishResult{ProviderPostID: "fb_1"}})

	post := h.addPost(t, &models.Post{Caption: "hi"})
	claimed, err := h.claims.ClaimDue(ctx, h.post(t, post.ID))
	require.NoError(t, err)
	require.True(t, claimed)
	stale := h.dispatcher.last(t)

	// the first worker dies; nothing is recovered before the timeout
	h.clock.Advance(DefaultStaleClaimTimeout - time.Minute)
	candidates, err := h.claims.DueCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	h.clock.Advance(2 * time.Minute)
	candidates, err = h.claims.DueCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	claimed, err = h.claims.ClaimDue(ctx, candidates[0])
	require.NoError(t, err)
	require.True(t, claimed)
	fresh := h.dispatcher.last(t)
	require.NotEqual(t, stale.token, fresh.token)

	// the original worker wakes up and tries to record an outcome
	late := h.post(t, post.ID)
	late.Status = models.PostStatusPosted
	err = h.store.Posts().SaveOutcome(ctx, stale.token, late, &models.PostEvent{EventType: models.EventPosted})
	assert.ErrorIs(t, err, models.ErrClaimLost)

	require.NoError(t, h.publish.Process(ctx, stale.postID, stale.token))
	assert.Equal(t, models.PostStatusProcessing, h.post(t, post.ID).Status, "stale worker must not publish")

	require.NoError(t, h.publish.Process(ctx, fresh.postID, fresh.token))
	assert.Equal(t, models.PostStatusPosted, h.post(t, post.ID).Status)

	assert.Equal(t, []models.PostEventType{
		models.EventProcessing, models.EventClaimExpired, models.EventProcessing, models.EventPosted,
	}, h.eventTypes(t, post.ID))
}

func TestDispatchFailureReleasesClaim(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = errors.New("redis unavailable")

	post := h.addPost(t, &models.Post{Caption: "hi"})
	claimed, err := h.claims.ClaimDue(context.Background(), h.post(t, post.ID))
	require.Error(t, err)
	assert.False(t, claimed)

	got := h.post(t, post.ID)
	assert.Equal(t, models.PostStatusPending, got.Status)
	assert.Nil(t, got.ClaimToken)
	assert.Equal(t, []models.PostEventType{models.EventProcessing, models.EventReleased}, h.eventTypes(t, post.ID))
}

func TestClaimNowIgnoresSchedule(t *testing.T) {
	h := newHarness(t)
	future := testNow.Add(24 * time.Hour)
	post := h.addPost(t, &models.Post{Caption: "hi", Status: models.PostStatusQueued, ScheduledAt: &future})

	claimed, err := h.claims.ClaimDue(context.Background(), h.post(t, post.ID))
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = h.claims.ClaimNow(context.Background(), post.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, post.ID, h.dispatcher.last(t).postID)
}
