package memstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type postStore struct {
	s *Store
}

func (p *postStore) GetByID(_ context.Context, id int64) (*models.Post, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	post, ok := p.s.posts[id]
	if !ok {
		return nil, nil
	}
	return clonePost(post), nil
}

func (p *postStore) Create(_ context.Context, _ *sql.Tx, post *models.Post) (int64, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	return p.s.createPost(post), nil
}

// createPost must be called with mu held for writing.
func (s *Store) createPost(post *models.Post) int64 {
	s.nextPostID++
	now := time.Now().UTC()
	post.ID = s.nextPostID
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	s.posts[post.ID] = clonePost(post)
	return post.ID
}

func dueTime(p *models.Post) time.Time {
	if p.ScheduledAt != nil {
		return *p.ScheduledAt
	}
	return p.CreatedAt
}

func (p *postStore) FindDueCandidates(_ context.Context, now, staleBefore time.Time, limit int) ([]*models.Post, error) {
	return p.filter(limit, dueTime, func(post *models.Post) bool {
		return claimable(post, now, true) ||
			(post.Status == models.PostStatusProcessing && post.ClaimedAt != nil && post.ClaimedAt.Before(staleBefore))
	}), nil
}

func (p *postStore) FindDueRetries(_ context.Context, now time.Time, limit int) ([]*models.Post, error) {
	retryTime := func(post *models.Post) time.Time { return *post.NextRetryAt }
	return p.filter(limit, retryTime, func(post *models.Post) bool {
		return retryDue(post, now)
	}), nil
}

func (p *postStore) filter(limit int, orderBy func(*models.Post) time.Time, match func(*models.Post) bool) []*models.Post {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var out []*models.Post
	for _, post := range p.s.posts {
		if match(post) {
			out = append(out, clonePost(post))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := orderBy(out[i]), orderBy(out[j])
		if ti.Equal(tj) {
			return out[i].ID < out[j].ID
		}
		return ti.Before(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func claimable(post *models.Post, now time.Time, checkSchedule bool) bool {
	if post.ClaimToken != nil {
		return false
	}
	if post.Status != models.PostStatusPending && post.Status != models.PostStatusQueued {
		return false
	}
	return !checkSchedule || post.ScheduledAt == nil || !post.ScheduledAt.After(now)
}

func retryDue(post *models.Post, now time.Time) bool {
	return post.Status == models.PostStatusRetry && post.ClaimToken == nil &&
		post.NextRetryAt != nil && !post.NextRetryAt.After(now)
}

// transition applies mutate and appends event when guard holds for the stored post.
func (p *postStore) transition(id int64, event *models.PostEvent, guard func(*models.Post) bool, mutate func(*models.Post)) bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	post, ok := p.s.posts[id]
	if !ok || !guard(post) {
		return false
	}
	mutate(post)
	event.PostID = id
	if event.Timestamp.IsZero() {
		// every mutate stamps UpdatedAt with the caller's clock
		event.Timestamp = post.UpdatedAt
	}
	p.s.appendEvent(event)
	return true
}

func (p *postStore) claim(id int64, token string, now time.Time, checkSchedule bool, message string) bool {
	event := &models.PostEvent{EventType: models.EventProcessing, Message: message}
	return p.transition(id, event,
		func(post *models.Post) bool { return claimable(post, now, checkSchedule) },
		func(post *models.Post) {
			post.ClaimToken = &token
			post.ClaimedAt = cloneTime(&now)
			post.Status = models.PostStatusProcessing
			post.UpdatedAt = now
		})
}

func (p *postStore) Claim(_ context.Context, id int64, token string, now time.Time) (bool, error) {
	return p.claim(id, token, now, true, "claimed by scheduler"), nil
}

func (p *postStore) ClaimImmediate(_ context.Context, id int64, token string, now time.Time) (bool, error) {
	return p.claim(id, token, now, false, "claimed for immediate publish"), nil
}

func release(now time.Time) func(*models.Post) {
	return func(post *models.Post) {
		post.ClaimToken = nil
		post.ClaimedAt = nil
		post.Status = models.PostStatusPending
		post.UpdatedAt = now
	}
}

func (p *postStore) ReleaseStale(_ context.Context, id int64, oldToken string, staleBefore, now time.Time) (bool, error) {
	event := &models.PostEvent{EventType: models.EventClaimExpired, Message: "stale claim released"}
	return p.transition(id, event,
		func(post *models.Post) bool {
			return post.Status == models.PostStatusProcessing && post.HoldsClaim(oldToken) &&
				post.ClaimedAt != nil && post.ClaimedAt.Before(staleBefore)
		},
		release(now)), nil
}

func (p *postStore) ReleaseClaim(_ context.Context, id int64, token string, now time.Time) (bool, error) {
	event := &models.PostEvent{EventType: models.EventReleased, Message: "dispatch failed, claim released"}
	return p.transition(id, event,
		func(post *models.Post) bool {
			return post.Status == models.PostStatusProcessing && post.HoldsClaim(token)
		},
		release(now)), nil
}

func (p *postStore) PromoteRetry(_ context.Context, id int64, now time.Time) (bool, error) {
	event := &models.PostEvent{EventType: models.EventPending, Message: "retry due"}
	return p.transition(id, event,
		func(post *models.Post) bool { return retryDue(post, now) },
		func(post *models.Post) {
			post.Status = models.PostStatusPending
			post.NextRetryAt = nil
			post.UpdatedAt = now
		}), nil
}

func (p *postStore) SaveOutcome(_ context.Context, token string, post *models.Post, event *models.PostEvent) error {
	ok := p.transition(post.ID, event,
		func(stored *models.Post) bool { return stored.HoldsClaim(token) },
		func(stored *models.Post) {
			stored.Status = post.Status
			stored.ProviderPostID = post.ProviderPostID
			stored.ProviderAccountID = post.ProviderAccountID
			stored.RetryCount = post.RetryCount
			stored.NextRetryAt = cloneTime(post.NextRetryAt)
			stored.LastError = post.LastError
			stored.ErrorLog = append([]string(nil), post.ErrorLog...)
			stored.ClaimToken = cloneString(post.ClaimToken)
			stored.ClaimedAt = cloneTime(post.ClaimedAt)
			stored.PostedAt = cloneTime(post.PostedAt)
			stored.ScheduledAt = cloneTime(post.ScheduledAt)
			stored.UpdatedAt = post.UpdatedAt
		})
	if !ok {
		return models.ErrClaimLost
	}
	return nil
}

func (p *postStore) Cancel(_ context.Context, id int64, reason string, now time.Time) (bool, error) {
	event := &models.PostEvent{EventType: models.EventCancelled, Message: reason}
	return p.transition(id, event,
		func(post *models.Post) bool { return claimable(post, now, false) },
		func(post *models.Post) {
			post.Status = models.PostStatusCancelled
			post.UpdatedAt = now
		}), nil
}
