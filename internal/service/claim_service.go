package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultStaleClaimTimeout = 30 * time.Minute

// Dispatcher hands a claimed post to a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID int64, claimToken string) error
}

type ClaimService interface {
	DueCandidates(ctx context.Context, limit int) ([]*models.Post, error)
	DueRetries(ctx context.Context, limit int) ([]*models.Post, error)
	// ClaimDue claims a due pending/queued post, first releasing it when it holds a stale claim.
	ClaimDue(ctx context.Context, post *models.Post) (bool, error)
	// ClaimRetry moves a due retry post back to pending and claims it.
	ClaimRetry(ctx context.Context, post *models.Post) (bool, error)
	// ClaimNow claims a pending or queued post regardless of its schedule.
	ClaimNow(ctx context.Context, postID int64) (bool, error)
}

type claimService struct {
	posts        repository.PostRepository
	dispatcher   Dispatcher
	staleTimeout time.Duration
	clock        Clock
}

func NewClaimService(
	posts repository.PostRepository,
	dispatcher Dispatcher,
	staleTimeout time.Duration,
	clock Clock) ClaimService {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleClaimTimeout
	}
	return &claimService{
		posts:        posts,
		dispatcher:   dispatcher,
		staleTimeout: staleTimeout,
		clock:        clock,
	}
}

func (s *claimService) staleBefore(now time.Time) time.Time {
	return now.Add(-s.staleTimeout)
}

func (s *claimService) DueCandidates(ctx context.Context, limit int) ([]*models.Post, error) {
	now := s.clock.Now()
	return s.posts.FindDueCandidates(ctx, now, s.staleBefore(now), limit)
}

func (s *claimService) DueRetries(ctx context.Context, limit int) ([]*models.Post, error) {
	return s.posts.FindDueRetries(ctx, s.clock.Now(), limit)
}

func (s *claimService) ClaimDue(ctx context.Context, post *models.Post) (bool, error) {
	now := s.clock.Now()

	if post.Status == models.PostStatusProcessing {
		if post.ClaimToken == nil {
			return false, nil
		}
		released, err := s.posts.ReleaseStale(ctx, post.ID, *post.ClaimToken, s.staleBefore(now), now)
		if err != nil {
			return false, err
		}
		if !released {
			metrics.Claims.WithLabelValues("stale", "lost").Inc()
			return false, nil
		}
		slog.Warn("stale claim released", "post_id", post.ID, "claimed_at", post.ClaimedAt)
	}

	return s.claim(ctx, post.ID, "scheduler", s.posts.Claim)
}

func (s *claimService) ClaimRetry(ctx context.Context, post *models.Post) (bool, error) {
	promoted, err := s.posts.PromoteRetry(ctx, post.ID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !promoted {
		metrics.Claims.WithLabelValues("retry", "lost").Inc()
		return false, nil
	}

	return s.claim(ctx, post.ID, "retry", s.posts.Claim)
}

func (s *claimService) ClaimNow(ctx context.Context, postID int64) (bool, error) {
	return s.claim(ctx, postID, "immediate", s.posts.ClaimImmediate)
}

type claimFunc func(ctx context.Context, id int64, token string, now time.Time) (bool, error)

func (s *claimService) claim(ctx context.Context, postID int64, source string, claim claimFunc) (bool, error) {
	token, err := gonanoid.New()
	if err != nil {
		return false, err
	}

	claimed, err := claim(ctx, postID, token, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !claimed {
		metrics.Claims.WithLabelValues(source, "lost").Inc()
		return false, nil
	}
	metrics.Claims.WithLabelValues(source, "claimed").Inc()

	if err := s.dispatcher.Dispatch(ctx, postID, token); err != nil {
		slog.Error("dispatch failed, releasing claim", "post_id", postID, "error", err)
		if _, releaseErr := s.posts.ReleaseClaim(ctx, postID, token, s.clock.Now()); releaseErr != nil {
			slog.Error("failed to release claim", "post_id", postID, "error", releaseErr)
		}
		return false, err
	}

	slog.Info("post claimed", "post_id", postID, "source", source)
	return true, nil
}
