package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
)

const DefaultPublishTimeout = 2 * time.Minute

// PublishService drives one claimed post through validation, rate limiting,
// credential lookup and the platform call, then records the outcome.
type PublishService interface {
	Process(ctx context.Context, postID int64, claimToken string) error
}

type publishService struct {
	posts          repository.PostRepository
	registry       *platform.Registry
	rateLimiter    RateLimitService
	tokens         TokenService
	backoff        *Backoff
	publishTimeout time.Duration
	clock          Clock
}

func NewPublishService(
	posts repository.PostRepository,
	registry *platform.Registry,
	rateLimiter RateLimitService,
	tokens TokenService,
	backoff *Backoff,
	publishTimeout time.Duration,
	clock Clock) PublishService {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &publishService{
		posts:          posts,
		registry:       registry,
		rateLimiter:    rateLimiter,
		tokens:         tokens,
		backoff:        backoff,
		publishTimeout: publishTimeout,
		clock:          clock,
	}
}

// Process returns an error only for store failures; the post then keeps its claim
// until stale-claim recovery releases it.
func (s *publishService) Process(ctx context.Context, postID int64, claimToken string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Warn("post not found for publish", "post_id", postID)
		return nil
	}
	if post.Status != models.PostStatusProcessing || !post.HoldsClaim(claimToken) {
		slog.Info("claim no longer held, skipping", "post_id", postID, "status", post.Status)
		return nil
	}

	if err := platform.ValidatePost(post); err != nil {
		return s.recordInvalid(ctx, post, claimToken, err)
	}

	decision, err := s.rateLimiter.Check(ctx, post.BrandID, post.Destination)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return s.recordDeferred(ctx, post, claimToken, decision.ResetAt)
	}

	publisher, ok := s.registry.Publisher(post.Destination)
	if !ok {
		return s.recordFailure(ctx, post, claimToken, platform.TerminalError("no publisher registered for %s", post.Destination))
	}

	credential, err := s.tokens.GetValidCredential(ctx, post.BrandID, post.Destination, post.AccountID)
	if err != nil {
		var credErr *models.CredentialError
		if errors.As(err, &credErr) {
			return s.recordFailure(ctx, post, claimToken, err)
		}
		return err
	}

	result, err := s.publish(ctx, publisher, post, credential)
	if err != nil {
		return s.recordFailure(ctx, post, claimToken, err)
	}

	return s.recordSuccess(ctx, post, claimToken, result)
}

func (s *publishService) publish(ctx context.Context, publisher platform.PlatformPublisher, post *models.Post, credential *models.OAuthCredential) (result *platform.PublishResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = platform.RetryableError("publisher panic: %v", r)
		}
	}()

	defer metrics.ObservePublish(string(post.Destination), time.Now())

	result, err = publisher.Publish(ctx, post, credential)
	if err != nil {
		return nil, err
	}
	if result == nil || result.ProviderPostID == "" {
		return nil, platform.RetryableError("publisher returned no provider post id")
	}
	return result, nil
}

func (s *publishService) recordSuccess(ctx context.Context, post *models.Post, claimToken string, result *platform.PublishResult) error {
	if err := s.rateLimiter.Commit(ctx, post.BrandID, post.Destination); err != nil {
		slog.Error("failed to commit rate window", "post_id", post.ID, "error", err)
	}

	now := s.clock.Now()
	post.Status = models.PostStatusPosted
	post.ProviderPostID = result.ProviderPostID
	post.ProviderAccountID = result.ProviderAccountID
	post.PostedAt = &now
	post.RetryCount = 0
	post.NextRetryAt = nil
	post.LastError = ""
	post.ClaimToken = nil
	post.ClaimedAt = nil
	post.UpdatedAt = now

	event := &models.PostEvent{
		EventType: models.EventPosted,
		Message:   "published",
		Metadata:  map[string]string{"provider_post_id": result.ProviderPostID},
	}

	slog.Info("post published", "post_id", post.ID, "destination", post.Destination, "provider_post_id", result.ProviderPostID)
	return s.save(ctx, post, claimToken, event, "posted")
}

// recordInvalid fails the post without spending retry budget.
func (s *publishService) recordInvalid(ctx context.Context, post *models.Post, claimToken string, cause error) error {
	now := s.clock.Now()
	post.Status = models.PostStatusFailed
	post.NextRetryAt = nil
	post.LastError = cause.Error()
	post.ErrorLog = append(post.ErrorLog, cause.Error())
	post.ClaimToken = nil
	post.ClaimedAt = nil
	post.UpdatedAt = now

	event := &models.PostEvent{EventType: models.EventFailed, Message: cause.Error()}

	slog.Info("post failed validation", "post_id", post.ID, "error", cause)
	return s.save(ctx, post, claimToken, event, "invalid")
}

// recordDeferred puts the post back in the queue until the rate window resets.
func (s *publishService) recordDeferred(ctx context.Context, post *models.Post, claimToken string, resetAt time.Time) error {
	now := s.clock.Now()
	post.Status = models.PostStatusQueued
	post.ScheduledAt = &resetAt
	post.ClaimToken = nil
	post.ClaimedAt = nil
	post.UpdatedAt = now

	event := &models.PostEvent{
		EventType: models.EventRateLimited,
		Message:   fmt.Sprintf("rate limit reached, deferred until %s", resetAt.Format(time.RFC3339)),
		Metadata:  map[string]string{"reset_at": resetAt.Format(time.RFC3339)},
	}

	return s.save(ctx, post, claimToken, event, "deferred")
}

func (s *publishService) recordFailure(ctx context.Context, post *models.Post, claimToken string, cause error) error {
	now := s.clock.Now()

	terminal := platform.IsTerminal(cause)
	var credErr *models.CredentialError
	if errors.As(cause, &credErr) && credErr.Terminal {
		terminal = true
	}

	post.RetryCount++
	exhausted := post.RetryCount >= post.MaxRetries
	if post.RetryCount > post.MaxRetries {
		post.RetryCount = post.MaxRetries
	}

	post.LastError = cause.Error()
	post.ErrorLog = append(post.ErrorLog, cause.Error())
	post.ClaimToken = nil
	post.ClaimedAt = nil
	post.UpdatedAt = now

	event := &models.PostEvent{
		Message:  cause.Error(),
		Metadata: map[string]string{"retry_count": strconv.Itoa(post.RetryCount)},
	}

	outcome := "failed"
	if terminal || exhausted {
		post.Status = models.PostStatusFailed
		post.NextRetryAt = nil
		event.EventType = models.EventFailed
		slog.Warn("post failed", "post_id", post.ID, "retry_count", post.RetryCount, "terminal", terminal, "error", cause)
	} else {
		next := s.backoff.NextRetryAt(now, post.RetryCount)
		post.Status = models.PostStatusRetry
		post.NextRetryAt = &next
		event.EventType = models.EventRetry
		event.Metadata["next_retry_at"] = next.Format(time.RFC3339)
		outcome = "retry"
		slog.Info("post scheduled for retry", "post_id", post.ID, "retry_count", post.RetryCount, "next_retry_at", next, "error", cause)
	}

	return s.save(ctx, post, claimToken, event, outcome)
}

func (s *publishService) save(ctx context.Context, post *models.Post, claimToken string, event *models.PostEvent, outcome string) error {
	err := s.posts.SaveOutcome(ctx, claimToken, post, event)
	if errors.Is(err, models.ErrClaimLost) {
		slog.Warn("claim lost before outcome was recorded", "post_id", post.ID, "outcome", outcome)
		return nil
	}
	if err != nil {
		return err
	}

	metrics.PublishOutcomes.WithLabelValues(string(post.Destination), outcome).Inc()
	return nil
}
