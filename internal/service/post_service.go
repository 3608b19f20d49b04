package service

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
)

// PostService is the operational surface over posts: everything is scoped to the caller's brand.
type PostService interface {
	// PublishNow claims a pending or queued post regardless of its schedule and dispatches it.
	// It reports false when the post was not in a claimable state.
	PublishNow(ctx context.Context, brandID, postID int64) (*models.Post, bool, error)
	GetStatus(ctx context.Context, brandID, postID int64) (*models.Post, error)
	GetEvents(ctx context.Context, brandID, postID int64) ([]*models.PostEvent, error)
	Cancel(ctx context.Context, brandID, postID int64, reason string) (*models.Post, error)
}

type postService struct {
	posts  repository.PostRepository
	events repository.PostEventRepository
	claims ClaimService
	clock  Clock
}

func NewPostService(
	posts repository.PostRepository,
	events repository.PostEventRepository,
	claims ClaimService,
	clock Clock) PostService {
	return &postService{
		posts:  posts,
		events: events,
		claims: claims,
		clock:  clock,
	}
}

func (s *postService) owned(ctx context.Context, brandID, postID int64) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if post == nil || post.BrandID != brandID {
		return nil, models.ErrPostNotFound
	}
	return post, nil
}

func (s *postService) PublishNow(ctx context.Context, brandID, postID int64) (*models.Post, bool, error) {
	post, err := s.owned(ctx, brandID, postID)
	if err != nil {
		return nil, false, err
	}

	dispatched, err := s.claims.ClaimNow(ctx, post.ID)
	if err != nil {
		return nil, false, err
	}

	post, err = s.owned(ctx, brandID, postID)
	if err != nil {
		return nil, false, err
	}
	return post, dispatched, nil
}

func (s *postService) GetStatus(ctx context.Context, brandID, postID int64) (*models.Post, error) {
	return s.owned(ctx, brandID, postID)
}

func (s *postService) GetEvents(ctx context.Context, brandID, postID int64) ([]*models.PostEvent, error) {
	if _, err := s.owned(ctx, brandID, postID); err != nil {
		return nil, err
	}
	return s.events.GetByPostID(ctx, postID)
}

func (s *postService) Cancel(ctx context.Context, brandID, postID int64, reason string) (*models.Post, error) {
	if _, err := s.owned(ctx, brandID, postID); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "cancelled by operator"
	}

	cancelled, err := s.posts.Cancel(ctx, postID, reason, s.clock.Now())
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if !cancelled {
		return nil, models.ErrNotCancellable
	}

	slog.Info("post cancelled", "post_id", postID, "brand_id", brandID)
	return s.owned(ctx, brandID, postID)
}
