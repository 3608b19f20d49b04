package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

// PostRepository stores posts. Every conditional transition appends its audit event
// in the same transaction and reports false when the guard did not match.
type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	FindDueCandidates(ctx context.Context, now, staleBefore time.Time, limit int) ([]*models.Post, error)
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	Claim(ctx context.Context, id int64, token string, now time.Time) (bool, error)
	ClaimImmediate(ctx context.Context, id int64, token string, now time.Time) (bool, error)
	ReleaseStale(ctx context.Context, id int64, oldToken string, staleBefore, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id int64, token string, now time.Time) (bool, error)
	PromoteRetry(ctx context.Context, id int64, now time.Time) (bool, error)
	SaveOutcome(ctx context.Context, token string, post *models.Post, event *models.PostEvent) error
	Cancel(ctx context.Context, id int64, reason string, now time.Time) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, brand_id, destination, account_id, content_id, plan_id, caption, media, hashtags, mentions, links,
	scheduled_at, status, provider_post_id, provider_account_id, retry_count, max_retries, next_retry_at,
	last_error, error_log, claim_token, claimed_at, posted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post  models.Post
		media []byte
	)
	err := row.Scan(
		&post.ID, &post.BrandID, &post.Destination, &post.AccountID, &post.ContentID, &post.PlanID,
		&post.Caption, &media, pq.Array(&post.Hashtags), pq.Array(&post.Mentions), pq.Array(&post.Links),
		&post.ScheduledAt, &post.Status, &post.ProviderPostID, &post.ProviderAccountID, &post.RetryCount,
		&post.MaxRetries, &post.NextRetryAt, &post.LastError, pq.Array(&post.ErrorLog), &post.ClaimToken,
		&post.ClaimedAt, &post.PostedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &post.Media); err != nil {
			return nil, err
		}
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (brand_id, destination, account_id, content_id, plan_id, caption, media, hashtags,
			mentions, links, scheduled_at, status, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	media, err := json.Marshal(post.Media)
	if err != nil {
		return 0, err
	}

	args := []any{
		post.BrandID, post.Destination, post.AccountID, post.ContentID, post.PlanID, post.Caption, media,
		pq.Array(post.Hashtags), pq.Array(post.Mentions), pq.Array(post.Links), post.ScheduledAt, post.Status,
		post.MaxRetries,
	}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return post.ID, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) FindDueCandidates(ctx context.Context, now, staleBefore time.Time, limit int) ([]*models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE (status IN ('pending', 'queued') AND claim_token IS NULL AND (scheduled_at IS NULL OR scheduled_at <= $1))
			OR (status = 'processing' AND claimed_at < $2)
		ORDER BY COALESCE(scheduled_at, created_at) ASC, id ASC
		LIMIT $3
	`
	return r.list(ctx, query, now, staleBefore, limit)
}

func (r *postRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'retry' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC, id ASC
		LIMIT $2
	`
	return r.list(ctx, query, now, limit)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

// transition runs a guarded update and, when exactly one row matched, appends event.
func (r *postRepository) transition(ctx context.Context, event *models.PostEvent, query string, args ...any) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	if affected != 1 {
		return false, nil
	}

	if _, err := insertPostEvent(ctx, tx, event); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return true, nil
}

func (r *postRepository) Claim(ctx context.Context, id int64, token string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claim_token = $2,
			claimed_at = $3,
			status = 'processing',
			updated_at = $3
		WHERE id = $1
			AND claim_token IS NULL
			AND status IN ('pending', 'queued')
			AND (scheduled_at IS NULL OR scheduled_at <= $3)
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventProcessing, Message: "claimed by scheduler"}
	return r.transition(ctx, event, query, id, token, now)
}

func (r *postRepository) ClaimImmediate(ctx context.Context, id int64, token string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claim_token = $2,
			claimed_at = $3,
			status = 'processing',
			updated_at = $3
		WHERE id = $1
			AND claim_token IS NULL
			AND status IN ('pending', 'queued')
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventProcessing, Message: "claimed for immediate publish"}
	return r.transition(ctx, event, query, id, token, now)
}

func (r *postRepository) ReleaseStale(ctx context.Context, id int64, oldToken string, staleBefore, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claim_token = NULL,
			claimed_at = NULL,
			status = 'pending',
			updated_at = $4
		WHERE id = $1
			AND status = 'processing'
			AND claim_token = $2
			AND claimed_at < $3
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventClaimExpired, Message: "stale claim released"}
	return r.transition(ctx, event, query, id, oldToken, staleBefore, now)
}

func (r *postRepository) ReleaseClaim(ctx context.Context, id int64, token string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claim_token = NULL,
			claimed_at = NULL,
			status = 'pending',
			updated_at = $3
		WHERE id = $1
			AND status = 'processing'
			AND claim_token = $2
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventReleased, Message: "dispatch failed, claim released"}
	return r.transition(ctx, event, query, id, token, now)
}

func (r *postRepository) PromoteRetry(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = 'pending',
			next_retry_at = NULL,
			updated_at = $2
		WHERE id = $1
			AND status = 'retry'
			AND claim_token IS NULL
			AND next_retry_at <= $2
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventPending, Message: "retry due"}
	return r.transition(ctx, event, query, id, now)
}

func (r *postRepository) SaveOutcome(ctx context.Context, token string, post *models.Post, event *models.PostEvent) error {
	query := `
		UPDATE posts
		SET status = $3,
			provider_post_id = $4,
			provider_account_id = $5,
			retry_count = $6,
			next_retry_at = $7,
			last_error = $8,
			error_log = $9,
			claim_token = $10,
			claimed_at = $11,
			posted_at = $12,
			scheduled_at = $13,
			updated_at = $14
		WHERE id = $1
			AND claim_token = $2
	`

	event.PostID = post.ID
	ok, err := r.transition(ctx, event, query,
		post.ID, token, post.Status, post.ProviderPostID, post.ProviderAccountID, post.RetryCount,
		post.NextRetryAt, post.LastError, pq.Array(post.ErrorLog), post.ClaimToken, post.ClaimedAt,
		post.PostedAt, post.ScheduledAt, post.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrClaimLost
	}

	return nil
}

func (r *postRepository) Cancel(ctx context.Context, id int64, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = 'cancelled',
			updated_at = $2
		WHERE id = $1
			AND status IN ('pending', 'queued')
			AND claim_token IS NULL
	`
	event := &models.PostEvent{PostID: id, EventType: models.EventCancelled, Message: reason}
	return r.transition(ctx, event, query, id, now)
}
