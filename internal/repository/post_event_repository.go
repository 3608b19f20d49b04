package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type PostEventRepository interface {
	Create(ctx context.Context, tx *sql.Tx, event *models.PostEvent) (int64, error)
	GetByPostID(ctx context.Context, postID int64) ([]*models.PostEvent, error)
}

type postEventRepository struct {
	db *sql.DB
}

func NewPostEventRepository(db *sql.DB) PostEventRepository {
	return &postEventRepository{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertPostEvent(ctx context.Context, q queryRower, event *models.PostEvent) (int64, error) {
	query := `
		INSERT INTO post_events (post_id, event_type, message, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return 0, err
	}

	err = q.QueryRowContext(ctx, query, event.PostID, event.EventType, event.Message, metadata).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return event.ID, nil
}

func (r *postEventRepository) Create(ctx context.Context, tx *sql.Tx, event *models.PostEvent) (int64, error) {
	if tx != nil {
		return insertPostEvent(ctx, tx, event)
	}
	return insertPostEvent(ctx, r.db, event)
}

func (r *postEventRepository) GetByPostID(ctx context.Context, postID int64) ([]*models.PostEvent, error) {
	query := `SELECT id, post_id, event_type, message, metadata, created_at FROM post_events WHERE post_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var events []*models.PostEvent
	for rows.Next() {
		var (
			e        models.PostEvent
			metadata []byte
		)
		err := rows.Scan(&e.ID, &e.PostID, &e.EventType, &e.Message, &metadata, &e.Timestamp)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				slog.Info(err.Error())
				return nil, err
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return events, nil
}
