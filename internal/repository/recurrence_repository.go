package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type RecurrenceRepository interface {
	GetByID(ctx context.Context, id int64) (*models.RecurrencePlan, error)
	Create(ctx context.Context, plan *models.RecurrencePlan) (int64, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]*models.RecurrencePlan, error)
	Deactivate(ctx context.Context, id int64) error
	// SaveGeneration creates post and its generation link and advances the plan, all or nothing.
	// It returns models.ErrPlanConflict when last_generated_at no longer equals prevLastGeneratedAt.
	SaveGeneration(ctx context.Context, plan *models.RecurrencePlan, prevLastGeneratedAt *time.Time, post *models.Post) (int64, error)
	GetInstances(ctx context.Context, planID int64) ([]*models.RecurrenceInstance, error)
}

type recurrenceRepository struct {
	db    *sql.DB
	posts PostRepository
}

func NewRecurrenceRepository(db *sql.DB, posts PostRepository) RecurrenceRepository {
	return &recurrenceRepository{db: db, posts: posts}
}

const planColumns = `id, brand_id, rule, timezone, is_active, end_at, last_generated_at, next_generation_at, template,
	created_at, updated_at`

func scanPlan(row rowScanner) (*models.RecurrencePlan, error) {
	var (
		plan     models.RecurrencePlan
		template []byte
	)
	err := row.Scan(&plan.ID, &plan.BrandID, &plan.Rule, &plan.Timezone, &plan.IsActive, &plan.EndAt,
		&plan.LastGeneratedAt, &plan.NextGenerationAt, &template, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(template) > 0 {
		if err := json.Unmarshal(template, &plan.Template); err != nil {
			return nil, err
		}
	}
	return &plan, nil
}

func (r *recurrenceRepository) GetByID(ctx context.Context, id int64) (*models.RecurrencePlan, error) {
	query := `SELECT ` + planColumns + ` FROM recurrence_plans WHERE id = $1`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return plan, nil
}

func (r *recurrenceRepository) Create(ctx context.Context, plan *models.RecurrencePlan) (int64, error) {
	query := `
		INSERT INTO recurrence_plans (brand_id, rule, timezone, is_active, end_at, template)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	template, err := json.Marshal(plan.Template)
	if err != nil {
		return 0, err
	}

	err = r.db.QueryRowContext(ctx, query, plan.BrandID, plan.Rule, plan.Timezone, plan.IsActive, plan.EndAt, template).
		Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return plan.ID, nil
}

func (r *recurrenceRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*models.RecurrencePlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM recurrence_plans
		WHERE is_active = TRUE
			AND (next_generation_at IS NULL OR next_generation_at <= $1)
		ORDER BY next_generation_at ASC NULLS FIRST, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var plans []*models.RecurrencePlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return plans, nil
}

func (r *recurrenceRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE recurrence_plans SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *recurrenceRepository) SaveGeneration(ctx context.Context, plan *models.RecurrencePlan, prevLastGeneratedAt *time.Time, post *models.Post) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	advanceQuery := `
		UPDATE recurrence_plans
		SET last_generated_at = $2,
			next_generation_at = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
			AND is_active = TRUE
			AND last_generated_at IS NOT DISTINCT FROM $4
	`
	result, err := tx.ExecContext(ctx, advanceQuery, plan.ID, plan.LastGeneratedAt, plan.NextGenerationAt, prevLastGeneratedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	if affected != 1 {
		return 0, models.ErrPlanConflict
	}

	postID, err := r.posts.Create(ctx, tx, post)
	if err != nil {
		return 0, err
	}

	linkQuery := `
		INSERT INTO recurrence_instances (plan_id, post_id, scheduled_at)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, linkQuery, plan.ID, postID, post.ScheduledAt); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	event := &models.PostEvent{
		PostID:    postID,
		EventType: models.EventCreated,
		Message:   "generated by recurrence plan",
	}
	if _, err := insertPostEvent(ctx, tx, event); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return postID, nil
}

func (r *recurrenceRepository) GetInstances(ctx context.Context, planID int64) ([]*models.RecurrenceInstance, error) {
	query := `SELECT id, plan_id, post_id, scheduled_at, created_at FROM recurrence_instances WHERE plan_id = $1 ORDER BY scheduled_at ASC`

	rows, err := r.db.QueryContext(ctx, query, planID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var instances []*models.RecurrenceInstance
	for rows.Next() {
		var in models.RecurrenceInstance
		if err := rows.Scan(&in.ID, &in.PlanID, &in.PostID, &in.ScheduledAt, &in.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		instances = append(instances, &in)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return instances, nil
}
