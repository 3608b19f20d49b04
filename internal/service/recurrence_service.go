package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/maheshrc27/postflow-dispatch/internal/metrics"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/platform"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
	"github.com/robfig/cron/v3"
)

// NextOccurrence returns the first time strictly after after that matches rule, evaluated in loc.
// Rules are standard five-field cron expressions or descriptors such as @daily and @every 1h.
// ok is false when the rule never fires again.
func NextOccurrence(rule string, after time.Time, loc *time.Location) (next time.Time, ok bool, err error) {
	schedule, err := cron.ParseStandard(rule)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid recurrence rule %q: %w", rule, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	next = schedule.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next.UTC(), true, nil
}

func planLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

type RecurrenceService interface {
	DuePlans(ctx context.Context, lookahead time.Duration, limit int) ([]*models.RecurrencePlan, error)
	// Generate creates the next post of an active plan, or deactivates the plan when it is exhausted.
	// It returns a nil post when nothing was generated.
	Generate(ctx context.Context, plan *models.RecurrencePlan) (*models.Post, error)
}

type recurrenceService struct {
	plans             repository.RecurrenceRepository
	defaultMaxRetries int
	clock             Clock
}

func NewRecurrenceService(plans repository.RecurrenceRepository, defaultMaxRetries int, clock Clock) RecurrenceService {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = models.DefaultMaxRetries
	}
	return &recurrenceService{
		plans:             plans,
		defaultMaxRetries: defaultMaxRetries,
		clock:             clock,
	}
}

func (s *recurrenceService) DuePlans(ctx context.Context, lookahead time.Duration, limit int) ([]*models.RecurrencePlan, error) {
	return s.plans.ListDue(ctx, s.clock.Now().Add(lookahead), limit)
}

func (s *recurrenceService) Generate(ctx context.Context, plan *models.RecurrencePlan) (*models.Post, error) {
	if !plan.IsActive {
		return nil, nil
	}

	if err := ValidatePlan(plan); err != nil {
		slog.Warn("deactivating invalid recurrence plan", "plan_id", plan.ID, "error", err)
		return nil, s.deactivate(ctx, plan)
	}

	loc, err := planLocation(plan.Timezone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	after := now
	if plan.LastGeneratedAt != nil {
		after = *plan.LastGeneratedAt
	}

	nextRun, ok, err := NextOccurrence(plan.Rule, after, loc)
	if err != nil {
		return nil, err
	}
	if !ok || (plan.EndAt != nil && nextRun.After(*plan.EndAt)) {
		slog.Info("recurrence plan exhausted", "plan_id", plan.ID)
		return nil, s.deactivate(ctx, plan)
	}

	var nextGeneration *time.Time
	if following, ok, _ := NextOccurrence(plan.Rule, nextRun, loc); ok {
		nextGeneration = &following
	}

	advanced := *plan
	advanced.LastGeneratedAt = &nextRun
	advanced.NextGenerationAt = nextGeneration

	post := s.postFromTemplate(plan, nextRun, now)

	if _, err := s.plans.SaveGeneration(ctx, &advanced, plan.LastGeneratedAt, post); err != nil {
		if errors.Is(err, models.ErrPlanConflict) {
			slog.Info("recurrence plan generated concurrently, skipping", "plan_id", plan.ID)
			return nil, nil
		}
		return nil, err
	}

	plan.LastGeneratedAt = advanced.LastGeneratedAt
	plan.NextGenerationAt = advanced.NextGenerationAt

	metrics.RecurrencesGenerated.Inc()
	slog.Info("recurring post generated", "plan_id", plan.ID, "post_id", post.ID, "scheduled_at", nextRun)
	return post, nil
}

func (s *recurrenceService) postFromTemplate(plan *models.RecurrencePlan, scheduledAt, now time.Time) *models.Post {
	t := plan.Template

	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	planID := plan.ID
	return &models.Post{
		BrandID:     plan.BrandID,
		Destination: t.Destination,
		AccountID:   t.AccountID,
		ContentID:   t.ContentID,
		PlanID:      &planID,
		Caption:     t.Caption,
		Media:       append([]models.Media(nil), t.Media...),
		Hashtags:    append([]string(nil), t.Hashtags...),
		Mentions:    append([]string(nil), t.Mentions...),
		Links:       append([]string(nil), t.Links...),
		ScheduledAt: &scheduledAt,
		Status:      models.InitialStatus(&scheduledAt, now),
		MaxRetries:  maxRetries,
	}
}

func (s *recurrenceService) deactivate(ctx context.Context, plan *models.RecurrencePlan) error {
	if err := s.plans.Deactivate(ctx, plan.ID); err != nil {
		return err
	}
	plan.IsActive = false
	return nil
}

// ValidatePlan checks that a plan can generate posts.
func ValidatePlan(plan *models.RecurrencePlan) error {
	err := validation.ValidateStruct(plan,
		validation.Field(&plan.BrandID, validation.Required),
		validation.Field(&plan.Rule, validation.Required, validation.By(validCronRule)),
		validation.Field(&plan.Timezone, validation.By(validTimezone)),
	)
	if err != nil {
		return err
	}

	t := &plan.Template
	return validation.ValidateStruct(t,
		validation.Field(&t.Destination, validation.Required, validation.By(supportedDestination)),
		validation.Field(&t.MaxRetries, validation.Min(0)),
	)
}

func validCronRule(value interface{}) error {
	rule, _ := value.(string)
	if _, err := cron.ParseStandard(rule); err != nil {
		return errors.New("must be a cron expression or descriptor")
	}
	return nil
}

func validTimezone(value interface{}) error {
	name, _ := value.(string)
	if _, err := planLocation(name); err != nil {
		return errors.New("must be an IANA time zone")
	}
	return nil
}

func supportedDestination(value interface{}) error {
	d, _ := value.(models.Destination)
	if !platform.IsSupported(d) {
		return fmt.Errorf("unsupported destination %q", d)
	}
	return nil
}
