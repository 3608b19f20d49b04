package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type planStore struct {
	s *Store
}

func (p *planStore) GetByID(_ context.Context, id int64) (*models.RecurrencePlan, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	plan, ok := p.s.plans[id]
	if !ok {
		return nil, nil
	}
	return clonePlan(plan), nil
}

func (p *planStore) Create(_ context.Context, plan *models.RecurrencePlan) (int64, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	p.s.nextPlanID++
	now := time.Now().UTC()
	plan.ID = p.s.nextPlanID
	plan.CreatedAt = now
	plan.UpdatedAt = now
	p.s.plans[plan.ID] = clonePlan(plan)
	return plan.ID, nil
}

func (p *planStore) ListDue(_ context.Context, before time.Time, limit int) ([]*models.RecurrencePlan, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var out []*models.RecurrencePlan
	for _, plan := range p.s.plans {
		if plan.IsActive && (plan.NextGenerationAt == nil || !plan.NextGenerationAt.After(before)) {
			out = append(out, clonePlan(plan))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextGenerationAt, out[j].NextGenerationAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		}
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *planStore) Deactivate(_ context.Context, id int64) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if plan, ok := p.s.plans[id]; ok {
		plan.IsActive = false
		plan.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (p *planStore) SaveGeneration(_ context.Context, plan *models.RecurrencePlan, prevLastGeneratedAt *time.Time, post *models.Post) (int64, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	stored, ok := p.s.plans[plan.ID]
	if !ok || !stored.IsActive || !sameTime(stored.LastGeneratedAt, prevLastGeneratedAt) {
		return 0, models.ErrPlanConflict
	}

	stored.LastGeneratedAt = cloneTime(plan.LastGeneratedAt)
	stored.NextGenerationAt = cloneTime(plan.NextGenerationAt)
	stored.UpdatedAt = time.Now().UTC()

	postID := p.s.createPost(post)

	p.s.nextInstanceID++
	p.s.instances = append(p.s.instances, &models.RecurrenceInstance{
		ID:          p.s.nextInstanceID,
		PlanID:      plan.ID,
		PostID:      postID,
		ScheduledAt: *post.ScheduledAt,
		CreatedAt:   stored.UpdatedAt,
	})

	p.s.appendEvent(&models.PostEvent{
		PostID:    postID,
		EventType: models.EventCreated,
		Message:   "generated by recurrence plan",
	})

	return postID, nil
}

func (p *planStore) GetInstances(_ context.Context, planID int64) ([]*models.RecurrenceInstance, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var out []*models.RecurrenceInstance
	for _, in := range p.s.instances {
		if in.PlanID == planID {
			cp := *in
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
