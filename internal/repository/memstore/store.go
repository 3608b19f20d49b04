// Package memstore is a mutex-guarded in-memory implementation of the repositories,
// with the same conditional-update semantics as the Postgres store.
package memstore

import (
	"sync"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/repository"
)

type windowKey struct {
	brandID     int64
	destination models.Destination
}

type Store struct {
	mu sync.RWMutex

	posts       map[int64]*models.Post
	events      []*models.PostEvent
	credentials map[int64]*models.OAuthCredential
	windows     map[windowKey]models.RateWindow
	limits      map[windowKey]models.BrandRateLimit
	plans       map[int64]*models.RecurrencePlan
	instances   []*models.RecurrenceInstance

	nextPostID       int64
	nextEventID      int64
	nextCredentialID int64
	nextPlanID       int64
	nextInstanceID   int64
}

func NewStore() *Store {
	return &Store{
		posts:       make(map[int64]*models.Post),
		credentials: make(map[int64]*models.OAuthCredential),
		windows:     make(map[windowKey]models.RateWindow),
		limits:      make(map[windowKey]models.BrandRateLimit),
		plans:       make(map[int64]*models.RecurrencePlan),
	}
}

func (s *Store) Posts() repository.PostRepository { return &postStore{s} }
func (s *Store) Events() repository.PostEventRepository { return &eventStore{s} }
func (s *Store) Credentials() repository.CredentialRepository { return &credentialStore{s} }
func (s *Store) RateWindows() repository.RateWindowRepository { return &windowStore{s} }
func (s *Store) BrandLimits() repository.BrandLimitRepository { return &limitStore{s} }
func (s *Store) Recurrences() repository.RecurrenceRepository { return &planStore{s} }

// appendEvent must be called with mu held for writing.
func (s *Store) appendEvent(event *models.PostEvent) {
	s.nextEventID++
	event.ID = s.nextEventID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	cp.Metadata = cloneMap(event.Metadata)
	s.events = append(s.events, &cp)
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Media = append([]models.Media(nil), p.Media...)
	cp.Hashtags = append([]string(nil), p.Hashtags...)
	cp.Mentions = append([]string(nil), p.Mentions...)
	cp.Links = append([]string(nil), p.Links...)
	cp.ErrorLog = append([]string(nil), p.ErrorLog...)
	cp.PlanID = cloneInt64(p.PlanID)
	cp.ScheduledAt = cloneTime(p.ScheduledAt)
	cp.NextRetryAt = cloneTime(p.NextRetryAt)
	cp.ClaimToken = cloneString(p.ClaimToken)
	cp.ClaimedAt = cloneTime(p.ClaimedAt)
	cp.PostedAt = cloneTime(p.PostedAt)
	return &cp
}

func cloneCredential(c *models.OAuthCredential) *models.OAuthCredential {
	cp := *c
	cp.LastRefreshedAt = cloneTime(c.LastRefreshedAt)
	return &cp
}

func clonePlan(p *models.RecurrencePlan) *models.RecurrencePlan {
	cp := *p
	cp.EndAt = cloneTime(p.EndAt)
	cp.LastGeneratedAt = cloneTime(p.LastGeneratedAt)
	cp.NextGenerationAt = cloneTime(p.NextGenerationAt)
	cp.Template.Media = append([]models.Media(nil), p.Template.Media...)
	cp.Template.Hashtags = append([]string(nil), p.Template.Hashtags...)
	cp.Template.Mentions = append([]string(nil), p.Template.Mentions...)
	cp.Template.Links = append([]string(nil), p.Template.Links...)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
