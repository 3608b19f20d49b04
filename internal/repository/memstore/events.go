package memstore

import (
	"context"
	"database/sql"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type eventStore struct {
	s *Store
}

func (e *eventStore) Create(_ context.Context, _ *sql.Tx, event *models.PostEvent) (int64, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	e.s.appendEvent(event)
	return event.ID, nil
}

func (e *eventStore) GetByPostID(_ context.Context, postID int64) ([]*models.PostEvent, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	var out []*models.PostEvent
	for _, event := range e.s.events {
		if event.PostID == postID {
			cp := *event
			cp.Metadata = cloneMap(event.Metadata)
			out = append(out, &cp)
		}
	}
	return out, nil
}
