package platform

import (
	"sync"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

// Registry maps destinations to their publisher and refresher adapters.
type Registry struct {
	mu         sync.RWMutex
	publishers map[models.Destination]PlatformPublisher
	refreshers map[models.Destination]TokenRefresher
}

func NewRegistry() *Registry {
	return &Registry{
		publishers: make(map[models.Destination]PlatformPublisher),
		refreshers: make(map[models.Destination]TokenRefresher),
	}
}

func (r *Registry) RegisterPublisher(d models.Destination, p PlatformPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[d] = p
}

func (r *Registry) RegisterRefresher(d models.Destination, t TokenRefresher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshers[d] = t
}

func (r *Registry) Publisher(d models.Destination) (PlatformPublisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[d]
	return p, ok
}

func (r *Registry) Refresher(d models.Destination) (TokenRefresher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.refreshers[d]
	return t, ok
}
