package memstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type credentialStore struct {
	s *Store
}

func (c *credentialStore) Create(_ context.Context, _ *sql.Tx, cred *models.OAuthCredential) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.nextCredentialID++
	now := time.Now().UTC()
	cred.ID = c.s.nextCredentialID
	cred.IsValid = true
	cred.CreatedAt = now
	cred.UpdatedAt = now
	c.s.credentials[cred.ID] = cloneCredential(cred)
	return cred.ID, nil
}

func (c *credentialStore) GetByID(_ context.Context, id int64) (*models.OAuthCredential, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	cred, ok := c.s.credentials[id]
	if !ok {
		return nil, nil
	}
	return cloneCredential(cred), nil
}

func (c *credentialStore) GetValid(_ context.Context, brandID int64, destination models.Destination, accountID string) (*models.OAuthCredential, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var best *models.OAuthCredential
	for _, cred := range c.s.credentials {
		if !cred.IsValid || cred.BrandID != brandID || cred.Destination != destination {
			continue
		}
		if accountID != "" && cred.AccountID != accountID {
			continue
		}
		if best == nil || cred.UpdatedAt.After(best.UpdatedAt) ||
			(cred.UpdatedAt.Equal(best.UpdatedAt) && cred.ID > best.ID) {
			best = cred
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneCredential(best), nil
}

func (c *credentialStore) ListExpiring(_ context.Context, before time.Time, limit int) ([]*models.OAuthCredential, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var out []*models.OAuthCredential
	for _, cred := range c.s.credentials {
		if cred.IsValid && !cred.ExpiresAt.IsZero() && !cred.ExpiresAt.After(before) && cred.RefreshToken != "" {
			out = append(out, cloneCredential(cred))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *credentialStore) SetToken(_ context.Context, id int64, oldAccessToken string, cred *models.OAuthCredential) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	stored, ok := c.s.credentials[id]
	if !ok || !stored.IsValid || stored.AccessToken != oldAccessToken {
		return models.ErrTokenConflict
	}

	stored.AccessToken = cred.AccessToken
	if cred.RefreshToken != "" {
		stored.RefreshToken = cred.RefreshToken
	}
	stored.ExpiresAt = cred.ExpiresAt
	stored.LastRefreshedAt = cloneTime(cred.LastRefreshedAt)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *credentialStore) Invalidate(_ context.Context, id int64, reason string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if stored, ok := c.s.credentials[id]; ok {
		stored.IsValid = false
		stored.InvalidReason = reason
		stored.UpdatedAt = time.Now().UTC()
	}
	return nil
}
