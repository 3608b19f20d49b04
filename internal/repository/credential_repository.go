package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow-dispatch/internal/models"
)

type CredentialRepository interface {
	Create(ctx context.Context, tx *sql.Tx, c *models.OAuthCredential) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.OAuthCredential, error)
	GetValid(ctx context.Context, brandID int64, destination models.Destination, accountID string) (*models.OAuthCredential, error)
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]*models.OAuthCredential, error)
	SetToken(ctx context.Context, id int64, oldAccessToken string, c *models.OAuthCredential) error
	Invalidate(ctx context.Context, id int64, reason string) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, brand_id, destination, account_id, access_token, refresh_token, expires_at, is_valid,
	invalid_reason, last_refreshed_at, created_at, updated_at`

func scanCredential(row rowScanner) (*models.OAuthCredential, error) {
	var (
		c         models.OAuthCredential
		expiresAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.BrandID, &c.Destination, &c.AccountID, &c.AccessToken, &c.RefreshToken, &expiresAt,
		&c.IsValid, &c.InvalidReason, &c.LastRefreshedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	return &c, nil
}

// nullableExpiry stores a zero expiry as NULL, meaning the token does not expire.
func nullableExpiry(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (r *credentialRepository) Create(ctx context.Context, tx *sql.Tx, c *models.OAuthCredential) (int64, error) {
	query := `
		INSERT INTO oauth_credentials (
			brand_id,
			destination,
			account_id,
			access_token,
			refresh_token,
			expires_at,
			is_valid
		)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id
	`

	args := []any{c.BrandID, c.Destination, c.AccountID, c.AccessToken, c.RefreshToken, nullableExpiry(c.ExpiresAt)}

	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&c.ID)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&c.ID)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	c.IsValid = true
	return c.ID, nil
}

func (r *credentialRepository) GetByID(ctx context.Context, id int64) (*models.OAuthCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM oauth_credentials WHERE id = $1`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return c, nil
}

// GetValid returns the most recently updated valid credential. An empty accountID matches any account.
func (r *credentialRepository) GetValid(ctx context.Context, brandID int64, destination models.Destination, accountID string) (*models.OAuthCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM oauth_credentials
		WHERE brand_id = $1
			AND destination = $2
			AND ($3::text = '' OR account_id = $3)
			AND is_valid = TRUE
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, brandID, destination, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return c, nil
}

func (r *credentialRepository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*models.OAuthCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM oauth_credentials
		WHERE is_valid = TRUE
			AND expires_at IS NOT NULL
			AND expires_at <= $1
			AND refresh_token <> ''
		ORDER BY expires_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.OAuthCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return creds, nil
}

// SetToken replaces the tokens only while the stored access token still equals oldAccessToken.
func (r *credentialRepository) SetToken(ctx context.Context, id int64, oldAccessToken string, c *models.OAuthCredential) error {
	query := `
		UPDATE oauth_credentials
		SET
			access_token = $3,
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			expires_at = $5,
			last_refreshed_at = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2 AND is_valid = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, id, oldAccessToken, c.AccessToken, c.RefreshToken,
		nullableExpiry(c.ExpiresAt), c.LastRefreshedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("credential token changed concurrently", "credential_id", id)
		return models.ErrTokenConflict
	}

	return nil
}

func (r *credentialRepository) Invalidate(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE oauth_credentials
		SET is_valid = FALSE,
			invalid_reason = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
