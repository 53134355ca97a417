package clients

import (
	"context"
	"database/sql"
	"time"
)

// Repository persists API clients and their refresh tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertClient ensures a client record exists.
func (r *Repository) UpsertClient(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (client_id)
		VALUES ($1)
		ON CONFLICT (client_id) DO NOTHING
	`, clientID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, clientID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (client_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, clientID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks an active token revoked and reports whether one
// was found.
func (r *Repository) RevokeRefreshToken(ctx context.Context, clientID, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE client_id = $1 AND token = $2 AND NOT revoked AND expires_at > NOW()
	`, clientID, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
