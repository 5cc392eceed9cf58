package apikeys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-pm/tessera/internal/shared"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	FindByDigest(ctx context.Context, digest string) (APIKey, error)
	Upsert(ctx context.Context, userID int64, digest string) (APIKey, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Deactivate(ctx context.Context, userID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// FindByDigest fetches an active key row by digest.
func (r *PGRepository) FindByDigest(ctx context.Context, digest string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, digest, active, created_at, last_used_at
		  FROM api_keys WHERE digest = $1 AND active`,
		digest,
	).Scan(&key.ID, &key.UserID, &key.Digest, &key.Active, &key.CreatedAt, &key.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, fmt.Errorf("api key: %w", shared.ErrNotFound)
	}
	if err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// Upsert replaces the user's key with a new digest. A reissued key
// invalidates the previous one.
func (r *PGRepository) Upsert(ctx context.Context, userID int64, digest string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (user_id, digest, active, created_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id)
		DO UPDATE SET digest = EXCLUDED.digest, active = TRUE, created_at = now(), last_used_at = NULL
		RETURNING id, user_id, digest, active, created_at, last_used_at`,
		userID, digest,
	).Scan(&key.ID, &key.UserID, &key.Digest, &key.Active, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// TouchLastUsed records key usage.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Deactivate disables the user's key; shared.ErrNotFound when none exists.
func (r *PGRepository) Deactivate(ctx context.Context, userID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET active = FALSE WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key for user %d: %w", userID, shared.ErrNotFound)
	}
	return nil
}
