package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-pm/tessera/internal/platform/db"
	"github.com/tessera-pm/tessera/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Insert persists a new session row; shared.ErrDuplicate when the token is
// already in use.
func (r *PGRepository) Insert(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, email, role_id, is_admin, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Principal.UserID, s.Principal.Email, s.Principal.RoleID,
		s.Principal.IsAdmin, s.CreatedAt, s.ExpiresAt,
	)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("session token: %w", shared.ErrDuplicate)
	}
	return err
}

// Get fetches a session row by token.
func (r *PGRepository) Get(ctx context.Context, id string) (Session, error) {
	sess := Session{ID: id, Principal: shared.Principal{Source: shared.SourceSession}}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, role_id, is_admin, created_at, expires_at
		  FROM user_sessions WHERE id = $1`,
		id,
	).Scan(
		&sess.Principal.UserID, &sess.Principal.Email, &sess.Principal.RoleID,
		&sess.Principal.IsAdmin, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session: %w", shared.ErrNotFound)
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Delete removes a session row; shared.ErrNotFound when absent.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session: %w", shared.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed.
func (r *PGRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
