package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/platform/db"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.display_name, u.role_id, u.is_active, u.created_at, u.updated_at`

// List returns the users visible through the policy filter.
func (r *Repository) List(ctx context.Context, f authz.Filter) ([]User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u WHERE %s ORDER BY u.id`, userColumns, f.Rebind(1))
	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.RoleID,
			&user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Get fetches one user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM users u WHERE u.id = $1`, userColumns), id,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.RoleID,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Create inserts a user with the given basic role; shared.ErrDuplicate when
// the email is taken.
func (r *Repository) Create(ctx context.Context, email, displayName, passwordHash string, roleID int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, display_name, password_hash, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, now(), now())
		RETURNING id, email, display_name, role_id, is_active, created_at, updated_at`,
		email, displayName, passwordHash, roleID,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.RoleID,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("email %s: %w", email, shared.ErrDuplicate)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateProfile updates the mutable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, displayName string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET display_name = $2, updated_at = now()
		 WHERE id = $1
		RETURNING id, email, display_name, role_id, is_active, created_at, updated_at`,
		id, displayName,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.RoleID,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// SetBasicRole replaces the user's global role.
func (r *Repository) SetBasicRole(ctx context.Context, id, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role_id = $2, updated_at = now() WHERE id = $1`, id, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
