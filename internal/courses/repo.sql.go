package courses

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

const courseColumns = `c.id, c.code, c.name, c.description, c.created_at, c.updated_at`

// List returns the courses visible through the policy filter.
func (r *Repository) List(ctx context.Context, f authz.Filter) ([]Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c WHERE %s ORDER BY c.id`, courseColumns, f.Rebind(1))
	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var course Course
		if err := rows.Scan(&course.ID, &course.Code, &course.Name, &course.Description,
			&course.CreatedAt, &course.UpdatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// Get fetches one course.
func (r *Repository) Get(ctx context.Context, id int64) (Course, error) {
	var course Course
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM courses c WHERE c.id = $1`, courseColumns), id,
	).Scan(&course.ID, &course.Code, &course.Name, &course.Description,
		&course.CreatedAt, &course.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, fmt.Errorf("course %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

// Create inserts a course; shared.ErrDuplicate when the code is taken.
func (r *Repository) Create(ctx context.Context, code, name, description string) (Course, error) {
	var course Course
	err := r.pool.QueryRow(ctx, `
		INSERT INTO courses (code, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, code, name, description, created_at, updated_at`,
		code, name, description,
	).Scan(&course.ID, &course.Code, &course.Name, &course.Description,
		&course.CreatedAt, &course.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Course{}, fmt.Errorf("course code %s: %w", code, shared.ErrDuplicate)
	}
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

// Update rewrites the mutable fields.
func (r *Repository) Update(ctx context.Context, id int64, name, description string) (Course, error) {
	var course Course
	err := r.pool.QueryRow(ctx, `
		UPDATE courses SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		RETURNING id, code, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&course.ID, &course.Code, &course.Name, &course.Description,
		&course.CreatedAt, &course.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, fmt.Errorf("course %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

// Delete removes a course; shared.ErrNotFound when absent.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("course %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListMembers returns every scoped role assignment for a course.
func (r *Repository) ListMembers(ctx context.Context, courseID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT course_id, user_id, role_id, added_at
		  FROM course_members WHERE course_id = $1 ORDER BY user_id`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CourseID, &m.UserID, &m.RoleID, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember creates a scoped role assignment. The (user, course) uniqueness
// constraint rejects a second assignment in the same scope.
func (r *Repository) AddMember(ctx context.Context, courseID, userID, roleID int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		INSERT INTO course_members (course_id, user_id, role_id, added_at)
		VALUES ($1, $2, $3, now())
		RETURNING course_id, user_id, role_id, added_at`,
		courseID, userID, roleID,
	).Scan(&m.CourseID, &m.UserID, &m.RoleID, &m.AddedAt)
	if db.IsUniqueViolation(err) {
		return Member{}, fmt.Errorf("user %d already in course %d: %w", userID, courseID, shared.ErrDuplicate)
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// RemoveMember deletes a scoped role assignment.
func (r *Repository) RemoveMember(ctx context.Context, courseID, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM course_members WHERE course_id = $1 AND user_id = $2`, courseID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership (%d, %d): %w", courseID, userID, shared.ErrNotFound)
	}
	return nil
}
