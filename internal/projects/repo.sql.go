package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const projectColumns = `p.id, p.course_id, p.name, p.description, p.created_at, p.updated_at`

// List returns the projects visible through the policy filter.
func (r *Repository) List(ctx context.Context, f authz.Filter) ([]Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects p WHERE %s ORDER BY p.id`, projectColumns, f.Rebind(1))
	rows, err := r.pool.Query(ctx, query, f.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.CourseID, &project.Name, &project.Description,
			&project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// Get fetches one project.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	var project Project
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM projects p WHERE p.id = $1`, projectColumns), id,
	).Scan(&project.ID, &project.CourseID, &project.Name, &project.Description,
		&project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Create inserts a project. courseID may be nil for independent projects.
func (r *Repository) Create(ctx context.Context, courseID *int64, name, description string) (Project, error) {
	var project Project
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (course_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, course_id, name, description, created_at, updated_at`,
		courseID, name, description,
	).Scan(&project.ID, &project.CourseID, &project.Name, &project.Description,
		&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Update rewrites the mutable fields.
func (r *Repository) Update(ctx context.Context, id int64, name, description string) (Project, error) {
	var project Project
	err := r.pool.QueryRow(ctx, `
		UPDATE projects SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		RETURNING id, course_id, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&project.ID, &project.CourseID, &project.Name, &project.Description,
		&project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Delete removes a project and cascades to members and sprints.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListMembers returns the project roster.
func (r *Repository) ListMembers(ctx context.Context, projectID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT project_id, user_id, added_at
		  FROM project_members
		 WHERE project_id = $1
		 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember enrolls a user; shared.ErrDuplicate if already on the project.
func (r *Repository) AddMember(ctx context.Context, projectID, userID int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		INSERT INTO project_members (project_id, user_id, added_at)
		VALUES ($1, $2, now())
		RETURNING project_id, user_id, added_at`,
		projectID, userID,
	).Scan(&m.ProjectID, &m.UserID, &m.AddedAt)
	if db.IsUniqueViolation(err) {
		return Member{}, fmt.Errorf("user %d already on project %d: %w", userID, projectID, shared.ErrDuplicate)
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// RemoveMember drops a user from the project.
func (r *Repository) RemoveMember(ctx context.Context, projectID, userID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d on project %d: %w", userID, projectID, shared.ErrNotFound)
	}
	return nil
}

// CreateSprint opens a new iteration on the project.
func (r *Repository) CreateSprint(ctx context.Context, projectID int64, name string, startsAt, endsAt time.Time) (Sprint, error) {
	var s Sprint
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sprints (project_id, name, starts_at, ends_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, project_id, name, starts_at, ends_at, created_at`,
		projectID, name, startsAt, endsAt,
	).Scan(&s.ID, &s.ProjectID, &s.Name, &s.StartsAt, &s.EndsAt, &s.CreatedAt)
	if err != nil {
		return Sprint{}, err
	}
	return s, nil
}

// ListSprints returns the project's sprints in start order.
func (r *Repository) ListSprints(ctx context.Context, projectID int64) ([]Sprint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, name, starts_at, ends_at, created_at
		  FROM sprints
		 WHERE project_id = $1
		 ORDER BY starts_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sprints []Sprint
	for rows.Next() {
		var s Sprint
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.StartsAt, &s.EndsAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sprints = append(sprints, s)
	}
	return sprints, rows.Err()
}
