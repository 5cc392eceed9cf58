package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-pm/tessera/internal/platform/db"
	"github.com/tessera-pm/tessera/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for the authority and
// the constraint store.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)
var _ ConstraintStore = (*PGRepository)(nil)

// HasGrant reports whether a grant row exists.
func (r *PGRepository) HasGrant(ctx context.Context, roleID int64, action Action) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_actions WHERE role_id = $1 AND action = $2)`,
		roleID, string(action),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// InsertGrant adds a grant row. The composite primary key rejects
// duplicates, surfaced as shared.ErrDuplicate.
func (r *PGRepository) InsertGrant(ctx context.Context, roleID int64, action Action) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_actions (role_id, action) VALUES ($1, $2)`,
		roleID, string(action),
	)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("grant (%d, %s): %w", roleID, action, shared.ErrDuplicate)
	}
	return err
}

// DeleteGrant removes a grant row; shared.ErrNotFound when absent.
func (r *PGRepository) DeleteGrant(ctx context.Context, roleID int64, action Action) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_actions WHERE role_id = $1 AND action = $2`,
		roleID, string(action),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grant (%d, %s): %w", roleID, action, shared.ErrNotFound)
	}
	return nil
}

// ListRoleGrants returns every role except Admin with its granted actions.
func (r *PGRepository) ListRoleGrants(ctx context.Context) ([]RoleGrants, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, ra.action
		  FROM roles r
		  LEFT JOIN role_actions ra ON ra.role_id = r.id
		 WHERE r.id <> $1
		 ORDER BY r.id, ra.action`,
		AdminRoleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RoleGrants
	index := make(map[int64]int)
	for rows.Next() {
		var (
			role   Role
			action *string
		)
		if err := rows.Scan(&role.ID, &role.Name, &action); err != nil {
			return nil, err
		}
		i, ok := index[role.ID]
		if !ok {
			i = len(result)
			index[role.ID] = i
			result = append(result, RoleGrants{Role: role})
		}
		if action != nil {
			result[i].Actions = append(result[i].Actions, Action(*action))
		}
	}
	return result, rows.Err()
}

// RoleActions returns the actions granted to one role.
func (r *PGRepository) RoleActions(ctx context.Context, roleID int64) ([]Action, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT action FROM role_actions WHERE role_id = $1 ORDER BY action`, roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, err
		}
		actions = append(actions, Action(action))
	}
	return actions, rows.Err()
}

// BasicRole returns a user's global role id.
func (r *PGRepository) BasicRole(ctx context.Context, userID int64) (int64, error) {
	var roleID int64
	err := r.pool.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1`, userID).Scan(&roleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return roleID, nil
}

// CourseRole returns the single scoped assignment for (user, course) with
// the role's actions; ErrNoScopedRole when none exists.
func (r *PGRepository) CourseRole(ctx context.Context, userID, courseID int64) (ScopedRole, error) {
	sr := ScopedRole{UserID: userID, CourseID: courseID}
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.name
		  FROM course_members cm
		  JOIN roles r ON r.id = cm.role_id
		 WHERE cm.user_id = $1 AND cm.course_id = $2`,
		userID, courseID,
	).Scan(&sr.Role.ID, &sr.Role.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScopedRole{}, ErrNoScopedRole
	}
	if err != nil {
		return ScopedRole{}, err
	}
	sr.Actions, err = r.RoleActions(ctx, sr.Role.ID)
	if err != nil {
		return ScopedRole{}, err
	}
	return sr, nil
}

// ScopedRoles returns every scoped assignment a user holds, each with its
// role's actions.
func (r *PGRepository) ScopedRoles(ctx context.Context, userID int64) ([]ScopedRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cm.course_id, r.id, r.name, ra.action
		  FROM course_members cm
		  JOIN roles r ON r.id = cm.role_id
		  LEFT JOIN role_actions ra ON ra.role_id = r.id
		 WHERE cm.user_id = $1
		 ORDER BY cm.course_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScopedRole
	index := make(map[int64]int)
	for rows.Next() {
		var (
			courseID int64
			role     Role
			action   *string
		)
		if err := rows.Scan(&courseID, &role.ID, &role.Name, &action); err != nil {
			return nil, err
		}
		i, ok := index[courseID]
		if !ok {
			i = len(result)
			index[courseID] = i
			result = append(result, ScopedRole{UserID: userID, CourseID: courseID, Role: role})
		}
		if action != nil {
			result[i].Actions = append(result[i].Actions, Action(*action))
		}
	}
	return result, rows.Err()
}

// ProjectCourse resolves a project's owning course; ok is false for
// independent projects.
func (r *PGRepository) ProjectCourse(ctx context.Context, projectID int64) (int64, bool, error) {
	var courseID *int64
	err := r.pool.QueryRow(ctx, `SELECT course_id FROM projects WHERE id = $1`, projectID).Scan(&courseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("project %d: %w", projectID, shared.ErrNotFound)
	}
	if err != nil {
		return 0, false, err
	}
	if courseID == nil {
		return 0, false, nil
	}
	return *courseID, true, nil
}

// Aliased FROM clauses the constraint fragments are written against.
var resourceTables = map[Resource]string{
	ResourceProject:  "projects p",
	ResourceCourse:   "courses c",
	ResourceUser:     "users u",
	ResourceFeedback: "feedbacks f",
}

var resourceIDColumns = map[Resource]string{
	ResourceProject:  "p.id",
	ResourceCourse:   "c.id",
	ResourceUser:     "u.id",
	ResourceFeedback: "f.id",
}

// CountMatching counts rows matching the filter intersected with {id}.
func (r *PGRepository) CountMatching(ctx context.Context, resource Resource, f Filter, id int64) (int64, error) {
	table, ok := resourceTables[resource]
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", resource)
	}
	query := fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE (%s) AND %s = $%d`,
		table, f.Rebind(1), resourceIDColumns[resource], len(f.Args())+1,
	)
	args := append(append([]any{}, f.Args()...), id)

	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
