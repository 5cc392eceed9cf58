package authz

import (
	"context"
	"fmt"

	"github.com/tessera-pm/tessera/internal/shared"
)

// Repository defines the persistence operations behind the authority.
type Repository interface {
	// HasGrant reports whether a grant row exists for (roleID, action).
	HasGrant(ctx context.Context, roleID int64, action Action) (bool, error)
	// InsertGrant adds a grant; shared.ErrDuplicate when it already exists.
	InsertGrant(ctx context.Context, roleID int64, action Action) error
	// DeleteGrant removes a grant; shared.ErrNotFound when absent.
	DeleteGrant(ctx context.Context, roleID int64, action Action) error
	// ListRoleGrants returns every role except Admin with its actions.
	ListRoleGrants(ctx context.Context) ([]RoleGrants, error)
	// RoleActions returns the actions granted to one role.
	RoleActions(ctx context.Context, roleID int64) ([]Action, error)
	// BasicRole returns a user's global role id.
	BasicRole(ctx context.Context, userID int64) (int64, error)
	// CourseRole returns the single scoped assignment for (user, course);
	// ErrNoScopedRole when none exists.
	CourseRole(ctx context.Context, userID, courseID int64) (ScopedRole, error)
	// ScopedRoles returns every scoped assignment a user holds.
	ScopedRoles(ctx context.Context, userID int64) ([]ScopedRole, error)
	// ProjectCourse resolves a project's owning course id; ok is false for
	// projects without a course.
	ProjectCourse(ctx context.Context, projectID int64) (courseID int64, ok bool, err error)
}

// Authority answers coarse role-to-action questions and resolves scoped
// roles. The Admin role is never materialized as grant rows; its "all
// actions" semantics live here.
type Authority struct {
	repo Repository
}

// NewAuthority constructs an Authority backed by the given repository.
func NewAuthority(repo Repository) *Authority {
	return &Authority{repo: repo}
}

// IsActionAllowed reports whether a role may perform an action. Routes that
// declare no action (ActionNone) are always allowed, as is the Admin role.
func (a *Authority) IsActionAllowed(ctx context.Context, roleID int64, action Action) (bool, error) {
	if action == ActionNone || roleID == AdminRoleID {
		return true, nil
	}
	ok, err := a.repo.HasGrant(ctx, roleID, action)
	if err != nil {
		return false, fmt.Errorf("authz: check grant: %w", err)
	}
	return ok, nil
}

// Grant adds an action to a role. Duplicate grants are rejected by the
// composite uniqueness constraint and surface as shared.ErrDuplicate.
func (a *Authority) Grant(ctx context.Context, roleID int64, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("authz: unknown action %q: %w", action, shared.ErrValidation)
	}
	return a.repo.InsertGrant(ctx, roleID, action)
}

// Revoke removes an action from a role; shared.ErrNotFound when the grant
// does not exist.
func (a *Authority) Revoke(ctx context.Context, roleID int64, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("authz: unknown action %q: %w", action, shared.ErrValidation)
	}
	return a.repo.DeleteGrant(ctx, roleID, action)
}

// RoleGrants lists every role except Admin together with its actions.
// Admin's implicit full grant is intentionally absent.
func (a *Authority) RoleGrants(ctx context.Context) ([]RoleGrants, error) {
	return a.repo.ListRoleGrants(ctx)
}

// CourseRole resolves a user's effective role for one course scope;
// ErrNoScopedRole when the user holds no assignment there.
func (a *Authority) CourseRole(ctx context.Context, userID, courseID int64) (ScopedRole, error) {
	return a.repo.CourseRole(ctx, userID, courseID)
}

// ProjectRole resolves the project's owning course and delegates to
// CourseRole. A project without a course has no scoped assignments.
func (a *Authority) ProjectRole(ctx context.Context, userID, projectID int64) (ScopedRole, error) {
	courseID, ok, err := a.repo.ProjectCourse(ctx, projectID)
	if err != nil {
		return ScopedRole{}, fmt.Errorf("authz: resolve project course: %w", err)
	}
	if !ok {
		return ScopedRole{}, ErrNoScopedRole
	}
	return a.repo.CourseRole(ctx, userID, courseID)
}

// RoleInformation aggregates a user's basic role with every scoped
// assignment: the action union across all scopes, de-duplicated, plus the
// admin flag. Scope-specific guards re-resolve per request instead of
// consulting this aggregate.
func (a *Authority) RoleInformation(ctx context.Context, userID int64) (RoleInformation, error) {
	roleID, err := a.repo.BasicRole(ctx, userID)
	if err != nil {
		return RoleInformation{}, fmt.Errorf("authz: basic role for user %d: %w", userID, err)
	}

	seen := make(map[Action]struct{})
	var union []Action
	add := func(actions []Action) {
		for _, act := range actions {
			if _, ok := seen[act]; ok {
				continue
			}
			seen[act] = struct{}{}
			union = append(union, act)
		}
	}

	basic, err := a.repo.RoleActions(ctx, roleID)
	if err != nil {
		return RoleInformation{}, fmt.Errorf("authz: basic role actions: %w", err)
	}
	add(basic)

	scoped, err := a.repo.ScopedRoles(ctx, userID)
	if err != nil {
		return RoleInformation{}, fmt.Errorf("authz: scoped roles: %w", err)
	}
	for _, sr := range scoped {
		add(sr.Actions)
	}

	return RoleInformation{
		RoleID:  roleID,
		IsAdmin: roleID == AdminRoleID,
		Actions: union,
	}, nil
}
