package authz

import (
	"context"
	"fmt"
)

// ConstraintStore evaluates a filter against the persistent store: how many
// rows of the resource collection match the filter intersected with the
// singleton {id}.
type ConstraintStore interface {
	CountMatching(ctx context.Context, resource Resource, f Filter, id int64) (int64, error)
}

// Engine performs point checks by materializing a constraint against the
// store. The admin short-circuit lives here, exactly once: a universal
// predicate never touches the store.
type Engine struct {
	store ConstraintStore
}

// NewEngine constructs an Engine over the given store.
func NewEngine(store ConstraintStore) *Engine {
	return &Engine{store: store}
}

// CanManageProject reports whether the user may manage one project.
func (e *Engine) CanManageProject(ctx context.Context, userID, projectID int64, isAdmin bool) (bool, error) {
	return e.canManage(ctx, ResourceProject, ProjectConstraint(userID, isAdmin), projectID)
}

// CanManageCourse reports whether the user may manage one course.
func (e *Engine) CanManageCourse(ctx context.Context, userID, courseID int64, isAdmin bool) (bool, error) {
	return e.canManage(ctx, ResourceCourse, CourseConstraint(userID, isAdmin), courseID)
}

// CanManageFeedback reports whether the user may manage one feedback row.
func (e *Engine) CanManageFeedback(ctx context.Context, userID, feedbackID int64, isAdmin bool) (bool, error) {
	return e.canManage(ctx, ResourceFeedback, FeedbackConstraint(userID, isAdmin), feedbackID)
}

// CanManageUser reports whether the user may manage one user account.
func (e *Engine) CanManageUser(ctx context.Context, userID, targetID int64, isAdmin bool) (bool, error) {
	return e.canManage(ctx, ResourceUser, UserConstraint(userID, isAdmin), targetID)
}

// canManage intersects the constraint with the singleton id and requires the
// result set size to be exactly one. Any other count, including counts above
// one from a miswired constraint, is "no".
func (e *Engine) canManage(ctx context.Context, resource Resource, pred Predicate, id int64) (bool, error) {
	f := pred.Filter()
	if f.IsUniversal() {
		return true, nil
	}
	n, err := e.store.CountMatching(ctx, resource, f, id)
	if err != nil {
		return false, fmt.Errorf("authz: evaluate %s constraint: %w", resource, err)
	}
	return n == 1, nil
}
