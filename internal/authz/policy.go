package authz

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-pm/tessera/internal/shared"
)

// PolicyKind names a registered row-level policy. Routes declare a kind
// next to their required action; PolicyNone opts out of row-level checks.
type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyProject
	PolicyCourse
	PolicyUser
	PolicyFeedback
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyNone:
		return "none"
	case PolicyProject:
		return "project"
	case PolicyCourse:
		return "course"
	case PolicyUser:
		return "user"
	case PolicyFeedback:
		return "feedback"
	default:
		return fmt.Sprintf("policy(%d)", int(k))
	}
}

// Outcome is a policy verdict plus the reusable collection filter the
// downstream handler may apply to its list query.
type Outcome struct {
	Valid  bool
	Filter Filter
}

// PolicyHandler evaluates one policy kind for a request.
type PolicyHandler interface {
	Evaluate(ctx context.Context, r *http.Request, p shared.Principal) (Outcome, error)
}

// Registry is an immutable kind-to-handler table, built once at startup and
// passed by reference. Dispatching an unregistered kind is a configuration
// error, never a silent allow or deny.
type Registry struct {
	handlers map[PolicyKind]PolicyHandler
}

// NewRegistry builds the registry with the built-in resource policies.
func NewRegistry(engine *Engine) *Registry {
	return &Registry{handlers: map[PolicyKind]PolicyHandler{
		PolicyProject:  projectPolicy{engine},
		PolicyCourse:   coursePolicy{engine},
		PolicyUser:     userPolicy{engine},
		PolicyFeedback: feedbackPolicy{engine},
	}}
}

// Execute dispatches the named policy. PolicyNone always yields a permissive
// outcome with no filter.
func (reg *Registry) Execute(ctx context.Context, r *http.Request, p shared.Principal, kind PolicyKind) (Outcome, error) {
	if kind == PolicyNone {
		return Outcome{Valid: true}, nil
	}
	handler, ok := reg.handlers[kind]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrPolicyNotRegistered, kind)
	}
	return handler.Evaluate(ctx, r, p)
}

// resourceID extracts a numeric id from the chi route params. ok is false
// when the parameter is absent, which marks a collection operation.
func resourceID(r *http.Request, param string) (int64, bool, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be numeric: %w", param, shared.ErrValidation)
	}
	return id, true, nil
}

type projectPolicy struct{ engine *Engine }

func (p projectPolicy) Evaluate(ctx context.Context, r *http.Request, principal shared.Principal) (Outcome, error) {
	constraint := ProjectConstraint(principal.UserID, principal.IsAdmin)
	id, present, err := resourceID(r, "projectID")
	if err != nil {
		return Outcome{}, err
	}
	if !present {
		return Outcome{Valid: true, Filter: constraint.Filter()}, nil
	}
	valid, err := p.engine.CanManageProject(ctx, principal.UserID, id, principal.IsAdmin)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Valid: valid, Filter: constraint.Filter()}, nil
}

type coursePolicy struct{ engine *Engine }

func (p coursePolicy) Evaluate(ctx context.Context, r *http.Request, principal shared.Principal) (Outcome, error) {
	constraint := CourseConstraint(principal.UserID, principal.IsAdmin)
	id, present, err := resourceID(r, "courseID")
	if err != nil {
		return Outcome{}, err
	}
	if !present {
		return Outcome{Valid: true, Filter: constraint.Filter()}, nil
	}
	valid, err := p.engine.CanManageCourse(ctx, principal.UserID, id, principal.IsAdmin)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Valid: valid, Filter: constraint.Filter()}, nil
}

type userPolicy struct{ engine *Engine }

func (p userPolicy) Evaluate(ctx context.Context, r *http.Request, principal shared.Principal) (Outcome, error) {
	constraint := UserConstraint(principal.UserID, principal.IsAdmin)
	id, present, err := resourceID(r, "userID")
	if err != nil {
		return Outcome{}, err
	}
	if !present {
		return Outcome{Valid: true, Filter: constraint.Filter()}, nil
	}
	valid, err := p.engine.CanManageUser(ctx, principal.UserID, id, principal.IsAdmin)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Valid: valid, Filter: constraint.Filter()}, nil
}

type feedbackPolicy struct{ engine *Engine }

func (p feedbackPolicy) Evaluate(ctx context.Context, r *http.Request, principal shared.Principal) (Outcome, error) {
	constraint := FeedbackConstraint(principal.UserID, principal.IsAdmin)
	id, present, err := resourceID(r, "feedbackID")
	if err != nil {
		return Outcome{}, err
	}
	if !present {
		return Outcome{Valid: true, Filter: constraint.Filter()}, nil
	}
	valid, err := p.engine.CanManageFeedback(ctx, principal.UserID, id, principal.IsAdmin)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Valid: valid, Filter: constraint.Filter()}, nil
}
