package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tessera-pm/tessera/internal/platform/httpx"
	"github.com/tessera-pm/tessera/internal/shared"
)

// SessionSource resolves an opaque session token to its principal snapshot.
// shared.ErrNotFound marks an unknown or expired token.
type SessionSource interface {
	Principal(ctx context.Context, token string) (shared.Principal, error)
}

// APIKeySource resolves a raw API key to a principal for external callers.
type APIKeySource interface {
	Authenticate(ctx context.Context, rawKey string) (shared.Principal, error)
}

// DecisionRecorder counts terminal authorization decisions.
type DecisionRecorder interface {
	Decision(decision, reason string)
}

// APIKeyHeader carries the external caller's key.
const APIKeyHeader = "x-api-key"

// Guard orchestrates per-request authorization: session lookup, the coarse
// action check (scoped for course/project routes), then policy dispatch.
// A request is wholly allowed or wholly denied; on allow the principal and
// the policy's collection filter are attached to the request context.
type Guard struct {
	Sessions   SessionSource
	APIKeys    APIKeySource
	Authority  *Authority
	Policies   *Registry
	CookieName string
	Logger     *slog.Logger
	Decisions  DecisionRecorder
}

type scope int

const (
	scopeNone scope = iota
	scopeCourse
	scopeProject
)

// Require guards an unscoped route: the action is checked against the
// session's basic role.
func (g *Guard) Require(action Action, kind PolicyKind) func(http.Handler) http.Handler {
	return g.middleware(action, kind, scopeNone)
}

// RequireForCourse guards a course-scoped route: the principal's effective
// role for the course in the URL decides the action check.
func (g *Guard) RequireForCourse(action Action, kind PolicyKind) func(http.Handler) http.Handler {
	return g.middleware(action, kind, scopeCourse)
}

// RequireForProject guards a project-scoped route; the project's owning
// course supplies the scope.
func (g *Guard) RequireForProject(action Action, kind PolicyKind) func(http.Handler) http.Handler {
	return g.middleware(action, kind, scopeProject)
}

func (g *Guard) middleware(action Action, kind PolicyKind, sc scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(g.CookieName)
			if err != nil || cookie.Value == "" {
				g.deny(w, "missing_token", shared.ErrUnauthenticated)
				return
			}

			ctx := r.Context()
			principal, err := g.Sessions.Principal(ctx, cookie.Value)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					g.deny(w, "unknown_session", shared.ErrUnauthenticated)
					return
				}
				g.fail(w, "session lookup", err)
				return
			}

			g.authorize(w, r, next, principal, action, kind, sc)
		})
	}
}

// RequireAPIKey guards a route on the external API surface. The principal
// is derived from the API key's owning user; the action and policy pipeline
// is identical to the session path.
func (g *Guard) RequireAPIKey(action Action, kind PolicyKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(APIKeyHeader)
			if rawKey == "" {
				g.deny(w, "missing_api_key", shared.ErrUnauthenticated)
				return
			}

			principal, err := g.APIKeys.Authenticate(r.Context(), rawKey)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					g.deny(w, "unknown_api_key", shared.ErrUnauthenticated)
					return
				}
				g.fail(w, "api key lookup", err)
				return
			}

			g.authorize(w, r, next, principal, action, kind, scopeNone)
		})
	}
}

func (g *Guard) authorize(w http.ResponseWriter, r *http.Request, next http.Handler, principal shared.Principal, action Action, kind PolicyKind, sc scope) {
	ctx := r.Context()

	allowed, err := g.actionAllowed(ctx, r, principal, action, sc)
	if err != nil {
		// A missing resource is not an evaluation failure: the route names
		// a row that does not exist.
		if errors.Is(err, shared.ErrNotFound) {
			g.deny(w, "missing_resource", err)
			return
		}
		g.fail(w, "action check", err)
		return
	}
	if !allowed {
		g.deny(w, "action_denied", shared.ErrForbidden)
		return
	}

	outcome, err := g.Policies.Execute(ctx, r, principal, kind)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			g.deny(w, "bad_resource_id", err)
			return
		}
		g.fail(w, "policy dispatch", err)
		return
	}
	if !outcome.Valid {
		g.deny(w, "policy_denied", shared.ErrForbidden)
		return
	}

	if g.Decisions != nil {
		g.Decisions.Decision("allow", "ok")
	}
	ctx = shared.ContextWithPrincipal(ctx, principal)
	if kind != PolicyNone {
		ctx = ContextWithFilter(ctx, outcome.Filter)
	}
	next.ServeHTTP(w, r.WithContext(ctx))
}

// actionAllowed computes the coarse permission. Unscoped routes consult the
// basic role; scoped routes use the effective role for the course resolved
// from the URL, falling back to the basic role when the principal holds no
// assignment in that scope.
func (g *Guard) actionAllowed(ctx context.Context, r *http.Request, principal shared.Principal, action Action, sc scope) (bool, error) {
	if sc == scopeNone {
		return g.Authority.IsActionAllowed(ctx, principal.RoleID, action)
	}

	if principal.IsAdmin || action == ActionNone {
		return true, nil
	}

	var (
		scoped ScopedRole
		err    error
	)
	switch sc {
	case scopeCourse:
		id, present, idErr := resourceID(r, "courseID")
		if idErr != nil {
			return false, idErr
		}
		if !present {
			return g.Authority.IsActionAllowed(ctx, principal.RoleID, action)
		}
		scoped, err = g.Authority.CourseRole(ctx, principal.UserID, id)
	case scopeProject:
		id, present, idErr := resourceID(r, "projectID")
		if idErr != nil {
			return false, idErr
		}
		if !present {
			return g.Authority.IsActionAllowed(ctx, principal.RoleID, action)
		}
		scoped, err = g.Authority.ProjectRole(ctx, principal.UserID, id)
	}
	if err != nil {
		// No scoped override: defer to the basic-role decision.
		if errors.Is(err, ErrNoScopedRole) {
			return g.Authority.IsActionAllowed(ctx, principal.RoleID, action)
		}
		return false, err
	}

	for _, granted := range scoped.Actions {
		if granted == action {
			return true, nil
		}
	}
	return false, nil
}

func (g *Guard) deny(w http.ResponseWriter, reason string, err error) {
	if g.Decisions != nil {
		g.Decisions.Decision("deny", reason)
	}
	httpx.RespondError(w, err)
}

func (g *Guard) fail(w http.ResponseWriter, step string, err error) {
	if g.Logger != nil {
		g.Logger.Error("authorization "+step, slog.Any("error", err))
	}
	if g.Decisions != nil {
		g.Decisions.Decision("error", step)
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
