package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-pm/tessera/internal/shared"
)

type stubSessions struct {
	principals map[string]shared.Principal
	err        error
}

func (s *stubSessions) Principal(_ context.Context, token string) (shared.Principal, error) {
	if s.err != nil {
		return shared.Principal{}, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return shared.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

type stubAPIKeys struct {
	principals map[string]shared.Principal
}

func (s *stubAPIKeys) Authenticate(_ context.Context, rawKey string) (shared.Principal, error) {
	p, ok := s.principals[rawKey]
	if !ok {
		return shared.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

type recordedDecision struct {
	decision string
	reason   string
}

type stubRecorder struct {
	decisions []recordedDecision
}

func (s *stubRecorder) Decision(decision, reason string) {
	s.decisions = append(s.decisions, recordedDecision{decision, reason})
}

func (s *stubRecorder) last(t *testing.T) recordedDecision {
	t.Helper()
	if len(s.decisions) == 0 {
		t.Fatal("no decision recorded")
	}
	return s.decisions[len(s.decisions)-1]
}

const testCookie = "tessera_session"

func newTestGuard(repo *stubRepo, store ConstraintStore, sessions SessionSource, recorder DecisionRecorder) *Guard {
	if store == nil {
		store = &stubStore{counts: map[Resource]int64{}}
	}
	engine := NewEngine(store)
	return &Guard{
		Sessions:   sessions,
		APIKeys:    &stubAPIKeys{},
		Authority:  NewAuthority(repo),
		Policies:   NewRegistry(engine),
		CookieName: testCookie,
		Decisions:  recorder,
	}
}

func serveGuarded(guard *Guard, mw func(http.Handler) http.Handler, pattern string, req *http.Request, next http.HandlerFunc) *httptest.ResponseRecorder {
	if next == nil {
		next = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
	}
	r := chi.NewRouter()
	r.With(mw).Handle(pattern, next)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGuardMissingCookie(t *testing.T) {
	recorder := &stubRecorder{}
	guard := newTestGuard(&stubRepo{}, nil, &stubSessions{}, recorder)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rr := serveGuarded(guard, guard.Require(ActionReadProject, PolicyNone), "/projects", req, nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if last := recorder.last(t); last.reason != "missing_token" {
		t.Fatalf("unexpected reason %q", last.reason)
	}
}

func TestGuardUnknownSession(t *testing.T) {
	recorder := &stubRecorder{}
	guard := newTestGuard(&stubRepo{}, nil, &stubSessions{principals: map[string]shared.Principal{}}, recorder)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "stale-token"})
	rr := serveGuarded(guard, guard.Require(ActionReadProject, PolicyNone), "/projects", req, nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if last := recorder.last(t); last.reason != "unknown_session" {
		t.Fatalf("unexpected reason %q", last.reason)
	}
}

func TestGuardDeniesUngrantedAction(t *testing.T) {
	sessions := &stubSessions{principals: map[string]shared.Principal{
		"tok": {UserID: 7, RoleID: StudentRoleID},
	}}
	recorder := &stubRecorder{}
	guard := newTestGuard(&stubRepo{grants: map[string]bool{}}, nil, sessions, recorder)

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok"})
	rr := serveGuarded(guard, guard.Require(ActionDeleteCourse, PolicyNone), "/courses", req, nil)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if last := recorder.last(t); last.decision != "deny" || last.reason != "action_denied" {
		t.Fatalf("unexpected decision %+v", last)
	}
}

func TestGuardPolicyDenied(t *testing.T) {
	sessions := &stubSessions{principals: map[string]shared.Principal{
		"tok": {UserID: 7, RoleID: StudentRoleID},
	}}
	repo := &stubRepo{grants: map[string]bool{
		grantKey(StudentRoleID, ActionReadProject): true,
	}}
	store := &stubStore{counts: map[Resource]int64{ResourceProject: 0}}
	recorder := &stubRecorder{}
	guard := newTestGuard(repo, store, sessions, recorder)

	req := httptest.NewRequest(http.MethodGet, "/projects/9", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok"})
	rr := serveGuarded(guard, guard.Require(ActionReadProject, PolicyProject), "/projects/{projectID}", req, nil)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if last := recorder.last(t); last.reason != "policy_denied" {
		t.Fatalf("unexpected reason %q", last.reason)
	}
}

func TestGuardScopedRoleFallsBackToBasicRole(t *testing.T) {
	// User 7 holds no assignment on course 3; the basic student role decides.
	sessions := &stubSessions{principals: map[string]shared.Principal{
		"tok": {UserID: 7, RoleID: StudentRoleID},
	}}
	repo := &stubRepo{grants: map[string]bool{
		grantKey(StudentRoleID, ActionReadCourse): true,
	}}
	store := &stubStore{counts: map[Resource]int64{ResourceCourse: 1}}
	recorder := &stubRecorder{}
	guard := newTestGuard(repo, store, sessions, recorder)

	req := httptest.NewRequest(http.MethodGet, "/courses/3", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok"})
	rr := serveGuarded(guard, guard.RequireForCourse(ActionReadCourse, PolicyCourse), "/courses/{courseID}", req, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGuardScopedRoleOverridesBasicRole(t *testing.T) {
	// Student 7 is a TA on course 3: the scoped action set allows
	// update_project even though the basic student role does not.
	sessions := &stubSessions{principals: map[string]shared.Principal{
		"tok": {UserID: 7, RoleID: StudentRoleID},
	}}
	repo := &stubRepo{
		grants:       map[string]bool{},
		projectOwner: map[int64]int64{9: 3},
		courseRoles: map[string]ScopedRole{
			courseKey(7, 3): {
				UserID: 7, CourseID: 3,
				Role:    Role{ID: FacultyRoleID, Name: "TA"},
				Actions: []Action{ActionReadProject, ActionUpdateProject},
			},
		},
	}
	store := &stubStore{counts: map[Resource]int64{ResourceProject: 1}}
	guard := newTestGuard(repo, store, sessions, &stubRecorder{})

	req := httptest.NewRequest(http.MethodPut, "/projects/9", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok"})
	rr := serveGuarded(guard, guard.RequireForProject(ActionUpdateProject, PolicyProject), "/projects/{projectID}", req, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGuardAllowAttachesPrincipalAndFilter(t *testing.T) {
	sessions := &stubSessions{principals: map[string]shared.Principal{
		"tok": {UserID: 7, RoleID: StudentRoleID, Email: "s@example.com"},
	}}
	repo := &stubRepo{grants: map[string]bool{
		grantKey(StudentRoleID, ActionReadProject): true,
	}}
	recorder := &stubRecorder{}
	guard := newTestGuard(repo, nil, sessions, recorder)

	var gotPrincipal shared.Principal
	var gotFilter Filter
	var filterOK bool
	next := func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, _ = shared.PrincipalFromContext(r.Context())
		gotFilter, filterOK = FilterFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok"})
	rr := serveGuarded(guard, guard.Require(ActionReadProject, PolicyProject), "/projects", req, next)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotPrincipal.UserID != 7 {
		t.Fatalf("principal not attached: %+v", gotPrincipal)
	}
	if !filterOK || gotFilter.IsUniversal() {
		t.Fatalf("expected a concrete collection filter, ok=%v", filterOK)
	}
	if last := recorder.last(t); last.decision != "allow" {
		t.Fatalf("unexpected decision %+v", last)
	}
}

func TestGuardAPIKeyPath(t *testing.T) {
	repo := &stubRepo{grants: map[string]bool{
		grantKey(FacultyRoleID, ActionReadProject): true,
	}}
	recorder := &stubRecorder{}
	guard := newTestGuard(repo, nil, &stubSessions{}, recorder)
	guard.APIKeys = &stubAPIKeys{principals: map[string]shared.Principal{
		"raw-key": {UserID: 11, RoleID: FacultyRoleID, Source: shared.SourceAPIKey},
	}}

	req := httptest.NewRequest(http.MethodGet, "/external/projects", nil)
	req.Header.Set(APIKeyHeader, "raw-key")
	rr := serveGuarded(guard, guard.RequireAPIKey(ActionReadProject, PolicyProject), "/external/projects", req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	missing := httptest.NewRequest(http.MethodGet, "/external/projects", nil)
	rr = serveGuarded(guard, guard.RequireAPIKey(ActionReadProject, PolicyProject), "/external/projects", missing, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rr.Code)
	}
	if last := recorder.last(t); last.reason != "missing_api_key" {
		t.Fatalf("unexpected reason %q", last.reason)
	}
}
