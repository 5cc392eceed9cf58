package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-pm/tessera/internal/shared"
)

type stubStore struct {
	counts map[Resource]int64
	err    error
}

func (s *stubStore) CountMatching(_ context.Context, resource Resource, _ Filter, _ int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[resource], nil
}

func requestWithParam(param, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	routeCtx := chi.NewRouteContext()
	if param != "" {
		routeCtx.URLParams.Add(param, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestExecutePolicyNoneIsPermissive(t *testing.T) {
	registry := NewRegistry(NewEngine(&stubStore{}))

	outcome, err := registry.Execute(context.Background(), requestWithParam("", ""), shared.Principal{UserID: 7}, PolicyNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid {
		t.Fatal("PolicyNone must always be valid")
	}
}

func TestExecuteUnregisteredKind(t *testing.T) {
	registry := &Registry{handlers: map[PolicyKind]PolicyHandler{}}

	_, err := registry.Execute(context.Background(), requestWithParam("", ""), shared.Principal{UserID: 7}, PolicyProject)
	if !errors.Is(err, ErrPolicyNotRegistered) {
		t.Fatalf("expected ErrPolicyNotRegistered, got %v", err)
	}
}

func TestCollectionModeAttachesFilterWithoutStoreHit(t *testing.T) {
	store := &stubStore{err: errors.New("store must not be consulted")}
	registry := NewRegistry(NewEngine(store))

	outcome, err := registry.Execute(context.Background(), requestWithParam("", ""), shared.Principal{UserID: 7}, PolicyProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid {
		t.Fatal("collection mode is always valid")
	}
	if outcome.Filter.IsUniversal() {
		t.Fatal("non-admin collection filter must not be universal")
	}
}

func TestPointModeRequiresExactlyOneMatch(t *testing.T) {
	store := &stubStore{counts: map[Resource]int64{ResourceProject: 1}}
	registry := NewRegistry(NewEngine(store))

	outcome, err := registry.Execute(context.Background(), requestWithParam("projectID", "9"), shared.Principal{UserID: 7}, PolicyProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid {
		t.Fatal("count of one must validate")
	}

	store.counts[ResourceProject] = 0
	outcome, err = registry.Execute(context.Background(), requestWithParam("projectID", "9"), shared.Principal{UserID: 7}, PolicyProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Valid {
		t.Fatal("count of zero must not validate")
	}
}

func TestPointModeAdminSkipsStore(t *testing.T) {
	store := &stubStore{err: errors.New("store must not be consulted")}
	registry := NewRegistry(NewEngine(store))

	outcome, err := registry.Execute(context.Background(), requestWithParam("courseID", "3"), shared.Principal{UserID: 1, IsAdmin: true}, PolicyCourse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid {
		t.Fatal("admin point check must pass without touching the store")
	}
}

func TestMalformedResourceID(t *testing.T) {
	registry := NewRegistry(NewEngine(&stubStore{}))

	_, err := registry.Execute(context.Background(), requestWithParam("projectID", "banana"), shared.Principal{UserID: 7}, PolicyProject)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
