package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/session"
	"github.com/tessera-pm/tessera/internal/shared"
	_ "github.com/tessera-pm/tessera/testing"
)

type stubUserRepo struct {
	users map[string]*User
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

// stubAuthzRepo is just enough Repository for RoleInformation.
type stubAuthzRepo struct {
	basicRoles  map[int64]int64
	roleActions map[int64][]authz.Action
}

func (s *stubAuthzRepo) HasGrant(context.Context, int64, authz.Action) (bool, error) {
	return false, nil
}
func (s *stubAuthzRepo) InsertGrant(context.Context, int64, authz.Action) error { return nil }
func (s *stubAuthzRepo) DeleteGrant(context.Context, int64, authz.Action) error { return nil }
func (s *stubAuthzRepo) ListRoleGrants(context.Context) ([]authz.RoleGrants, error) {
	return nil, nil
}
func (s *stubAuthzRepo) RoleActions(_ context.Context, roleID int64) ([]authz.Action, error) {
	return s.roleActions[roleID], nil
}
func (s *stubAuthzRepo) BasicRole(_ context.Context, userID int64) (int64, error) {
	return s.basicRoles[userID], nil
}
func (s *stubAuthzRepo) CourseRole(context.Context, int64, int64) (authz.ScopedRole, error) {
	return authz.ScopedRole{}, authz.ErrNoScopedRole
}
func (s *stubAuthzRepo) ScopedRoles(context.Context, int64) ([]authz.ScopedRole, error) {
	return nil, nil
}
func (s *stubAuthzRepo) ProjectCourse(context.Context, int64) (int64, bool, error) {
	return 0, false, nil
}

type memSessionRepo struct {
	sessions map[string]session.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]session.Session)}
}

func (m *memSessionRepo) Insert(_ context.Context, s session.Session) error {
	if _, ok := m.sessions[s.ID]; ok {
		return shared.ErrDuplicate
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessionRepo) Get(_ context.Context, id string) (session.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memSessionRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var purged int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged, nil
}

const testCookieName = "tessera_session"

func newTestHandler(t *testing.T, users map[string]*User, authzRepo authz.Repository) (*Handler, *memSessionRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionRepo := newMemSessionRepo()
	store := session.NewStore(sessionRepo, nil, time.Hour, logger)
	service := NewService(&stubUserRepo{users: users}, authz.NewAuthority(authzRepo))
	handler := NewHandler(logger, service, store, testCookieName, time.Hour, false)
	return handler, sessionRepo
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func postLogin(handler *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)
	return rec
}

func TestLoginSetsCookieAndReturnsRoleInformation(t *testing.T) {
	users := map[string]*User{
		"alice@example.com": {
			ID:           7,
			Email:        "alice@example.com",
			PasswordHash: hashPassword(t, "correct horse"),
			RoleID:       authz.FacultyRoleID,
			IsActive:     true,
		},
	}
	authzRepo := &stubAuthzRepo{
		basicRoles: map[int64]int64{7: authz.FacultyRoleID},
		roleActions: map[int64][]authz.Action{
			authz.FacultyRoleID: {authz.ActionReadCourse, authz.ActionCreateProject},
		},
	}
	handler, sessionRepo := newTestHandler(t, users, authzRepo)

	rec := postLogin(handler, `{"email":"alice@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.UserID)
	assert.Equal(t, authz.FacultyRoleID, resp.RoleID)
	assert.False(t, resp.IsAdmin)
	assert.ElementsMatch(t, []string{"read_course", "create_project"}, resp.Actions)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, testCookieName, cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	_, ok := sessionRepo.sessions[cookie.Value]
	assert.True(t, ok, "cookie value must match a persisted session")
}

func TestLoginWrongPassword(t *testing.T) {
	users := map[string]*User{
		"alice@example.com": {
			ID:           7,
			Email:        "alice@example.com",
			PasswordHash: hashPassword(t, "correct horse"),
			RoleID:       authz.FacultyRoleID,
			IsActive:     true,
		},
	}
	handler, sessionRepo := newTestHandler(t, users, &stubAuthzRepo{})

	rec := postLogin(handler, `{"email":"alice@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sessionRepo.sessions)
}

func TestLoginUnknownUser(t *testing.T) {
	handler, _ := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	rec := postLogin(handler, `{"email":"nobody@example.com","password":"whatever12"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveUser(t *testing.T) {
	users := map[string]*User{
		"bob@example.com": {
			ID:           8,
			Email:        "bob@example.com",
			PasswordHash: hashPassword(t, "correct horse"),
			RoleID:       authz.StudentRoleID,
			IsActive:     false,
		},
	}
	handler, _ := newTestHandler(t, users, &stubAuthzRepo{})

	rec := postLogin(handler, `{"email":"bob@example.com","password":"correct horse"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	handler, _ := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	for name, body := range map[string]string{
		"malformed json": `{"email":`,
		"missing email":  `{"password":"longenough"}`,
		"short password": `{"email":"alice@example.com","password":"short"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postLogin(handler, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLogoutDeletesSessionAndClearsCookie(t *testing.T) {
	handler, sessionRepo := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	ctx := context.Background()
	token, err := handler.sessions.Create(ctx, shared.Principal{UserID: 7, Source: shared.SourceSession})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.handleLogout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sessionRepo.sessions)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Empty(t, cookies[0].Value)
}

func TestLogoutUnknownSessionIsNotFatal(t *testing.T) {
	handler, _ := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "never-issued"})
	rec := httptest.NewRecorder()
	handler.handleLogout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMeReturnsSessionPrincipal(t *testing.T) {
	handler, _ := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	ctx := context.Background()
	token, err := handler.sessions.Create(ctx, shared.Principal{
		UserID:  7,
		Email:   "alice@example.com",
		RoleID:  authz.FacultyRoleID,
		Source:  shared.SourceSession,
		IsAdmin: false,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.handleMe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.UserID)
	assert.Equal(t, "alice@example.com", resp.Email)
}

func TestMeWithoutCookie(t *testing.T) {
	handler, _ := newTestHandler(t, map[string]*User{}, &stubAuthzRepo{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	handler.handleMe(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := rec.Body.String()
	if !strings.Contains(body, "Unauthenticated") {
		t.Fatalf("expected Unauthenticated problem, got %s", body)
	}
}
