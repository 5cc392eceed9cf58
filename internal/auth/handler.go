package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tessera-pm/tessera/internal/platform/httpx"
	"github.com/tessera-pm/tessera/internal/session"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	sessions   *session.Store
	validator  *validator.Validate
	cookieName string
	cookieTTL  time.Duration
	secure     bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.Store, cookieName string, cookieTTL time.Duration, secure bool) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		sessions:   sessions,
		validator:  validator.New(),
		cookieName: cookieName,
		cookieTTL:  cookieTTL,
		secure:     secure,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	UserID  int64    `json:"userId"`
	Email   string   `json:"email"`
	RoleID  int64    `json:"roleId"`
	IsAdmin bool     `json:"isAdmin"`
	Actions []string `json:"actions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}

	principal, info, err := h.service.Principal(r.Context(), user)
	if err != nil {
		h.logger.Error("derive principal", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	token, err := h.sessions.Create(r.Context(), principal)
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	http.SetCookie(w, h.sessionCookie(token, h.cookieTTL))

	actions := make([]string, len(info.Actions))
	for i, a := range info.Actions {
		actions[i] = string(a)
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		UserID:  principal.UserID,
		Email:   principal.Email,
		RoleID:  principal.RoleID,
		IsAdmin: principal.IsAdmin,
		Actions: actions,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookieName)
	if err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			// Deleting an already-gone session is not fatal.
			if !errors.Is(err, shared.ErrNotFound) {
				h.logger.Error("delete session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			h.logger.Warn("logout for unknown session")
		}
	}
	http.SetCookie(w, h.sessionCookie("", -time.Hour))
	httpx.NoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	principal, err := h.sessions.Principal(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		h.logger.Error("resolve session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		UserID:  principal.UserID,
		Email:   principal.Email,
		RoleID:  principal.RoleID,
		IsAdmin: principal.IsAdmin,
	})
}

func (h *Handler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = time.Now().Add(ttl)
	}
	return cookie
}
