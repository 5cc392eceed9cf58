package apikeys

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/platform/httpx"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Handler exposes self-service key management for authenticated users.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers key management routes. Any authenticated session
// may manage its own key.
func (h *Handler) MountRoutes(r chi.Router, guard *authz.Guard) {
	authed := guard.Require(authz.ActionNone, authz.PolicyNone)
	r.With(authed).Post("/", h.handleIssue)
	r.With(authed).Delete("/", h.handleRevoke)
}

type issueResponse struct {
	APIKey string `json:"apiKey"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	raw, err := h.service.Issue(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("issue api key", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// The raw key is returned exactly once.
	httpx.JSON(w, http.StatusCreated, issueResponse{APIKey: raw})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Revoke(r.Context(), principal.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
