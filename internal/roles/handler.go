// Package roles exposes role grant administration endpoints.
package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/platform/httpx"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	authority *authz.Authority
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, authority *authz.Authority) *Handler {
	return &Handler{logger: logger, authority: authority, validator: validator.New()}
}

// MountRoutes registers role routes. Every route requires the admin action.
func (h *Handler) MountRoutes(r chi.Router, guard *authz.Guard) {
	admin := guard.Require(authz.ActionAdmin, authz.PolicyNone)
	r.With(admin).Get("/", h.listGrants)
	r.With(admin).Get("/actions", h.listActions)
	r.With(admin).Post("/{roleID}/actions", h.grant)
	r.With(admin).Delete("/{roleID}/actions/{action}", h.revoke)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.authority.RoleGrants(r.Context())
	if err != nil {
		h.logger.Error("list role grants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, authz.Actions())
}

type grantRequest struct {
	Action authz.Action `json:"action" validate:"required"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.authority.Grant(r.Context(), roleID, req.Action); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"roleId": roleID, "action": req.Action})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	action := authz.Action(chi.URLParam(r, "action"))
	if err := h.authority.Revoke(r.Context(), roleID, action); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
