package feedback

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

// Handler manages feedback endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

// MountRoutes registers feedback routes with their guard declarations.
// Reads ride the project read action since students see feedback on their
// own projects; writes are course staff territory.
func (h *Handler) MountRoutes(r chi.Router, guard *authz.Guard) {
	r.With(guard.Require(authz.ActionReadProject, authz.PolicyFeedback)).Get("/", h.list)
	r.With(guard.Require(authz.ActionUpdateCourse, authz.PolicyNone)).Post("/", h.create)

	r.Route("/{feedbackID}", func(r chi.Router) {
		r.With(guard.Require(authz.ActionReadProject, authz.PolicyFeedback)).Get("/", h.get)
		r.With(guard.Require(authz.ActionUpdateCourse, authz.PolicyFeedback)).Put("/", h.update)
		r.With(guard.Require(authz.ActionUpdateCourse, authz.PolicyFeedback)).Delete("/", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := authz.FilterFromContext(r.Context())
	if !ok {
		h.logger.Error("feedback list without policy filter")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	entries, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list feedback", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type createRequest struct {
	SprintID int64  `json:"sprintId" validate:"required"`
	Content  string `json:"content" validate:"required,max=10000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fb, err := h.repo.Create(r.Context(), req.SprintID, principal.UserID, req.Content)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fb)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "feedbackID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fb, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fb)
}

type updateRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "feedbackID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fb, err := h.repo.Update(r.Context(), id, req.Content)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fb)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "feedbackID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return shared.ErrValidation
	}
	if err := h.validator.Struct(target); err != nil {
		return shared.ErrValidation
	}
	return nil
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
