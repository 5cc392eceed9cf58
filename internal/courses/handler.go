package courses

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

// Handler manages course endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

// MountRoutes registers course routes with their guard declarations. Item
// routes resolve the scoped role from the courseID path parameter.
func (h *Handler) MountRoutes(r chi.Router, guard *authz.Guard) {
	r.With(guard.Require(authz.ActionReadCourse, authz.PolicyCourse)).Get("/", h.list)
	r.With(guard.Require(authz.ActionCreateCourse, authz.PolicyNone)).Post("/", h.create)

	r.Route("/{courseID}", func(r chi.Router) {
		r.With(guard.RequireForCourse(authz.ActionReadCourse, authz.PolicyCourse)).Get("/", h.get)
		r.With(guard.RequireForCourse(authz.ActionUpdateCourse, authz.PolicyCourse)).Put("/", h.update)
		r.With(guard.RequireForCourse(authz.ActionDeleteCourse, authz.PolicyCourse)).Delete("/", h.remove)
		r.With(guard.RequireForCourse(authz.ActionReadCourse, authz.PolicyCourse)).Get("/members", h.listMembers)
		r.With(guard.RequireForCourse(authz.ActionUpdateCourse, authz.PolicyCourse)).Post("/members", h.addMember)
		r.With(guard.RequireForCourse(authz.ActionUpdateCourse, authz.PolicyCourse)).Delete("/members/{userID}", h.removeMember)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := authz.FilterFromContext(r.Context())
	if !ok {
		h.logger.Error("course list without policy filter")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	courses, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list courses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, courses)
}

type courseRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	course, err := h.repo.Create(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, course)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	course, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, course)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req courseRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	course, err := h.repo.Update(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, course)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courseID")
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

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	members, err := h.repo.ListMembers(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

type memberRequest struct {
	UserID int64 `json:"userId" validate:"required"`
	RoleID int64 `json:"roleId" validate:"required"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "courseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req memberRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	member, err := h.repo.AddMember(r.Context(), id, req.UserID, req.RoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	courseID, err := pathID(r, "courseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.RemoveMember(r.Context(), courseID, userID); err != nil {
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
