package projects

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/platform/httpx"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Handler manages project endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

// MountRoutes registers project routes with their guard declarations. Item
// routes resolve the scoped role through the project's owning course.
func (h *Handler) MountRoutes(r chi.Router, guard *authz.Guard) {
	r.With(guard.Require(authz.ActionReadProject, authz.PolicyProject)).Get("/", h.list)
	r.With(guard.Require(authz.ActionCreateProject, authz.PolicyNone)).Post("/", h.create)

	r.Route("/{projectID}", func(r chi.Router) {
		r.With(guard.RequireForProject(authz.ActionReadProject, authz.PolicyProject)).Get("/", h.get)
		r.With(guard.RequireForProject(authz.ActionUpdateProject, authz.PolicyProject)).Put("/", h.update)
		r.With(guard.RequireForProject(authz.ActionDeleteProject, authz.PolicyProject)).Delete("/", h.remove)
		r.With(guard.RequireForProject(authz.ActionReadProject, authz.PolicyProject)).Get("/members", h.listMembers)
		r.With(guard.RequireForProject(authz.ActionUpdateProject, authz.PolicyProject)).Post("/members", h.addMember)
		r.With(guard.RequireForProject(authz.ActionUpdateProject, authz.PolicyProject)).Delete("/members/{userID}", h.removeMember)
		r.With(guard.RequireForProject(authz.ActionReadProject, authz.PolicyProject)).Get("/sprints", h.listSprints)
		r.With(guard.RequireForProject(authz.ActionUpdateProject, authz.PolicyProject)).Post("/sprints", h.createSprint)
	})
}

// MountExternalRoutes exposes the project list to API key callers.
func (h *Handler) MountExternalRoutes(r chi.Router, guard *authz.Guard) {
	r.With(guard.RequireAPIKey(authz.ActionReadProject, authz.PolicyProject)).Get("/projects", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, ok := authz.FilterFromContext(r.Context())
	if !ok {
		h.logger.Error("project list without policy filter")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	projects, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list projects", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projects)
}

type projectRequest struct {
	CourseID    *int64 `json:"courseId"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.repo.Create(r.Context(), req.CourseID, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.repo.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req projectRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.repo.Update(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
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
	id, err := pathID(r, "projectID")
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
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req memberRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	member, err := h.repo.AddMember(r.Context(), id, req.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.RemoveMember(r.Context(), projectID, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type sprintRequest struct {
	Name     string    `json:"name" validate:"required,max=200"`
	StartsAt time.Time `json:"startsAt" validate:"required"`
	EndsAt   time.Time `json:"endsAt" validate:"required,gtfield=StartsAt"`
}

func (h *Handler) createSprint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req sprintRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sprint, err := h.repo.CreateSprint(r.Context(), id, req.Name, req.StartsAt, req.EndsAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sprint)
}

func (h *Handler) listSprints(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sprints, err := h.repo.ListSprints(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sprints)
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
