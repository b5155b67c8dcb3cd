package api

import (
	"net/http"

	"github.com/nbulygin/teamgate/pkg/access"
	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

type projectListResponse struct {
	Projects []store.Project `json:"projects"`
	Total    int             `json:"total"`
	Offset   int             `json:"offset"`
	Limit    int             `json:"limit"`
}

// listProjects returns the projects visible to the caller: all of them
// for an admin, assigned ones for a manager, none for anyone else.
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", s.pagination.DefaultLimit)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	if limit > s.pagination.MaxLimit {
		limit = s.pagination.MaxLimit
	}

	resp := projectListResponse{
		Projects: []store.Project{},
		Offset:   offset,
		Limit:    limit,
	}

	user, ok := access.CurrentUser(ctx)
	if !ok {
		httputil.WriteSuccess(w, resp)
		return
	}

	var projects []store.Project
	var total int
	switch user.Role {
	case store.RoleAdmin:
		projects, total, err = s.store.ListProjects(ctx, offset, limit)
	case store.RoleManager:
		projects, total, err = s.store.ListProjectsByManager(ctx, user.TelegramUserID, offset, limit)
	default:
		httputil.WriteSuccess(w, resp)
		return
	}
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("list projects failed")
		httputil.WriteInternalError(w, err)
		return
	}

	if projects != nil {
		resp.Projects = projects
	}
	resp.Total = total
	httputil.WriteSuccess(w, resp)
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	project, err := s.store.CreateProject(r.Context(), req.Name)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("create project failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// getProject serves the project the access gate already resolved.
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	var fields store.ProjectUpdate
	if !httputil.ParseJSONOrError(w, r, &fields) {
		return
	}
	if fields.Name != nil && *fields.Name == "" {
		httputil.WriteValidationError(w, "name must not be empty")
		return
	}

	updated, err := s.store.UpdateProject(r.Context(), project.ID, fields)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("update project failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if updated == nil {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	deleted, err := s.store.DeleteProject(r.Context(), project.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("delete project failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !deleted {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}
	httputil.WriteNoContent(w)
}
