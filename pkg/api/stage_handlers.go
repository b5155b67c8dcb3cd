package api

import (
	"net/http"

	"github.com/nbulygin/teamgate/pkg/access"
	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	stages, err := s.store.ListStagesByProject(r.Context(), project.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("list stages failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if stages == nil {
		stages = []store.Stage{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"stages": stages})
}

type createStageRequest struct {
	Name string `json:"name"`
}

func (s *Server) createStage(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	var req createStageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	stage, err := s.store.CreateStage(r.Context(), project.ID, req.Name)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("create stage failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, stage)
}

// getStage serves the stage the access gate already resolved.
func (s *Server) getStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}
	httputil.WriteSuccess(w, stage)
}

func (s *Server) updateStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}

	var fields store.StageUpdate
	if !httputil.ParseJSONOrError(w, r, &fields) {
		return
	}
	if fields.Name != nil && *fields.Name == "" {
		httputil.WriteValidationError(w, "name must not be empty")
		return
	}
	if fields.ProjectID != nil {
		// Moving a stage requires the target project to exist.
		target, err := s.store.GetProjectByID(r.Context(), *fields.ProjectID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		if target == nil {
			httputil.WriteNotFoundError(w, "target project not found")
			return
		}
	}

	updated, err := s.store.UpdateStage(r.Context(), stage.ID, fields)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("update stage failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if updated == nil {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}

	deleted, err := s.store.DeleteStage(r.Context(), stage.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("delete stage failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !deleted {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}
	httputil.WriteNoContent(w)
}
