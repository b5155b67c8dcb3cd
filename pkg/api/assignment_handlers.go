package api

import (
	"net/http"

	"github.com/nbulygin/teamgate/pkg/access"
	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

type assignmentRequest struct {
	Username string `json:"username"`
}

type assignResponse struct {
	Assigned bool `json:"assigned"`
}

type removeResponse struct {
	Removed bool `json:"removed"`
}

func (s *Server) listManagers(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	managers, err := s.store.ListManagersByProject(r.Context(), project.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("list managers failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if managers == nil {
		managers = []store.ProjectManager{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"managers": managers})
}

// assignManager assigns the named user as manager of the current
// project, creating the user row on first sight. A duplicate assignment
// is a benign no-op reported as assigned=false.
func (s *Server) assignManager(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	user, done := s.resolveAssignee(w, r)
	if done {
		return
	}

	assigned, err := s.store.AssignManager(r.Context(), project.ID, user.TelegramUserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("assign manager failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignResponse{Assigned: assigned})
}

func (s *Server) removeManager(w http.ResponseWriter, r *http.Request) {
	project, ok := access.CurrentProject(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	user, done := s.lookupAssignee(w, r)
	if done {
		return
	}

	removed, err := s.store.RemoveManager(r.Context(), project.ID, user.TelegramUserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("remove manager failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, removeResponse{Removed: removed})
}

func (s *Server) listStageUsers(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}

	users, err := s.store.ListUsersByStage(r.Context(), stage.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("list stage users failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if users == nil {
		users = []store.StageUser{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}

func (s *Server) assignStageUser(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}

	user, done := s.resolveAssignee(w, r)
	if done {
		return
	}

	assigned, err := s.store.AssignStageUser(r.Context(), stage.ID, user.TelegramUserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("assign stage user failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignResponse{Assigned: assigned})
}

func (s *Server) removeStageUser(w http.ResponseWriter, r *http.Request) {
	stage, ok := access.CurrentStage(r.Context())
	if !ok {
		httputil.WriteNotFoundError(w, "stage not found")
		return
	}

	user, done := s.lookupAssignee(w, r)
	if done {
		return
	}

	removed, err := s.store.RemoveStageUser(r.Context(), stage.ID, user.TelegramUserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("remove stage user failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, removeResponse{Removed: removed})
}

// resolveAssignee reads the username from the body and resolves it to a
// user, lazily creating the row so the assignment has a matching foreign
// key. Reports done=true when the response has been written.
func (s *Server) resolveAssignee(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	var req assignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return nil, true
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return nil, true
	}

	user, err := s.resolver.GetOrCreate(r.Context(), req.Username)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("resolve user failed")
		httputil.WriteInternalError(w, err)
		return nil, true
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found in Telegram")
		return nil, true
	}
	return user, false
}

// lookupAssignee reads the username from the body and looks up the
// stored user without creating one.
func (s *Server) lookupAssignee(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	var req assignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return nil, true
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return nil, true
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("lookup user failed")
		httputil.WriteInternalError(w, err)
		return nil, true
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found")
		return nil, true
	}
	return user, false
}
