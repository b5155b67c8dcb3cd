// Package api exposes the HTTP surface: an explicit route table wiring
// each endpoint to its handler and its ordered list of access gates.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nbulygin/teamgate/pkg/access"
	"github.com/nbulygin/teamgate/pkg/config"
	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/identity"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

// Server is the HTTP API: a router built from the route table, with
// each handler wrapped in that route's gate chain.
type Server struct {
	store      store.Store
	resolver   *identity.Resolver
	gates      *access.Gates
	logger     *observability.Logger
	router     *mux.Router
	pagination config.PaginationConfig
}

// NewServer builds the router from the route table and returns the
// ready-to-serve API.
func NewServer(st store.Store, resolver *identity.Resolver, gates *access.Gates, logger *observability.Logger, pagination config.PaginationConfig) *Server {
	s := &Server{
		store:      st,
		resolver:   resolver,
		gates:      gates,
		logger:     logger,
		router:     mux.NewRouter(),
		pagination: pagination,
	}
	s.setupRoutes()
	return s
}

// route binds a path and method to a handler and the ordered gates that
// must pass before it runs.
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
	gates   []access.Gate
}

func (s *Server) routes() []route {
	auth := s.gates.Authenticate()
	project := s.gates.ProjectAccess()
	stage := s.gates.StageAccess()
	admin := s.gates.RequireRole(store.RoleAdmin)
	adminOrManager := s.gates.RequireRole(store.RoleAdmin, store.RoleManager)

	return []route{
		{http.MethodGet, "/", s.root, nil},
		{http.MethodGet, "/health", s.health, nil},

		{http.MethodGet, "/project", s.listProjects, gateList(auth)},
		{http.MethodPost, "/project", s.createProject, gateList(auth, adminOrManager)},
		{http.MethodGet, "/project/{id}", s.getProject, gateList(auth, project)},
		{http.MethodPatch, "/project/{id}", s.updateProject, gateList(auth, project)},
		{http.MethodDelete, "/project/{id}", s.deleteProject, gateList(auth, project, admin)},

		{http.MethodGet, "/project/{id}/managers", s.listManagers, gateList(auth, project)},
		{http.MethodPost, "/project/{id}/managers/assign", s.assignManager, gateList(auth, project, admin)},
		{http.MethodPost, "/project/{id}/managers/remove", s.removeManager, gateList(auth, project, admin)},

		{http.MethodGet, "/project/{id}/stage", s.listStages, gateList(auth, project)},
		{http.MethodPost, "/project/{id}/stage", s.createStage, gateList(auth, project)},
		{http.MethodGet, "/project/{id}/stage/{stageId}", s.getStage, gateList(auth, stage)},
		{http.MethodPatch, "/project/{id}/stage/{stageId}", s.updateStage, gateList(auth, stage)},
		{http.MethodDelete, "/project/{id}/stage/{stageId}", s.deleteStage, gateList(auth, stage)},

		{http.MethodGet, "/project/{id}/stage/{stageId}/users", s.listStageUsers, gateList(auth, stage)},
		{http.MethodPost, "/project/{id}/stage/{stageId}/users/assign", s.assignStageUser, gateList(auth, stage)},
		{http.MethodPost, "/project/{id}/stage/{stageId}/users/remove", s.removeStageUser, gateList(auth, stage)},

		{http.MethodGet, "/user/login2id", s.loginToID, gateList(auth)},
		{http.MethodGet, "/user/id2login", s.idToLogin, gateList(auth)},
		{http.MethodGet, "/user/{username}", s.getUser, gateList(auth)},
		{http.MethodPatch, "/user/{username}", s.updateUser, gateList(auth, admin)},
		{http.MethodDelete, "/user/{username}", s.deleteUser, gateList(auth, admin)},
	}
}

func gateList(gates ...access.Gate) []access.Gate {
	return gates
}

// setupRoutes registers the route table on the router, wrapping each
// handler in its gate chain.
func (s *Server) setupRoutes() {
	for _, rt := range s.routes() {
		handler := access.Chain(s.logger, rt.gates...)(rt.handler)
		s.router.Handle(rt.path, handler).Methods(rt.method)
	}
}

// ServeHTTP dispatches the request through the underlying router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{
		"name":   "teamgate",
		"status": "ok",
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
