package api

import (
	"net/http"
	"strconv"

	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

type userUpdateRequest struct {
	Role *store.Role `json:"role"`
}

// validate translates the request into a store update, rejecting unknown
// roles.
func (r userUpdateRequest) validate() (store.UserUpdate, string) {
	if r.Role == nil {
		return store.UserUpdate{}, "role is required"
	}
	if !r.Role.Valid() {
		return store.UserUpdate{}, "role must be one of admin, manager, none"
	}
	return store.UserUpdate{Role: r.Role}, ""
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("get user failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}

	var fields userUpdateRequest
	if !httputil.ParseJSONOrError(w, r, &fields) {
		return
	}
	update, errMsg := fields.validate()
	if errMsg != "" {
		httputil.WriteValidationError(w, errMsg)
		return
	}

	user, err := s.store.UpdateUser(r.Context(), username, update)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("update user failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	username, ok := httputil.ParsePathStringOrError(w, r, "username")
	if !ok {
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), username)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("delete user failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !deleted {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	httputil.WriteNoContent(w)
}

type loginToIDResponse struct {
	Username       string `json:"username"`
	TelegramUserID int64  `json:"telegramUserId"`
}

// loginToID resolves a Telegram username to its numeric id, going
// through the cache and the Bot API.
func (s *Server) loginToID(w http.ResponseWriter, r *http.Request) {
	username := httputil.ParseQueryString(r, "username", "")
	if !httputil.RequireNonEmpty(w, username, "username") {
		return
	}

	id, found, err := s.resolver.ResolveID(r.Context(), username)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("resolve username failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !found {
		httputil.WriteNotFoundError(w, "user not found in Telegram")
		return
	}
	httputil.WriteSuccess(w, loginToIDResponse{Username: username, TelegramUserID: id})
}

// idToLogin resolves a stored Telegram user id back to its username.
func (s *Server) idToLogin(w http.ResponseWriter, r *http.Request) {
	raw := httputil.ParseQueryString(r, "id", "")
	if !httputil.RequireNonEmpty(w, raw, "id") {
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteValidationError(w, "id must be a positive integer")
		return
	}

	user, err := s.store.GetUserByTelegramID(r.Context(), id)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("lookup by id failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	httputil.WriteSuccess(w, loginToIDResponse{Username: user.Username, TelegramUserID: user.TelegramUserID})
}
