package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbulygin/teamgate/pkg/contextkeys"
	"github.com/nbulygin/teamgate/pkg/initdata"
	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/store"
)

const testBotToken = "12345:test-token"

type fakeStore struct {
	users    map[int64]*store.User
	projects map[int]*store.Project
	stages   map[int]*store.Stage
	managers map[int][]store.ProjectManager
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]*store.User{},
		projects: map[int]*store.Project{},
		stages:   map[int]*store.Stage{},
		managers: map[int][]store.ProjectManager{},
	}
}

func (f *fakeStore) GetUserByTelegramID(ctx context.Context, id int64) (*store.User, error) {
	return f.users[id], f.err
}

func (f *fakeStore) CreateUser(ctx context.Context, user *store.User) error {
	if f.err != nil {
		return f.err
	}
	if _, exists := f.users[user.TelegramUserID]; exists {
		return store.ErrDuplicate
	}
	f.users[user.TelegramUserID] = user
	return nil
}

func (f *fakeStore) GetProjectByID(ctx context.Context, id int) (*store.Project, error) {
	return f.projects[id], f.err
}

func (f *fakeStore) GetStageByID(ctx context.Context, id int) (*store.Stage, error) {
	return f.stages[id], f.err
}

func (f *fakeStore) ListManagersByProject(ctx context.Context, projectID int) ([]store.ProjectManager, error) {
	return f.managers[projectID], f.err
}

func testGates(st Store) *Gates {
	return NewGates(initdata.NewValidator(testBotToken), st, "/", "/health")
}

func signedHeader(t *testing.T, user initdata.User) string {
	t.Helper()
	raw, err := initdata.NewGenerator(testBotToken).Generate(user)
	require.NoError(t, err)
	return raw
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.DebugLevel, io.Discard)
}

// sink records whether the handler ran and what the gates left in context.
type sink struct {
	called bool
	ctx    context.Context
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.called = true
	s.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestAuthenticate_ValidHeader(t *testing.T) {
	st := newFakeStore()
	st.users[42] = &store.User{TelegramUserID: 42, Username: "nik", Role: store.RoleAdmin}
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project", nil)
	req.Header.Set(InitDataHeader, signedHeader(t, initdata.User{ID: 42, Username: "nik"}))
	rec := httptest.NewRecorder()

	gates.Authenticate().Func(handler).ServeHTTP(rec, req)

	require.True(t, handler.called)
	id, ok := contextkeys.TelegramUserID(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	user, ok := CurrentUser(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, store.RoleAdmin, user.Role)
	result, ok := InitData(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), result.TelegramUserID)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	gates := testGates(newFakeStore())

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project", nil)
	rec := httptest.NewRecorder()

	gates.Authenticate().Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_TamperedHash(t *testing.T) {
	gates := testGates(newFakeStore())
	raw := signedHeader(t, initdata.User{ID: 42})
	// Corrupt the signed payload.
	last := raw[len(raw)-1]
	if last == 'a' {
		raw = raw[:len(raw)-1] + "b"
	} else {
		raw = raw[:len(raw)-1] + "a"
	}

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project", nil)
	req.Header.Set(InitDataHeader, raw)
	rec := httptest.NewRecorder()

	gates.Authenticate().Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_FirstRequestCreatesUser(t *testing.T) {
	st := newFakeStore()
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project", nil)
	req.Header.Set(InitDataHeader, signedHeader(t, initdata.User{ID: 99, Username: "newcomer"}))
	rec := httptest.NewRecorder()

	gates.Authenticate().Func(handler).ServeHTTP(rec, req)

	require.True(t, handler.called)
	user, ok := CurrentUser(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, int64(99), user.TelegramUserID)
	assert.Equal(t, "newcomer", user.Username)
	assert.Equal(t, store.RoleNone, user.Role)

	created, err := st.GetUserByTelegramID(context.Background(), 99)
	require.NoError(t, err)
	require.NotNil(t, created, "first authentication must persist the account")
	assert.Equal(t, store.RoleNone, created.Role)
}

func TestAuthenticate_DoesNotTouchExistingRole(t *testing.T) {
	st := newFakeStore()
	st.users[42] = &store.User{TelegramUserID: 42, Username: "nik", Role: store.RoleManager}
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project", nil)
	req.Header.Set(InitDataHeader, signedHeader(t, initdata.User{ID: 42, Username: "nik"}))
	rec := httptest.NewRecorder()

	gates.Authenticate().Func(handler).ServeHTTP(rec, req)

	require.True(t, handler.called)
	user, ok := CurrentUser(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, store.RoleManager, user.Role)
	assert.Equal(t, store.RoleManager, st.users[42].Role)
}

func TestRequireRole(t *testing.T) {
	st := newFakeStore()
	st.users[1] = &store.User{TelegramUserID: 1, Role: store.RoleAdmin}
	st.users[2] = &store.User{TelegramUserID: 2, Role: store.RoleNone}
	gates := testGates(st)
	gate := gates.RequireRole(store.RoleAdmin, store.RoleManager)

	cases := []struct {
		name       string
		telegramID int64
		wantStatus int
	}{
		{"admin allowed", 1, http.StatusOK},
		{"none forbidden", 2, http.StatusForbidden},
		{"absent row", 3, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &sink{}
			req := httptest.NewRequest(http.MethodDelete, "/project/5", nil)
			req = req.WithContext(contextkeys.WithTelegramUserID(req.Context(), tc.telegramID))
			rec := httptest.NewRecorder()

			gate.Func(handler).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantStatus == http.StatusOK, handler.called)
		})
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	gates := testGates(newFakeStore())

	handler := &sink{}
	req := httptest.NewRequest(http.MethodDelete, "/project/5", nil)
	rec := httptest.NewRecorder()

	gates.RequireRole(store.RoleAdmin).Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProjectAccess(t *testing.T) {
	st := newFakeStore()
	st.projects[5] = &store.Project{ID: 5, Name: "alpha"}
	st.users[1] = &store.User{TelegramUserID: 1, Role: store.RoleAdmin}
	st.users[2] = &store.User{TelegramUserID: 2, Role: store.RoleManager}
	st.users[3] = &store.User{TelegramUserID: 3, Role: store.RoleManager}
	st.users[4] = &store.User{TelegramUserID: 4, Role: store.RoleNone}
	st.managers[5] = []store.ProjectManager{{ProjectID: 5, TelegramUserID: 2}}
	gates := testGates(st)
	gate := gates.ProjectAccess()

	cases := []struct {
		name       string
		telegramID int64
		projectID  string
		wantStatus int
	}{
		{"admin without assignment", 1, "5", http.StatusOK},
		{"assigned manager", 2, "5", http.StatusOK},
		{"unassigned manager", 3, "5", http.StatusForbidden},
		{"role none", 4, "5", http.StatusForbidden},
		{"missing project", 1, "6", http.StatusNotFound},
		{"non-numeric id", 1, "abc", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &sink{}
			req := httptest.NewRequest(http.MethodGet, "/project/"+tc.projectID, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tc.projectID})
			req = req.WithContext(contextkeys.WithTelegramUserID(req.Context(), tc.telegramID))
			rec := httptest.NewRecorder()

			gate.Func(handler).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				project, ok := CurrentProject(handler.ctx)
				require.True(t, ok)
				assert.Equal(t, 5, project.ID)
				_, ok = CurrentUser(handler.ctx)
				assert.True(t, ok)
			}
		})
	}
}

func TestProjectAccess_NoManagersAssigned(t *testing.T) {
	st := newFakeStore()
	st.projects[7] = &store.Project{ID: 7, Name: "empty"}
	st.users[2] = &store.User{TelegramUserID: 2, Role: store.RoleManager}
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project/7", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "7"})
	req = req.WithContext(contextkeys.WithTelegramUserID(req.Context(), 2))
	rec := httptest.NewRecorder()

	gates.ProjectAccess().Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProjectAccess_Unauthenticated(t *testing.T) {
	st := newFakeStore()
	st.projects[5] = &store.Project{ID: 5}
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project/5", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "5"})
	rec := httptest.NewRecorder()

	gates.ProjectAccess().Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStageAccess_AuthorizesAgainstOwningProject(t *testing.T) {
	st := newFakeStore()
	st.projects[5] = &store.Project{ID: 5}
	st.stages[9] = &store.Stage{ID: 9, Name: "build", ProjectID: 5}
	st.users[2] = &store.User{TelegramUserID: 2, Role: store.RoleManager}
	st.users[3] = &store.User{TelegramUserID: 3, Role: store.RoleManager}
	st.managers[5] = []store.ProjectManager{{ProjectID: 5, TelegramUserID: 2}}
	gates := testGates(st)
	gate := gates.StageAccess()

	run := func(telegramID int64) (*httptest.ResponseRecorder, *sink) {
		handler := &sink{}
		req := httptest.NewRequest(http.MethodGet, "/project/5/stage/9", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "5", "stageId": "9"})
		req = req.WithContext(contextkeys.WithTelegramUserID(req.Context(), telegramID))
		rec := httptest.NewRecorder()
		gate.Func(handler).ServeHTTP(rec, req)
		return rec, handler
	}

	rec, handler := run(2)
	require.Equal(t, http.StatusOK, rec.Code)
	stage, ok := CurrentStage(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, 9, stage.ID)

	rec, handler = run(3)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, handler.called)
}

func TestStageAccess_MissingStage(t *testing.T) {
	st := newFakeStore()
	st.users[1] = &store.User{TelegramUserID: 1, Role: store.RoleAdmin}
	gates := testGates(st)

	handler := &sink{}
	req := httptest.NewRequest(http.MethodGet, "/project/5/stage/404", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "5", "stageId": "404"})
	req = req.WithContext(contextkeys.WithTelegramUserID(req.Context(), 1))
	rec := httptest.NewRecorder()

	gates.StageAccess().Func(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChain_SkipsGateOutsideItsConfig(t *testing.T) {
	st := newFakeStore()
	gates := testGates(st)

	// StageAccess declares /project/**/stage/**; on an unrelated path it
	// must be skipped rather than rejecting the request.
	handler := &sink{}
	chain := Chain(testLogger(), gates.StageAccess())
	req := httptest.NewRequest(http.MethodGet, "/user/nik", nil)
	rec := httptest.NewRecorder()

	chain(handler).ServeHTTP(rec, req)

	assert.True(t, handler.called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChain_PublicPathSkipsAuth(t *testing.T) {
	gates := testGates(newFakeStore())

	handler := &sink{}
	chain := Chain(testLogger(), gates.Authenticate())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	chain(handler).ServeHTTP(rec, req)

	assert.True(t, handler.called, "health check must not require auth")
}

func TestChain_ShortCircuits(t *testing.T) {
	st := newFakeStore()
	st.projects[5] = &store.Project{ID: 5}
	gates := testGates(st)

	// Auth fails first; ProjectAccess and the handler must never run.
	handler := &sink{}
	chain := Chain(testLogger(), gates.Authenticate(), gates.ProjectAccess())
	req := httptest.NewRequest(http.MethodGet, "/project/5", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "5"})
	rec := httptest.NewRecorder()

	chain(handler).ServeHTTP(rec, req)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChain_FullFlow(t *testing.T) {
	st := newFakeStore()
	st.projects[5] = &store.Project{ID: 5, Name: "alpha"}
	st.users[42] = &store.User{TelegramUserID: 42, Username: "nik", Role: store.RoleAdmin}
	gates := testGates(st)

	handler := &sink{}
	router := mux.NewRouter()
	chain := Chain(testLogger(), gates.Authenticate(), gates.ProjectAccess(), gates.RequireRole(store.RoleAdmin))
	router.Handle("/project/{id}", chain(handler)).Methods(http.MethodDelete)

	req := httptest.NewRequest(http.MethodDelete, "/project/5", nil)
	req.Header.Set(InitDataHeader, signedHeader(t, initdata.User{ID: 42, Username: "nik"}))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, handler.called)
	project, ok := CurrentProject(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, "alpha", project.Name)
	user, ok := CurrentUser(handler.ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), user.TelegramUserID)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInvalidID))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrUnauthenticated))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrInvalidSignature))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrStaleAuth))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrForbidden))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrUserNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(fmt.Errorf("%w: wrapped", ErrForbidden)))
}
