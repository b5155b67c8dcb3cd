package api

import (
	"context"
	"sort"

	"github.com/nbulygin/teamgate/pkg/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	users       map[string]*store.User
	projects    map[int]*store.Project
	stages      map[int]*store.Stage
	managers    map[int]map[int64]bool
	stageUsers  map[int]map[int64]bool
	nextProject int
	nextStage   int
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]*store.User{},
		projects:   map[int]*store.Project{},
		stages:     map[int]*store.Stage{},
		managers:   map[int]map[int64]bool{},
		stageUsers: map[int]map[int64]bool{},
	}
}

func (m *memStore) addUser(user *store.User) *store.User {
	m.users[user.Username] = user
	return user
}

func (m *memStore) addProject(name string) *store.Project {
	m.nextProject++
	p := &store.Project{ID: m.nextProject, Name: name}
	m.projects[p.ID] = p
	return p
}

func (m *memStore) addStage(projectID int, name string) *store.Stage {
	m.nextStage++
	st := &store.Stage{ID: m.nextStage, Name: name, ProjectID: projectID}
	m.stages[st.ID] = st
	return st
}

func (m *memStore) GetUserByTelegramID(ctx context.Context, id int64) (*store.User, error) {
	for _, u := range m.users {
		if u.TelegramUserID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return m.users[username], nil
}

func (m *memStore) CreateUser(ctx context.Context, user *store.User) error {
	if _, taken := m.users[user.Username]; taken {
		return store.ErrDuplicate
	}
	m.users[user.Username] = user
	return nil
}

func (m *memStore) UpdateUser(ctx context.Context, username string, fields store.UserUpdate) (*store.User, error) {
	user := m.users[username]
	if user == nil {
		return nil, nil
	}
	if fields.Role != nil {
		user.Role = *fields.Role
	}
	return user, nil
}

func (m *memStore) DeleteUser(ctx context.Context, username string) (bool, error) {
	if _, ok := m.users[username]; !ok {
		return false, nil
	}
	delete(m.users, username)
	return true, nil
}

func (m *memStore) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	return m.addProject(name), nil
}

func (m *memStore) GetProjectByID(ctx context.Context, id int) (*store.Project, error) {
	return m.projects[id], nil
}

func (m *memStore) sortedProjects() []store.Project {
	out := make([]store.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(projects []store.Project, offset, limit int) []store.Project {
	if offset >= len(projects) {
		return nil
	}
	end := offset + limit
	if end > len(projects) {
		end = len(projects)
	}
	return projects[offset:end]
}

func (m *memStore) ListProjects(ctx context.Context, offset, limit int) ([]store.Project, int, error) {
	all := m.sortedProjects()
	return page(all, offset, limit), len(all), nil
}

func (m *memStore) ListProjectsByManager(ctx context.Context, telegramUserID int64, offset, limit int) ([]store.Project, int, error) {
	var mine []store.Project
	for _, p := range m.sortedProjects() {
		if m.managers[p.ID][telegramUserID] {
			mine = append(mine, p)
		}
	}
	return page(mine, offset, limit), len(mine), nil
}

func (m *memStore) UpdateProject(ctx context.Context, id int, fields store.ProjectUpdate) (*store.Project, error) {
	p := m.projects[id]
	if p == nil {
		return nil, nil
	}
	if fields.Name != nil {
		p.Name = *fields.Name
	}
	return p, nil
}

func (m *memStore) DeleteProject(ctx context.Context, id int) (bool, error) {
	if _, ok := m.projects[id]; !ok {
		return false, nil
	}
	delete(m.projects, id)
	delete(m.managers, id)
	return true, nil
}

func (m *memStore) CreateStage(ctx context.Context, projectID int, name string) (*store.Stage, error) {
	return m.addStage(projectID, name), nil
}

func (m *memStore) GetStageByID(ctx context.Context, id int) (*store.Stage, error) {
	return m.stages[id], nil
}

func (m *memStore) ListStagesByProject(ctx context.Context, projectID int) ([]store.Stage, error) {
	var out []store.Stage
	for _, st := range m.stages {
		if st.ProjectID == projectID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateStage(ctx context.Context, id int, fields store.StageUpdate) (*store.Stage, error) {
	st := m.stages[id]
	if st == nil {
		return nil, nil
	}
	if fields.Name != nil {
		st.Name = *fields.Name
	}
	if fields.ProjectID != nil {
		st.ProjectID = *fields.ProjectID
	}
	return st, nil
}

func (m *memStore) DeleteStage(ctx context.Context, id int) (bool, error) {
	if _, ok := m.stages[id]; !ok {
		return false, nil
	}
	delete(m.stages, id)
	delete(m.stageUsers, id)
	return true, nil
}

func (m *memStore) AssignManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error) {
	if m.managers[projectID] == nil {
		m.managers[projectID] = map[int64]bool{}
	}
	if m.managers[projectID][telegramUserID] {
		return false, nil
	}
	m.managers[projectID][telegramUserID] = true
	return true, nil
}

func (m *memStore) RemoveManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error) {
	if !m.managers[projectID][telegramUserID] {
		return false, nil
	}
	delete(m.managers[projectID], telegramUserID)
	return true, nil
}

func (m *memStore) ListManagersByProject(ctx context.Context, projectID int) ([]store.ProjectManager, error) {
	var out []store.ProjectManager
	for id := range m.managers[projectID] {
		out = append(out, store.ProjectManager{ProjectID: projectID, TelegramUserID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramUserID < out[j].TelegramUserID })
	return out, nil
}

func (m *memStore) AssignStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error) {
	if m.stageUsers[stageID] == nil {
		m.stageUsers[stageID] = map[int64]bool{}
	}
	if m.stageUsers[stageID][telegramUserID] {
		return false, nil
	}
	m.stageUsers[stageID][telegramUserID] = true
	return true, nil
}

func (m *memStore) RemoveStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error) {
	if !m.stageUsers[stageID][telegramUserID] {
		return false, nil
	}
	delete(m.stageUsers[stageID], telegramUserID)
	return true, nil
}

func (m *memStore) ListUsersByStage(ctx context.Context, stageID int) ([]store.StageUser, error) {
	var out []store.StageUser
	for id := range m.stageUsers[stageID] {
		out = append(out, store.StageUser{StageID: stageID, TelegramUserID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramUserID < out[j].TelegramUserID })
	return out, nil
}
