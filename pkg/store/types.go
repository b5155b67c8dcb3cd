// Package store defines the domain model and persistence interface for
// users, projects, stages and their assignments.
package store

import (
	"context"
	"errors"
)

// Role is a user's system-wide role.
type Role string

const (
	// RoleAdmin has unrestricted access to all projects and stages.
	RoleAdmin Role = "admin"
	// RoleManager is scoped to projects it is explicitly assigned to.
	RoleManager Role = "manager"
	// RoleNone is the default role for newly created users.
	RoleNone Role = "none"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleNone:
		return true
	}
	return false
}

// ErrDuplicate is returned on unique-constraint conflicts (user already
// exists, manager or stage member already assigned).
var ErrDuplicate = errors.New("store: duplicate entry")

// User is an account known to the system. TelegramUserID is the durable
// identity; username is a mutable alias.
type User struct {
	TelegramUserID int64  `json:"telegramUserId"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
}

// Project owns stages and manager assignments.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Stage belongs to exactly one project.
type Stage struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ProjectID int    `json:"projectId"`
}

// ProjectManager assigns a user as manager of a project.
type ProjectManager struct {
	ProjectID      int   `json:"projectId"`
	TelegramUserID int64 `json:"telegramUserId"`
}

// StageUser assigns a user as member of a stage.
type StageUser struct {
	StageID        int   `json:"stageId"`
	TelegramUserID int64 `json:"telegramUserId"`
}

// UserUpdate carries optional user fields for partial updates.
type UserUpdate struct {
	Role *Role `json:"role,omitempty"`
}

// ProjectUpdate carries optional project fields for partial updates.
type ProjectUpdate struct {
	Name *string `json:"name,omitempty"`
}

// StageUpdate carries optional stage fields for partial updates.
type StageUpdate struct {
	Name      *string `json:"name,omitempty"`
	ProjectID *int    `json:"projectId,omitempty"`
}

// Store is the persistence interface. Lookups return (nil, nil) when the
// entity does not exist; errors are reserved for infrastructure failures.
type Store interface {
	// Users
	GetUserByTelegramID(ctx context.Context, telegramUserID int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, username string, fields UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, username string) (bool, error)

	// Projects
	CreateProject(ctx context.Context, name string) (*Project, error)
	GetProjectByID(ctx context.Context, id int) (*Project, error)
	ListProjects(ctx context.Context, offset, limit int) ([]Project, int, error)
	ListProjectsByManager(ctx context.Context, telegramUserID int64, offset, limit int) ([]Project, int, error)
	UpdateProject(ctx context.Context, id int, fields ProjectUpdate) (*Project, error)
	DeleteProject(ctx context.Context, id int) (bool, error)

	// Stages
	CreateStage(ctx context.Context, projectID int, name string) (*Stage, error)
	GetStageByID(ctx context.Context, id int) (*Stage, error)
	ListStagesByProject(ctx context.Context, projectID int) ([]Stage, error)
	UpdateStage(ctx context.Context, id int, fields StageUpdate) (*Stage, error)
	DeleteStage(ctx context.Context, id int) (bool, error)

	// Manager assignments. Assign reports false on duplicate; Remove
	// reports false when no assignment existed.
	AssignManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error)
	RemoveManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error)
	ListManagersByProject(ctx context.Context, projectID int) ([]ProjectManager, error)

	// Stage membership, same contract as manager assignments.
	AssignStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error)
	RemoveStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error)
	ListUsersByStage(ctx context.Context, stageID int) ([]StageUser, error)
}
