// Package access implements the request gates: Telegram initData
// authentication, role checks, and the hierarchical project/stage
// authorization rules, plus the chain that dispatches them per route.
package access

import (
	"context"

	"github.com/nbulygin/teamgate/pkg/contextkeys"
	"github.com/nbulygin/teamgate/pkg/initdata"
	"github.com/nbulygin/teamgate/pkg/store"
)

// Store is the subset of the persistence layer the gates use. The only
// write is the lazy account creation on first authentication.
type Store interface {
	GetUserByTelegramID(ctx context.Context, telegramUserID int64) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) error
	GetProjectByID(ctx context.Context, id int) (*store.Project, error)
	GetStageByID(ctx context.Context, id int) (*store.Stage, error)
	ListManagersByProject(ctx context.Context, projectID int) ([]store.ProjectManager, error)
}

// Gates builds the gate set for a route table. The public paths are the
// routes that skip authentication and role checks entirely.
type Gates struct {
	validator *initdata.Validator
	store     Store
	public    []string
}

// NewGates creates the gate factory. public lists the path patterns that
// authentication and role gates must never apply to.
func NewGates(validator *initdata.Validator, st Store, public ...string) *Gates {
	return &Gates{
		validator: validator,
		store:     st,
		public:    public,
	}
}

// CurrentUser returns the user attached to the context by an earlier gate.
func CurrentUser(ctx context.Context) (*store.User, bool) {
	user, ok := ctx.Value(contextkeys.UserKey).(*store.User)
	return user, ok && user != nil
}

// CurrentProject returns the project resolved by the project access gate.
func CurrentProject(ctx context.Context) (*store.Project, bool) {
	project, ok := ctx.Value(contextkeys.ProjectKey).(*store.Project)
	return project, ok && project != nil
}

// CurrentStage returns the stage resolved by the stage access gate.
func CurrentStage(ctx context.Context) (*store.Stage, bool) {
	stage, ok := ctx.Value(contextkeys.StageKey).(*store.Stage)
	return stage, ok && stage != nil
}

// InitData returns the validated initData payload for the request.
func InitData(ctx context.Context) (*initdata.Result, bool) {
	result, ok := ctx.Value(contextkeys.InitDataKey).(*initdata.Result)
	return result, ok && result != nil
}
