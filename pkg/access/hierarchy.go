package access

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nbulygin/teamgate/pkg/contextkeys"
	"github.com/nbulygin/teamgate/pkg/pathmatch"
	"github.com/nbulygin/teamgate/pkg/store"
)

// ProjectAccess returns the gate guarding a single project: admins pass
// unconditionally, managers pass only when assigned to the project, every
// other role is denied. The project id comes from the "id" (or
// "projectId") path parameter; the resolved project and user are attached
// to the context. Applies only under /project/.
func (g *Gates) ProjectAccess() Gate {
	return Gate{
		Name: "project-access",
		Config: pathmatch.Config{
			PathPatterns: []string{"/project/**"},
		},
		Func: g.projectAccess,
	}
}

// StageAccess is the stage counterpart of ProjectAccess: the stage is
// loaded by the "stageId" path parameter and authorization runs against
// its owning project, so a manager must be assigned to the project, not
// the stage. Applies only under /project/.../stage/.
func (g *Gates) StageAccess() Gate {
	return Gate{
		Name: "stage-access",
		Config: pathmatch.Config{
			PathPatterns: []string{"/project/**/stage/**"},
		},
		Func: g.stageAccess,
	}
}

func (g *Gates) projectAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projectID, err := pathID(r, "id", "projectId")
		if err != nil {
			Reject(w, r, err)
			return
		}

		project, err := g.store.GetProjectByID(ctx, projectID)
		if err != nil {
			Reject(w, r, fmt.Errorf("load project %d: %w", projectID, err))
			return
		}
		if project == nil {
			Reject(w, r, fmt.Errorf("%w: project %d", ErrNotFound, projectID))
			return
		}

		user, err := g.requester(r)
		if err != nil {
			Reject(w, r, err)
			return
		}

		if err := g.authorizeProject(ctx, user, project.ID); err != nil {
			Reject(w, r, err)
			return
		}

		ctx = contextkeys.WithProject(ctx, project)
		ctx = contextkeys.WithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gates) stageAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		stageID, err := pathID(r, "stageId")
		if err != nil {
			Reject(w, r, err)
			return
		}

		stage, err := g.store.GetStageByID(ctx, stageID)
		if err != nil {
			Reject(w, r, fmt.Errorf("load stage %d: %w", stageID, err))
			return
		}
		if stage == nil {
			Reject(w, r, fmt.Errorf("%w: stage %d", ErrNotFound, stageID))
			return
		}

		user, err := g.requester(r)
		if err != nil {
			Reject(w, r, err)
			return
		}

		if err := g.authorizeProject(ctx, user, stage.ProjectID); err != nil {
			Reject(w, r, err)
			return
		}

		ctx = contextkeys.WithStage(ctx, stage)
		ctx = contextkeys.WithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requester loads the calling user, preferring the row an earlier gate
// already attached.
func (g *Gates) requester(r *http.Request) (*store.User, error) {
	ctx := r.Context()
	if user, ok := CurrentUser(ctx); ok {
		return user, nil
	}

	telegramUserID, ok := contextkeys.TelegramUserID(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no identity in request", ErrUnauthenticated)
	}
	user, err := g.store.GetUserByTelegramID(ctx, telegramUserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", telegramUserID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no account for id %d", ErrUnauthenticated, telegramUserID)
	}
	return user, nil
}

// authorizeProject applies the admin/manager/deny rule for projectID.
func (g *Gates) authorizeProject(ctx context.Context, user *store.User, projectID int) error {
	switch user.Role {
	case store.RoleAdmin:
		return nil
	case store.RoleManager:
		managers, err := g.store.ListManagersByProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("list managers of project %d: %w", projectID, err)
		}
		for _, m := range managers {
			if m.TelegramUserID == user.TelegramUserID {
				return nil
			}
		}
		return fmt.Errorf("%w: not a manager of this project", ErrForbidden)
	}
	return fmt.Errorf("%w: role %q has no project access", ErrForbidden, user.Role)
}

// pathID returns the first of the named path parameters parsed as a
// positive integer.
func pathID(r *http.Request, names ...string) (int, error) {
	vars := mux.Vars(r)
	for _, name := range names {
		raw, ok := vars[name]
		if !ok {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidID, name, raw)
		}
		return id, nil
	}
	return 0, fmt.Errorf("%w: missing %s path parameter", ErrInvalidID, names[0])
}
