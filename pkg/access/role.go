package access

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nbulygin/teamgate/pkg/contextkeys"
	"github.com/nbulygin/teamgate/pkg/pathmatch"
	"github.com/nbulygin/teamgate/pkg/store"
)

// RequireRole returns a gate that permits only callers whose stored role
// is in allowed. The user row is loaded fresh by Telegram id and attached
// to the context on success. Public routes are excluded by config.
func (g *Gates) RequireRole(allowed ...store.Role) Gate {
	names := make([]string, len(allowed))
	for i, role := range allowed {
		names[i] = string(role)
	}
	return Gate{
		Name: "role:" + strings.Join(names, ","),
		Config: pathmatch.Config{
			ExcludePatterns: g.public,
		},
		Func: func(next http.Handler) http.Handler {
			return g.requireRole(allowed, next)
		},
	}
}

func (g *Gates) requireRole(allowed []store.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		telegramUserID, ok := contextkeys.TelegramUserID(ctx)
		if !ok {
			Reject(w, r, fmt.Errorf("%w: no identity in request", ErrUnauthenticated))
			return
		}

		user, err := g.store.GetUserByTelegramID(ctx, telegramUserID)
		if err != nil {
			Reject(w, r, fmt.Errorf("load user %d: %w", telegramUserID, err))
			return
		}
		if user == nil {
			Reject(w, r, fmt.Errorf("%w: no account for id %d", ErrUnauthenticated, telegramUserID))
			return
		}

		if !roleAllowed(user.Role, allowed) {
			Reject(w, r, fmt.Errorf("%w: role %q is not permitted here", ErrForbidden, user.Role))
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithUser(ctx, user)))
	})
}

func roleAllowed(role store.Role, allowed []store.Role) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}
