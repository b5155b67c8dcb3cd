package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nbulygin/teamgate/pkg/contextkeys"
	"github.com/nbulygin/teamgate/pkg/initdata"
	"github.com/nbulygin/teamgate/pkg/pathmatch"
	"github.com/nbulygin/teamgate/pkg/store"
)

// InitDataHeader carries the signed Telegram Mini App payload.
const InitDataHeader = "X-Telegram-Init-Data"

// Authenticate returns the gate that validates the initData header and
// resolves the caller's identity. On success it attaches the Telegram user
// id, the validated payload, and the stored user to the request context.
// A caller with no account yet gets one created with role none on their
// first authenticated request.
func (g *Gates) Authenticate() Gate {
	return Gate{
		Name: "auth",
		Config: pathmatch.Config{
			PathPatterns:    []string{"/**"},
			ExcludePatterns: g.public,
		},
		Func: g.authenticate,
	}
}

func (g *Gates) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(InitDataHeader)
		if raw == "" {
			Reject(w, r, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, InitDataHeader))
			return
		}

		result, err := g.validator.Validate(raw)
		if err != nil {
			Reject(w, r, authFailure(err))
			return
		}

		ctx := contextkeys.WithTelegramUserID(r.Context(), result.TelegramUserID)
		ctx = contextkeys.WithInitData(ctx, result)

		user, err := g.store.GetUserByTelegramID(ctx, result.TelegramUserID)
		if err != nil {
			Reject(w, r, fmt.Errorf("load user %d: %w", result.TelegramUserID, err))
			return
		}
		if user == nil {
			user, err = g.createUser(ctx, result)
			if err != nil {
				Reject(w, r, fmt.Errorf("create user %d: %w", result.TelegramUserID, err))
				return
			}
		}
		ctx = contextkeys.WithUser(ctx, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// createUser registers a first-time caller with role none, taking the
// username from the validated payload. A duplicate conflict means a
// concurrent request won the insert; the winner's row is returned.
func (g *Gates) createUser(ctx context.Context, result *initdata.Result) (*store.User, error) {
	user := &store.User{
		TelegramUserID: result.TelegramUserID,
		Username:       result.User.Username,
		Role:           store.RoleNone,
	}
	err := g.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		return g.store.GetUserByTelegramID(ctx, result.TelegramUserID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func authFailure(err error) error {
	switch {
	case errors.Is(err, initdata.ErrSignatureMismatch):
		return ErrInvalidSignature
	case errors.Is(err, initdata.ErrStaleAuth):
		return ErrStaleAuth
	default:
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
}
