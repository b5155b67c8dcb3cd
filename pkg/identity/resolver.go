// Package identity maps Telegram usernames to internal user records,
// creating users lazily on first sight.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbulygin/teamgate/pkg/store"
	"github.com/nbulygin/teamgate/pkg/telegram"
)

// UserStore is the slice of store.Store the resolver needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	GetUserByTelegramID(ctx context.Context, telegramUserID int64) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) error
}

// Cache is the username->id lookup cache. Implementations must degrade
// failures to misses.
type Cache interface {
	Get(ctx context.Context, username string) (int64, bool)
	Set(ctx context.Context, username string, telegramUserID int64) bool
}

// Resolver resolves usernames to users, consulting Telegram for existence
// and the cache for id lookups.
type Resolver struct {
	users UserStore
	tg    telegram.API
	cache Cache
}

// NewResolver creates a resolver. cache may be nil, in which case every
// resolution goes to the Telegram Bot API.
func NewResolver(users UserStore, tg telegram.API, cache Cache) *Resolver {
	return &Resolver{users: users, tg: tg, cache: cache}
}

// ResolveID resolves a username to a Telegram user id, cache first. The
// second return value is false when the username does not exist in
// Telegram.
func (r *Resolver) ResolveID(ctx context.Context, username string) (int64, bool, error) {
	if r.cache != nil {
		if id, ok := r.cache.Get(ctx, username); ok {
			return id, true, nil
		}
	}

	tgUser, err := r.tg.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, false, fmt.Errorf("identity: resolve %q: %w", username, err)
	}
	if tgUser == nil {
		return 0, false, nil
	}

	if r.cache != nil {
		r.cache.Set(ctx, username, tgUser.ID)
	}
	return tgUser.ID, true, nil
}

// GetOrCreate returns the user record for username, creating it with role
// none on first sight. It returns (nil, nil) when the username does not
// resolve to a real Telegram account; no row is created in that case.
//
// The read-then-insert has a benign race: a concurrent first-time call may
// win the insert, in which case the unique constraint rejects ours and the
// existing row is fetched instead.
func (r *Resolver) GetOrCreate(ctx context.Context, username string) (*store.User, error) {
	// The account must exist in Telegram before anything is persisted.
	tgUser, err := r.tg.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("identity: validate %q: %w", username, err)
	}
	if tgUser == nil {
		return nil, nil
	}

	telegramUserID := tgUser.ID
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, username); ok {
			telegramUserID = cached
		} else {
			r.cache.Set(ctx, username, telegramUserID)
		}
	}

	existing, err := r.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := &store.User{
		TelegramUserID: telegramUserID,
		Username:       username,
		Role:           store.RoleNone,
	}
	err = r.users.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the insert race, or the id is already registered under a
		// different alias. Fetch whatever exists.
		if existing, err := r.users.GetUserByUsername(ctx, username); err != nil || existing != nil {
			return existing, err
		}
		return r.users.GetUserByTelegramID(ctx, telegramUserID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
