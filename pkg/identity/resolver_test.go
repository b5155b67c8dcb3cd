package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbulygin/teamgate/pkg/store"
	"github.com/nbulygin/teamgate/pkg/telegram"
)

type fakeTelegram struct {
	users map[string]*telegram.User
	calls int
	err   error
}

func (f *fakeTelegram) GetUserByUsername(ctx context.Context, username string) (*telegram.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.users[username], nil
}

type fakeUserStore struct {
	byUsername map[string]*store.User
	byID       map[int64]*store.User
	inserts    int
	createErr  error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byUsername: map[string]*store.User{},
		byID:       map[int64]*store.User{},
	}
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return f.byUsername[username], nil
}

func (f *fakeUserStore) GetUserByTelegramID(ctx context.Context, id int64) (*store.User, error) {
	return f.byID[id], nil
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user *store.User) error {
	f.inserts++
	if f.createErr != nil {
		return f.createErr
	}
	if _, taken := f.byUsername[user.Username]; taken {
		return store.ErrDuplicate
	}
	f.byUsername[user.Username] = user
	f.byID[user.TelegramUserID] = user
	return nil
}

type fakeCache struct {
	entries map[string]int64
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]int64{}} }

func (f *fakeCache) Get(ctx context.Context, username string) (int64, bool) {
	id, ok := f.entries[username]
	return id, ok
}

func (f *fakeCache) Set(ctx context.Context, username string, id int64) bool {
	f.entries[username] = id
	return true
}

func TestGetOrCreate_CreatesWithRoleNone(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{
		"Bulygin_Nik": {ID: 279058397, Username: "Bulygin_Nik"},
	}}
	users := newFakeUserStore()
	resolver := NewResolver(users, tg, newFakeCache())

	user, err := resolver.GetOrCreate(context.Background(), "Bulygin_Nik")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(279058397), user.TelegramUserID)
	assert.Equal(t, store.RoleNone, user.Role)
	assert.Equal(t, 1, users.inserts)
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{
		"Bulygin_Nik": {ID: 279058397},
	}}
	users := newFakeUserStore()
	resolver := NewResolver(users, tg, newFakeCache())
	ctx := context.Background()

	first, err := resolver.GetOrCreate(ctx, "Bulygin_Nik")
	require.NoError(t, err)
	second, err := resolver.GetOrCreate(ctx, "Bulygin_Nik")
	require.NoError(t, err)

	assert.Equal(t, first.TelegramUserID, second.TelegramUserID)
	assert.Equal(t, 1, users.inserts, "second call must not insert")
}

func TestGetOrCreate_DoesNotRefreshRole(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{"nik": {ID: 42}}}
	users := newFakeUserStore()
	users.byUsername["nik"] = &store.User{TelegramUserID: 42, Username: "nik", Role: store.RoleAdmin}
	resolver := NewResolver(users, tg, newFakeCache())

	user, err := resolver.GetOrCreate(context.Background(), "nik")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, user.Role)
	assert.Zero(t, users.inserts)
}

func TestGetOrCreate_UnknownTelegramUser(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{}}
	users := newFakeUserStore()
	resolver := NewResolver(users, tg, newFakeCache())

	user, err := resolver.GetOrCreate(context.Background(), "no_such_user")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, users.inserts, "no row may be created for unknown usernames")
}

func TestGetOrCreate_TelegramError(t *testing.T) {
	tg := &fakeTelegram{err: errors.New("api down")}
	resolver := NewResolver(newFakeUserStore(), tg, newFakeCache())

	_, err := resolver.GetOrCreate(context.Background(), "nik")
	assert.Error(t, err)
}

func TestGetOrCreate_InsertRaceLoserFetchesExisting(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{"nik": {ID: 42}}}
	users := newFakeUserStore()
	users.createErr = store.ErrDuplicate
	winner := &store.User{TelegramUserID: 42, Username: "nik", Role: store.RoleNone}
	users.byID[42] = winner
	resolver := NewResolver(users, tg, newFakeCache())

	user, err := resolver.GetOrCreate(context.Background(), "nik")
	require.NoError(t, err)
	assert.Equal(t, winner, user)
}

func TestGetOrCreate_CachedIDWins(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{"nik": {ID: 42}}}
	users := newFakeUserStore()
	cache := newFakeCache()
	cache.Set(context.Background(), "nik", 41)
	resolver := NewResolver(users, tg, cache)

	user, err := resolver.GetOrCreate(context.Background(), "nik")
	require.NoError(t, err)
	assert.Equal(t, int64(41), user.TelegramUserID)
}

func TestResolveID_CacheFirst(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{"nik": {ID: 42}}}
	cache := newFakeCache()
	resolver := NewResolver(newFakeUserStore(), tg, cache)
	ctx := context.Background()

	id, found, err := resolver.ResolveID(ctx, "nik")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 1, tg.calls)

	// Second resolution is served from cache.
	id, found, err = resolver.ResolveID(ctx, "nik")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 1, tg.calls)
}

func TestResolveID_NotFound(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{}}
	resolver := NewResolver(newFakeUserStore(), tg, newFakeCache())

	_, found, err := resolver.ResolveID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveID_NilCache(t *testing.T) {
	tg := &fakeTelegram{users: map[string]*telegram.User{"nik": {ID: 42}}}
	resolver := NewResolver(newFakeUserStore(), tg, nil)

	id, found, err := resolver.ResolveID(context.Background(), "nik")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)
}
