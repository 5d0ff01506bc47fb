package session_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portal-client/v2/core"
	"github.com/portal-client/v2/internal/auth"
	"github.com/portal-client/v2/internal/session"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	storage := core.NewMemoryStorage()
	store := session.NewStore(storage, quietLogger())

	_, ok := store.Get()
	require.False(t, ok)
	require.Empty(t, store.AccessToken())

	require.NoError(t, store.Store(auth.LoginData{Access: "access-1", Refresh: "refresh-1"}))

	token, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, session.Token{Access: "access-1", Refresh: "refresh-1"}, token)
	assert.Equal(t, "access-1", store.AccessToken())

	persisted, ok, err := storage.Get(session.KeyAccess)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-1", persisted)
}

func TestStoreRestoresPersistedToken(t *testing.T) {
	t.Parallel()

	storage := core.NewMemoryStorage()
	require.NoError(t, session.NewStore(storage, quietLogger()).Store(auth.LoginData{Access: "a", Refresh: "r"}))

	restarted := session.NewStore(storage, quietLogger())
	token, ok := restarted.Get()
	require.True(t, ok)
	assert.Equal(t, "a", token.Access)
	assert.Equal(t, "r", token.Refresh)
}

func TestStoreRequiresAccessToken(t *testing.T) {
	t.Parallel()

	storage := core.NewMemoryStorage()
	store := session.NewStore(storage, quietLogger())

	require.ErrorIs(t, store.Store(auth.LoginData{Refresh: "r"}), session.ErrMissingAccessToken)
	_, ok := store.Get()
	assert.False(t, ok)
	_, ok, _ = storage.Get(session.KeyRefresh)
	assert.False(t, ok)
}

func TestStoreDropsStaleRefreshToken(t *testing.T) {
	t.Parallel()

	storage := core.NewMemoryStorage()
	store := session.NewStore(storage, quietLogger())
	require.NoError(t, store.Store(auth.LoginData{Access: "a1", Refresh: "r1"}))
	require.NoError(t, store.Store(auth.LoginData{Access: "a2"}))

	_, ok, _ := storage.Get(session.KeyRefresh)
	assert.False(t, ok)
	token, _ := store.Get()
	assert.Equal(t, session.Token{Access: "a2"}, token)
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	storage := core.NewMemoryStorage()
	store := session.NewStore(storage, quietLogger())
	require.NoError(t, store.Store(auth.LoginData{Access: "a", Refresh: "r"}))

	require.NoError(t, store.Clear())
	_, ok := store.Get()
	assert.False(t, ok)
	_, ok, _ = storage.Get(session.KeyAccess)
	assert.False(t, ok)
}

type failingStorage struct{ *core.MemoryStorage }

func (failingStorage) Set(string, string) error { return errors.New("read-only") }

func TestStoreKeepsPreviousTokenWhenPersistFails(t *testing.T) {
	t.Parallel()

	mem := core.NewMemoryStorage()
	require.NoError(t, mem.Set(session.KeyAccess, "old"))
	store := session.NewStore(failingStorage{mem}, quietLogger())

	err := store.Store(auth.LoginData{Access: "new"})
	require.Error(t, err)
	assert.Equal(t, "old", store.AccessToken())
}

// keyFailingStorage fails writes and removals of a single key.
type keyFailingStorage struct {
	*core.MemoryStorage
	key string
}

func (f keyFailingStorage) Set(key, value string) error {
	if key == f.key {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Set(key, value)
}

func (f keyFailingStorage) Remove(key string) error {
	if key == f.key {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Remove(key)
}

func TestStoreLeavesNoAccessTokenWhenRefreshPersistFails(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data auth.LoginData
	}{
		{name: "refresh write fails", data: auth.LoginData{Access: "new-access", Refresh: "new-refresh"}},
		{name: "stale refresh removal fails", data: auth.LoginData{Access: "new-access"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mem := core.NewMemoryStorage()
			store := session.NewStore(keyFailingStorage{MemoryStorage: mem, key: session.KeyRefresh}, quietLogger())

			require.Error(t, store.Store(tc.data))
			_, ok := store.Get()
			assert.False(t, ok)

			_, found, err := mem.Get(session.KeyAccess)
			require.NoError(t, err)
			assert.False(t, found, "access token must not be persisted")

			restarted := session.NewStore(mem, quietLogger())
			_, ok = restarted.Get()
			assert.False(t, ok)
		})
	}
}

func TestStoreRestoresRefreshWhenAccessPersistFails(t *testing.T) {
	t.Parallel()

	mem := core.NewMemoryStorage()
	require.NoError(t, mem.Set(session.KeyAccess, "old-access"))
	require.NoError(t, mem.Set(session.KeyRefresh, "old-refresh"))
	store := session.NewStore(keyFailingStorage{MemoryStorage: mem, key: session.KeyAccess}, quietLogger())

	require.Error(t, store.Store(auth.LoginData{Access: "new-access", Refresh: "new-refresh"}))

	restarted := session.NewStore(mem, quietLogger())
	token, ok := restarted.Get()
	require.True(t, ok)
	assert.Equal(t, session.Token{Access: "old-access", Refresh: "old-refresh"}, token)
}

func TestStoreSubject(t *testing.T) {
	t.Parallel()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)

	store := session.NewStore(core.NewMemoryStorage(), quietLogger())
	assert.Empty(t, store.Subject())

	require.NoError(t, store.Store(auth.LoginData{Access: signed}))
	assert.Equal(t, "42", store.Subject())

	require.NoError(t, store.Store(auth.LoginData{Access: "opaque-token"}))
	assert.Empty(t, store.Subject())
}
