package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	company := int64(3)
	s := &Session{ID: "a", SelectedCompany: &company, CreatedAt: time.Now()}
	require.NoError(t, store.Save(ctx, s))

	company = 4
	s.SetFlash("k", "v")

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), *got.SelectedCompanyID())
	assert.Empty(t, got.Flash)
	assert.False(t, got.Dirty())

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)
	for i := 0; i < 15; i++ {
		require.NoError(t, store.Save(ctx, &Session{ID: string(rune('a' + i))}))
	}
	assert.Equal(t, 10, store.Len())
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:session", 2*time.Hour)

	uid := int64(9)
	s := &Session{ID: "abc", UserID: &uid, LoginIP: "192.0.2.1", LastActivity: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	s.SetFlash("status", "hallo")
	require.NoError(t, store.Save(ctx, s))

	assert.True(t, mr.Exists("test:session:abc"))
	assert.InDelta(t, 2*time.Hour, mr.TTL("test:session:abc"), float64(time.Minute))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(9), *got.UserID)
	assert.Equal(t, "hallo", got.Flash["status"])
	assert.True(t, got.LastActivity.Equal(s.LastActivity))

	// lifetime counts from creation
	old := &Session{ID: "old", CreatedAt: time.Now().Add(-3 * time.Hour)}
	require.NoError(t, store.Save(ctx, old))
	assert.False(t, mr.Exists("test:session:old"))

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_LoginRegeneratesID(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	m := NewManager(store, Options{CookieName: cookieName}, nil)

	var loginErr error
	var before, after string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		before = s.ID
		loginErr = m.Login(r.Context(), s, 42, "192.0.2.1", "test-agent")
		after = s.ID
		w.WriteHeader(http.StatusNoContent)
	}))

	// an attacker-chosen id that the store does not know
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "planted"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NoError(t, loginErr)
	assert.NotEqual(t, "planted", before)
	assert.NotEqual(t, before, after)

	c := responseCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, after, c.Value)
	assert.True(t, c.HttpOnly)

	s, err := store.Get(context.Background(), after)
	require.NoError(t, err)
	assert.Equal(t, int64(42), *s.UserID)
	assert.Equal(t, "192.0.2.1", s.LoginIP)
	assert.Equal(t, "test-agent", s.LoginUserAgent)
	assert.False(t, s.LastActivity.IsZero())
}

func TestManager_StaleCookieCleared(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour), Options{CookieName: cookieName}, nil)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "gone"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	c := responseCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "", c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestManager_SaveWithoutWrite(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	m := NewManager(store, Options{CookieName: cookieName}, nil)

	var id string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		s.SetFlash("k", "v")
		id = s.ID
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	s, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	msg, ok := s.PopFlash("k")
	assert.True(t, ok)
	assert.Equal(t, "v", msg)
}
