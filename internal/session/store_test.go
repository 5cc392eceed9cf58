package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tessera-pm/tessera/internal/shared"
)

type memRepo struct {
	sessions map[string]Session
	// forcedCollisions makes the first n inserts fail as duplicates.
	forcedCollisions int
	gets             int
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]Session{}}
}

func (r *memRepo) Insert(_ context.Context, s Session) error {
	if r.forcedCollisions > 0 {
		r.forcedCollisions--
		return shared.ErrDuplicate
	}
	if _, ok := r.sessions[s.ID]; ok {
		return shared.ErrDuplicate
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (Session, error) {
	r.gets++
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.sessions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func TestCreateRetriesOnTokenCollision(t *testing.T) {
	repo := newMemRepo()
	repo.forcedCollisions = 1
	store := NewStore(repo, nil, time.Hour, nil)

	token, err := store.Create(context.Background(), shared.Principal{UserID: 7})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, repo.sessions, 1)
}

func TestCreateGivesUpAfterExhaustedAttempts(t *testing.T) {
	repo := newMemRepo()
	repo.forcedCollisions = maxTokenAttempts
	store := NewStore(repo, nil, time.Hour, nil)

	_, err := store.Create(context.Background(), shared.Principal{UserID: 7})
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrDuplicate)
}

func TestGetUnknownToken(t *testing.T) {
	store := NewStore(newMemRepo(), nil, time.Hour, nil)

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetExpiredSession(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, nil, time.Hour, nil)

	token, err := store.Create(context.Background(), shared.Principal{UserID: 7})
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = store.Get(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetServesRepeatReadsFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	repo := newMemRepo()
	store := NewStore(repo, cache, time.Hour, nil)

	token, err := store.Create(context.Background(), shared.Principal{
		UserID: 7, Email: "s@example.com", RoleID: 2, Source: shared.SourceSession,
	})
	require.NoError(t, err)

	first, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(7), first.Principal.UserID)
	require.Equal(t, 1, repo.gets)

	second, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, first.Principal, second.Principal)
	require.Equal(t, 1, repo.gets, "second read must come from the cache")
}

func TestDeleteRemovesRowAndCacheEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	repo := newMemRepo()
	store := NewStore(repo, cache, time.Hour, nil)

	token, err := store.Create(context.Background(), shared.Principal{UserID: 7})
	require.NoError(t, err)
	_, err = store.Get(context.Background(), token)
	require.NoError(t, err)
	require.True(t, mr.Exists("session:"+token))

	require.NoError(t, store.Delete(context.Background(), token))
	require.False(t, mr.Exists("session:"+token))

	err = store.Delete(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, nil, time.Hour, nil)

	_, err := store.Create(context.Background(), shared.Principal{UserID: 7})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), shared.Principal{UserID: 8})
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	purged, err := store.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), purged)
	require.Empty(t, repo.sessions)
}

func TestGeneratedTokensAreURLSafeAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		require.NotContains(t, token, "+")
		require.NotContains(t, token, "/")
		require.NotContains(t, token, "=")
		require.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}
