package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-pm/tessera/internal/shared"
)

// maxTokenAttempts caps the collision-retry loop during session creation.
// Exhausting it means the random source is broken, not that the keyspace is
// full.
const maxTokenAttempts = 5

// Repository defines persistence operations for sessions. Insert must rely
// on the primary-key constraint for collision detection, signalled as
// shared.ErrDuplicate, so creation stays race free.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store is the authoritative session store. Postgres owns the rows; an
// optional Redis cache serves repeated snapshot reads.
type Store struct {
	repo   Repository
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewStore constructs a Store. cache may be nil.
func NewStore(repo Repository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Create persists a new session for the principal and returns its token.
// On a token collision the insert fails on the uniqueness constraint and a
// fresh token is generated, up to maxTokenAttempts.
func (s *Store) Create(ctx context.Context, principal shared.Principal) (string, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := GenerateToken()
		if err != nil {
			return "", err
		}
		err = s.repo.Insert(ctx, Session{
			ID:        token,
			Principal: principal,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, shared.ErrDuplicate) {
			return "", fmt.Errorf("session: create: %w", err)
		}
		if s.logger != nil {
			s.logger.Warn("session token collision, regenerating",
				slog.Int("attempt", attempt+1))
		}
	}
	return "", fmt.Errorf("session: token generation exhausted after %d attempts", maxTokenAttempts)
}

// Get resolves a token to its session; shared.ErrNotFound for unknown or
// expired tokens.
func (s *Store) Get(ctx context.Context, token string) (Session, error) {
	if sess, ok := s.cacheGet(ctx, token); ok {
		if sess.Expired(s.now()) {
			return Session{}, fmt.Errorf("session expired: %w", shared.ErrNotFound)
		}
		return sess, nil
	}

	sess, err := s.repo.Get(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if sess.Expired(s.now()) {
		return Session{}, fmt.Errorf("session expired: %w", shared.ErrNotFound)
	}
	s.cacheSet(ctx, sess)
	return sess, nil
}

// Principal resolves a token to its principal snapshot.
func (s *Store) Principal(ctx context.Context, token string) (shared.Principal, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return shared.Principal{}, err
	}
	return sess.Principal, nil
}

// Delete destroys a session. Deleting an unknown token returns
// shared.ErrNotFound, which callers treat as non-fatal.
func (s *Store) Delete(ctx context.Context, token string) error {
	s.cacheDel(ctx, token)
	return s.repo.Delete(ctx, token)
}

// PurgeExpired removes sessions past their expiry. Invoked by the worker
// cron.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}

type cachedSession struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	RoleID    int64     `json:"role_id"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) cacheGet(ctx context.Context, token string) (Session, bool) {
	if s.cache == nil {
		return Session{}, false
	}
	payload, err := s.cache.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("session cache read", slog.Any("error", err))
		}
		return Session{}, false
	}
	var cached cachedSession
	if err := json.Unmarshal(payload, &cached); err != nil {
		return Session{}, false
	}
	return Session{
		ID: token,
		Principal: shared.Principal{
			UserID:  cached.UserID,
			Email:   cached.Email,
			RoleID:  cached.RoleID,
			IsAdmin: cached.IsAdmin,
			Source:  shared.SourceSession,
		},
		CreatedAt: cached.CreatedAt,
		ExpiresAt: cached.ExpiresAt,
	}, true
}

func (s *Store) cacheSet(ctx context.Context, sess Session) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(cachedSession{
		UserID:    sess.Principal.UserID,
		Email:     sess.Principal.Email,
		RoleID:    sess.Principal.RoleID,
		IsAdmin:   sess.Principal.IsAdmin,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(sess.ID), payload, ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("session cache write", slog.Any("error", err))
	}
}

func (s *Store) cacheDel(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(token)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("session cache delete", slog.Any("error", err))
	}
}

func cacheKey(token string) string {
	return "session:" + token
}
