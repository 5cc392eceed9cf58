package apikeys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Service issues keys and authenticates external callers.
type Service struct {
	repo      Repository
	authority *authz.Authority
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, authority *authz.Authority, logger *slog.Logger) *Service {
	return &Service{repo: repo, authority: authority, logger: logger, now: time.Now}
}

// Issue generates a fresh key for the user and returns the raw value. Only
// the digest is persisted; a reissue invalidates the previous key.
func (s *Service) Issue(ctx context.Context, userID int64) (string, error) {
	raw := uuid.NewString() + uuid.NewString()
	if _, err := s.repo.Upsert(ctx, userID, digest(raw)); err != nil {
		return "", fmt.Errorf("apikeys: issue: %w", err)
	}
	return raw, nil
}

// Revoke disables the user's active key.
func (s *Service) Revoke(ctx context.Context, userID int64) error {
	return s.repo.Deactivate(ctx, userID)
}

// Authenticate resolves a raw key to an API-key principal carrying the
// owner's role information. Unknown or inactive keys surface as
// shared.ErrNotFound, which the guard maps to an unauthenticated denial.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (shared.Principal, error) {
	key, err := s.repo.FindByDigest(ctx, digest(rawKey))
	if err != nil {
		return shared.Principal{}, err
	}

	info, err := s.authority.RoleInformation(ctx, key.UserID)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("apikeys: role information: %w", err)
	}

	if err := s.repo.TouchLastUsed(ctx, key.ID, s.now().UTC()); err != nil && s.logger != nil {
		s.logger.Warn("touch api key", slog.Any("error", err))
	}

	return shared.Principal{
		UserID:  key.UserID,
		RoleID:  info.RoleID,
		IsAdmin: info.IsAdmin,
		Source:  shared.SourceAPIKey,
	}, nil
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
