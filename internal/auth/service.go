package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/shared"
)

// Service wraps authentication business rules. Credential verification is
// the only identity check performed here; SSO and OAuth callbacks feed the
// same Login path with an already-verified user.
type Service struct {
	repo      Repository
	authority *authz.Authority
}

// NewService constructs a new Service.
func NewService(repo Repository, authority *authz.Authority) *Service {
	return &Service{repo: repo, authority: authority}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Principal derives the session principal for a verified user: the basic
// role id plus the admin flag and action union from the authority.
func (s *Service) Principal(ctx context.Context, user *User) (shared.Principal, authz.RoleInformation, error) {
	info, err := s.authority.RoleInformation(ctx, user.ID)
	if err != nil {
		return shared.Principal{}, authz.RoleInformation{}, err
	}
	return shared.Principal{
		UserID:  user.ID,
		Email:   user.Email,
		RoleID:  info.RoleID,
		IsAdmin: info.IsAdmin,
		Source:  shared.SourceSession,
	}, info, nil
}
