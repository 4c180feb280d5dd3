package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pawsit/agent/internal/identity/domain"
	profiledomain "pawsit/agent/internal/profile/domain"
)

// ErrInvalidRole is returned when sign-up asks for a role other than owner or sitter.
var ErrInvalidRole = errors.New("role must be owner or sitter")

// AccountCreator creates an identity account and signs it in.
type AccountCreator interface {
	SignUp(ctx context.Context, email, password string) (*domain.TokenSet, error)
}

// ProfileWriter is the minimal profile repository needed to register an account.
type ProfileWriter interface {
	Create(ctx context.Context, p *profiledomain.Profile) error
}

// Registrar creates an account together with its role-tagged profile.
type Registrar struct {
	accounts AccountCreator
	profiles ProfileWriter
	log      *slog.Logger
}

// NewRegistrar returns a Registrar. log may be nil.
func NewRegistrar(accounts AccountCreator, profiles ProfileWriter, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{accounts: accounts, profiles: profiles, log: log}
}

// Register creates the identity account, then the profile. If the profile write
// fails the account still exists and resolves to the login destination until a
// profile is written; the error is returned so the caller can retry.
func (r *Registrar) Register(ctx context.Context, email, password, displayName string, role profiledomain.Role) (*domain.TokenSet, error) {
	if !role.Known() {
		return nil, ErrInvalidRole
	}
	ts, err := r.accounts.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &profiledomain.Profile{
		UserID:      ts.UID,
		Role:        role,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := r.profiles.Create(ctx, p); err != nil {
		r.log.ErrorContext(ctx, "create profile after sign-up failed", "user_id", ts.UID, "error", err)
		return nil, err
	}
	return ts, nil
}
