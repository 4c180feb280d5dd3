package repository

import (
	"context"
	"errors"
	"time"

	"pawsit/agent/internal/identity/domain"
)

// ErrDuplicateEmail is returned by Create when an account with the same email exists.
var ErrDuplicateEmail = errors.New("duplicate email")

// AccountRepository defines persistence for local accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, limit, offset int32) ([]*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	SetAdmin(ctx context.Context, id string, admin bool) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository defines persistence for refresh sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.RefreshSession, error)
	Create(ctx context.Context, s *domain.RefreshSession) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) error
	UpdateRefreshToken(ctx context.Context, id, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// ActionCodeRepository defines persistence for one-time action codes.
type ActionCodeRepository interface {
	GetByHash(ctx context.Context, purpose domain.ActionPurpose, codeHash string) (*domain.ActionCode, error)
	Create(ctx context.Context, c *domain.ActionCode) error
	// MarkUsed sets used_at if the code is still unused. It reports false when
	// another caller consumed the code first.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}
