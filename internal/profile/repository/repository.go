package repository

import (
	"context"
	"errors"

	"pawsit/agent/internal/profile/domain"
)

// ErrProfileExists is returned by Create when the user already has a profile.
var ErrProfileExists = errors.New("profile already exists")

// Repository defines persistence for profiles.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	UpdateRole(ctx context.Context, userID string, role domain.Role) error
}
