package domain

import (
	"errors"
	"time"
)

// Principal is the signed-in identity as reported by auth-state transitions.
// A nil *Principal means nobody is signed in.
type Principal struct {
	UID   string
	Email string
}

// Claims is the validated content of a freshly issued ID token.
// Elevated is the administrative claim; it is independent of the profile role.
type Claims struct {
	Subject   string
	Email     string
	Elevated  bool
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the claims are no longer usable at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenSet is the result of a sign-in or refresh.
type TokenSet struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Account is a local identity: credentials plus the administrative flag minted into ID tokens.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Admin        bool
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	return nil
}

// RefreshSession tracks one signed-in device. RefreshJTI is the jti of the only
// refresh token that may be exchanged next; any other jti is a replay.
type RefreshSession struct {
	ID               string
	AccountID        string
	RefreshJTI       string
	RefreshTokenHash string
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	LastSeenAt       *time.Time
	CreatedAt        time.Time
}

// Active reports whether the session can still be refreshed at now.
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// ActionPurpose names what a one-time action code authorizes.
type ActionPurpose string

const ActionPurposePasswordReset ActionPurpose = "password_reset"

// ActionCode is a single-use code delivered out of band (the oobCode of a reset link).
// Only the hash of the code is stored.
type ActionCode struct {
	ID        string
	AccountID string
	Purpose   ActionPurpose
	CodeHash  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the code is unused and unexpired at now.
func (c *ActionCode) Usable(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}
