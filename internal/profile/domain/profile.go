package domain

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Role classifies an account for the non-admin dashboards.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleSitter Role = "sitter"
	// RoleUnknown is any stored value that is neither owner nor sitter.
	RoleUnknown Role = ""
)

// ParseRole maps a stored role to a Role, ignoring case and surrounding space.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner
	case RoleSitter:
		return RoleSitter
	}
	return RoleUnknown
}

// Known reports whether r is owner or sitter.
func (r Role) Known() bool {
	return r == RoleOwner || r == RoleSitter
}

const maxDisplayNameRunes = 80

// Profile is the role-tagged record kept for every account.
type Profile struct {
	UserID      string
	Role        Role
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the profile for persistence and normalises the display name.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return errors.New("user id is required")
	}
	if !p.Role.Known() {
		return errors.New("role must be owner or sitter")
	}
	p.DisplayName = NormalizeDisplayName(p.DisplayName)
	return nil
}

// NormalizeDisplayName trims, collapses inner whitespace, converts to NFC and caps the length.
func NormalizeDisplayName(s string) string {
	s = norm.NFC.String(strings.Join(strings.Fields(s), " "))
	if r := []rune(s); len(r) > maxDisplayNameRunes {
		s = string(r[:maxDisplayNameRunes])
	}
	return s
}
