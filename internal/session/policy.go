package session

import (
	"context"

	profiledomain "pawsit/agent/internal/profile/domain"
)

// Facts is everything a DestinationPolicy may look at. ProfileFound and Role
// are zero when the session is elevated, because the profile is never read then.
type Facts struct {
	Authenticated bool
	Elevated      bool
	ProfileFound  bool
	Role          profiledomain.Role
}

// DestinationPolicy maps Facts to a Destination. The resolver only asks it
// about authenticated, non-elevated sessions.
type DestinationPolicy interface {
	Decide(ctx context.Context, facts Facts) (Destination, error)
}

// StaticPolicy is the built-in routing table. An unknown role resolves to the
// sitter dashboard; see DESIGN.md for why that default is kept.
type StaticPolicy struct{}

func (StaticPolicy) Decide(_ context.Context, f Facts) (Destination, error) {
	return decideStatic(f), nil
}

func decideStatic(f Facts) Destination {
	switch {
	case !f.Authenticated:
		return DestinationUnauthenticatedHome
	case f.Elevated:
		return DestinationAdminDashboard
	case !f.ProfileFound:
		return DestinationLogin
	case f.Role == profiledomain.RoleOwner:
		return DestinationOwnerDashboard
	default:
		return DestinationSitterDashboard
	}
}
