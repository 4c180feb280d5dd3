// Package session turns identity-state transitions into exactly one navigation
// reset each and keeps the resulting state observable.
package session

// Destination names a top-level screen the navigation stack is reset to.
type Destination string

const (
	DestinationUnauthenticatedHome Destination = "unauthenticated-home"
	DestinationOwnerDashboard      Destination = "owner-dashboard"
	DestinationSitterDashboard     Destination = "sitter-dashboard"
	DestinationAdminDashboard      Destination = "admin-dashboard"
	DestinationLogin               Destination = "login"
)

// Valid reports whether d is one of the five destinations.
func (d Destination) Valid() bool {
	switch d {
	case DestinationUnauthenticatedHome, DestinationOwnerDashboard, DestinationSitterDashboard,
		DestinationAdminDashboard, DestinationLogin:
		return true
	}
	return false
}

func (d Destination) String() string { return string(d) }
