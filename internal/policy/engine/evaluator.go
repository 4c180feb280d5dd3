// Package engine evaluates the session routing table as an OPA Rego policy so
// deployments can change routing without rebuilding the agent.
package engine

import (
	"pawsit/agent/internal/session"
)

const routingQuery = "data.pawsit.routing.destination"

// defaultRoutingPolicy mirrors session.StaticPolicy.
const defaultRoutingPolicy = `package pawsit.routing

default destination := "unauthenticated-home"

destination := "admin-dashboard" if {
	input.authenticated
	input.elevated
}

destination := "login" if {
	input.authenticated
	not input.elevated
	not input.profile_found
}

destination := "owner-dashboard" if {
	input.authenticated
	not input.elevated
	input.profile_found
	input.role == "owner"
}

destination := "sitter-dashboard" if {
	input.authenticated
	not input.elevated
	input.profile_found
	input.role != "owner"
}
`

var _ session.DestinationPolicy = (*RegoPolicy)(nil)

func buildInput(f session.Facts) map[string]interface{} {
	return map[string]interface{}{
		"authenticated": f.Authenticated,
		"elevated":      f.Elevated,
		"profile_found": f.ProfileFound,
		"role":          string(f.Role),
	}
}
