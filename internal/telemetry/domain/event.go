package domain

import "time"

// Event types emitted by the session agent.
const (
	EventSessionResolved  = "session.resolved"
	EventSessionSignedOut = "session.signed_out"
	EventDeepLinkOpened   = "deeplink.opened"
	EventDeepLinkIgnored  = "deeplink.ignored"
	EventGuardDenied      = "guard.denied"
	EventShellRPC         = "shell.rpc"
)

// Event is one telemetry record. The JSON form is what travels over Kafka and
// what the worker parses for Loki labels.
type Event struct {
	ID          string            `json:"id"`
	EventType   string            `json:"eventType"`
	Source      string            `json:"source"`
	UserID      string            `json:"userId,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
