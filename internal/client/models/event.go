package models

// EventKind names an auth change notification.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is one delivery on the change stream. Session is nil for
// EventSignedOut and for an initial event without a session.
type Event struct {
	ID      string
	Kind    EventKind
	Session *Session
}
