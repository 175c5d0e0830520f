package domain

import "time"

// SessionTerminatedEvent represents the payload for guard.session.terminated messages.
type SessionTerminatedEvent struct {
	EventID          string
	SessionID        string
	Reason           string
	RevokedRights    []Right
	StoreUnreachable bool
	TerminatedAt     time.Time
	Metadata         map[string]any
}
