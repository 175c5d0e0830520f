package domain

import "time"

// TerminationCause labels what ended a session, for metrics and audit.
type TerminationCause string

const (
	TerminationCauseRevocation       TerminationCause = "revocation"
	TerminationCauseStoreUnreachable TerminationCause = "store_unreachable"
	TerminationCauseFailureThreshold TerminationCause = "failure_threshold"
	TerminationCauseManual           TerminationCause = "manual"
)

// Termination records the single exit of a guarded session.
type Termination struct {
	Reason       string
	Report       RevocationReport
	Cause        TerminationCause
	TerminatedAt time.Time
}
