package usecase

import "github.com/arklim/session-guard/internal/core/domain"

// Check outcomes recorded through GuardMetrics.
const (
	CheckOutcomeOK        = "ok"
	CheckOutcomeSkipped   = "skipped"
	CheckOutcomeFailed    = "failed"
	CheckOutcomeTentative = "tentative"
)

// Confirmation outcomes recorded through GuardMetrics.
const (
	ConfirmationConfirmed = "confirmed"
	ConfirmationRetracted = "retracted"
	ConfirmationFailed    = "failed"
)

// GuardMetrics captures telemetry hooks for the polling loop.
type GuardMetrics interface {
	IncCheck(outcome string)
	IncFetchFailure(kind domain.FetchErrorKind)
	IncConfirmation(outcome string)
	IncTermination(cause domain.TerminationCause)
	SetConsecutiveFailures(n int)
}

type nopMetrics struct{}

func (nopMetrics) IncCheck(string)                        {}
func (nopMetrics) IncFetchFailure(domain.FetchErrorKind)  {}
func (nopMetrics) IncConfirmation(string)                 {}
func (nopMetrics) IncTermination(domain.TerminationCause) {}
func (nopMetrics) SetConsecutiveFailures(int)             {}
