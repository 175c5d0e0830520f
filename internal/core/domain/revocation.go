package domain

import (
	"strings"
	"time"
)

// StoreRevokedReason is shown when the authorization store itself can no longer be consulted.
const StoreRevokedReason = "Your access to the donation database has been revoked. Please sign in again."

// RevocationReport describes rights that moved from granted to denied.
type RevocationReport struct {
	Rights           []Right
	StoreUnreachable bool
}

// NewRevocationReport builds a report with a sorted, de-duplicated right list.
func NewRevocationReport(rights []Right, storeUnreachable bool) RevocationReport {
	seen := make(map[Right]struct{}, len(rights))
	out := make([]Right, 0, len(rights))
	for _, r := range rights {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sortRights(out)
	return RevocationReport{Rights: out, StoreUnreachable: storeUnreachable}
}

// StoreUnreachableReport is the report used when the authorization backend is gone.
func StoreUnreachableReport() RevocationReport {
	return RevocationReport{StoreUnreachable: true}
}

// IsEmpty reports whether nothing was revoked.
func (r RevocationReport) IsEmpty() bool {
	return len(r.Rights) == 0 && !r.StoreUnreachable
}

// Contains reports whether right is part of the report.
func (r RevocationReport) Contains(right Right) bool {
	for _, candidate := range r.Rights {
		if candidate == right {
			return true
		}
	}
	return false
}

// Names returns the revoked rights as plain strings.
func (r RevocationReport) Names() []string {
	names := make([]string, 0, len(r.Rights))
	for _, right := range r.Rights {
		names = append(names, string(right))
	}
	return names
}

// Reason renders the message displayed on the next login screen.
func (r RevocationReport) Reason() string {
	if r.StoreUnreachable {
		return StoreRevokedReason
	}
	if len(r.Rights) == 0 {
		return ""
	}
	labels := make([]string, 0, len(r.Rights))
	for _, right := range r.Rights {
		labels = append(labels, rightLabel(right))
	}
	return "Your permissions changed (" + strings.Join(labels, ", ") + " revoked). Please sign in again."
}

func rightLabel(r Right) string {
	switch r {
	case RightCanDonate:
		return "donating"
	case RightCanViewHistory:
		return "viewing history"
	case RightCanViewNotification:
		return "viewing notifications"
	default:
		return string(r)
	}
}

// ErrorState captures the failure bookkeeping of the polling loop.
type ErrorState struct {
	ConsecutiveFailures int
	Paused              bool
}

// RevocationNotice is delivered to the component rendering the forced-logout dialog.
type RevocationNotice struct {
	ReportedRights   []Right
	StoreUnreachable bool
	Reason           string
	IssuedAt         time.Time

	ack func()
}

// NewRevocationNotice wires a notice to the callback invoked on acknowledgement.
func NewRevocationNotice(report RevocationReport, issuedAt time.Time, ack func()) RevocationNotice {
	rights := make([]Right, len(report.Rights))
	copy(rights, report.Rights)
	return RevocationNotice{
		ReportedRights:   rights,
		StoreUnreachable: report.StoreUnreachable,
		Reason:           report.Reason(),
		IssuedAt:         issuedAt,
		ack:              ack,
	}
}

// Acknowledge ends the countdown and terminates the session immediately.
func (n RevocationNotice) Acknowledge() {
	if n.ack != nil {
		n.ack()
	}
}
