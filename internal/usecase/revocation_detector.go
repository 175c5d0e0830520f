package usecase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
)

// DetectRevocations compares current against baseline and returns the rights that went
// from granted to denied. Rights the baseline does not know are never reported.
func DetectRevocations(baseline, current domain.PermissionSnapshot) domain.RevocationReport {
	var revoked []domain.Right
	for _, right := range baseline.Names() {
		was, _ := baseline.Value(right)
		now, known := current.Value(right)
		if was && known && !now {
			revoked = append(revoked, right)
		}
	}
	return domain.NewRevocationReport(revoked, false)
}

// RevocationDetector owns the session baseline and reports degradations against it.
type RevocationDetector struct {
	mu       sync.Mutex
	baseline *domain.PermissionSnapshot
	logger   *zap.Logger
}

// NewRevocationDetector constructs a detector without a baseline.
func NewRevocationDetector() *RevocationDetector {
	return &RevocationDetector{logger: zap.NewNop()}
}

// WithLogger attaches a structured logger.
func (d *RevocationDetector) WithLogger(logger *zap.Logger) *RevocationDetector {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Baseline returns the current baseline and whether one has been captured.
func (d *RevocationDetector) Baseline() (domain.PermissionSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.baseline == nil {
		return domain.PermissionSnapshot{}, false
	}
	return *d.baseline, true
}

// Reset replaces the baseline with snapshot.
func (d *RevocationDetector) Reset(snapshot domain.PermissionSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = &snapshot
}

// Clear forgets the baseline.
func (d *RevocationDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = nil
}

// Detect compares current against the baseline and adopts grants into it.
// Without a baseline, current becomes the baseline and nothing is reported.
// The returned anchor is the baseline the comparison ran against.
func (d *RevocationDetector) Detect(current domain.PermissionSnapshot) (report domain.RevocationReport, anchor domain.PermissionSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.baseline == nil {
		d.baseline = &current
		return domain.RevocationReport{}, current
	}

	anchor = *d.baseline
	report = DetectRevocations(anchor, current)
	if report.IsEmpty() {
		if !anchor.Equal(current) {
			d.logger.Debug("baseline refreshed", zap.Any("rights", current.Rights()))
		}
		d.baseline = &current
		return report, anchor
	}

	// Adopt grants and first observations only; tentatively revoked rights stay granted.
	next := anchor
	for _, right := range current.Names() {
		now, _ := current.Value(right)
		was, known := anchor.Value(right)
		if !known || (!was && now) {
			next = next.With(right, now)
		}
	}
	d.baseline = &next
	return report, anchor
}
