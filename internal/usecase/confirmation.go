package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
)

// DefaultConfirmDelay separates the tentative and the confirming observation.
const DefaultConfirmDelay = 2 * time.Second

// ConfirmationResult is the outcome of a confirmation cycle.
type ConfirmationResult struct {
	// Confirmed is false when every tentative right was granted again (a retraction).
	Confirmed bool
	// Report holds the rights that survived confirmation.
	Report domain.RevocationReport
	// Snapshot is the re-fetched snapshot.
	Snapshot domain.PermissionSnapshot
}

// ConfirmationProtocol re-checks a tentative revocation after a fixed delay.
type ConfirmationProtocol struct {
	cache  *SnapshotCache
	delay  time.Duration
	logger *zap.Logger
}

// NewConfirmationProtocol constructs the protocol. A non-positive delay selects DefaultConfirmDelay.
func NewConfirmationProtocol(cache *SnapshotCache, delay time.Duration) *ConfirmationProtocol {
	if delay <= 0 {
		delay = DefaultConfirmDelay
	}
	return &ConfirmationProtocol{cache: cache, delay: delay, logger: zap.NewNop()}
}

// WithLogger attaches a structured logger.
func (p *ConfirmationProtocol) WithLogger(logger *zap.Logger) *ConfirmationProtocol {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Confirm waits, re-fetches bypassing the cache and keeps only the rights of report that
// are still denied relative to anchor, the baseline that produced report.
func (p *ConfirmationProtocol) Confirm(ctx context.Context, anchor domain.PermissionSnapshot, report domain.RevocationReport) (ConfirmationResult, error) {
	if err := sleepContext(ctx, p.delay); err != nil {
		return ConfirmationResult{}, err
	}

	snapshot, err := p.cache.Fetch(ctx)
	if err != nil {
		return ConfirmationResult{}, err
	}

	return p.Evaluate(anchor, report, snapshot), nil
}

// Evaluate applies the confirmation rule to an already fetched snapshot.
func (p *ConfirmationProtocol) Evaluate(anchor domain.PermissionSnapshot, report domain.RevocationReport, snapshot domain.PermissionSnapshot) ConfirmationResult {
	still := DetectRevocations(anchor, snapshot)
	survivors := make([]domain.Right, 0, len(report.Rights))
	for _, right := range report.Rights {
		if still.Contains(right) {
			survivors = append(survivors, right)
		}
	}

	confirmed := domain.NewRevocationReport(survivors, false)
	p.logger.Debug("revocation confirmation finished",
		zap.Strings("tentative", report.Names()),
		zap.Strings("confirmed", confirmed.Names()),
	)

	return ConfirmationResult{
		Confirmed: len(survivors) > 0,
		Report:    confirmed,
		Snapshot:  snapshot,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
