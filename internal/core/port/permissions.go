package port

import (
	"context"

	"github.com/arklim/session-guard/internal/core/domain"
)

// SnapshotFetcher performs the authenticated call returning the caller's current rights.
// Failures are returned as *domain.FetchError.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (domain.SnapshotPayload, error)
}

// LogoutNotifier tells the backend that the session is being closed.
type LogoutNotifier interface {
	NotifyLogout(ctx context.Context, reason string) error
}
