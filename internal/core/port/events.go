package port

import (
	"context"

	"github.com/arklim/session-guard/internal/core/domain"
)

// EventPublisher emits audit events produced by the guard.
type EventPublisher interface {
	PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error
}
