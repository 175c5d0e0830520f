package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a log-only event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishSessionTerminated logs session.terminated events.
func (p *StubPublisher) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	p.logger.Info("Stub event published",
		zap.String("event_type", EventSessionTerminated),
		zap.String("session_id", event.SessionID),
		zap.Time("timestamp", event.TerminatedAt.UTC()),
		zap.Any("payload", newSessionTerminatedPayload(event)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
