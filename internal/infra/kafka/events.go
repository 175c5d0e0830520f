package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
	"github.com/arklim/session-guard/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	// EventSessionTerminated is the event type emitted when a guarded session ends.
	EventSessionTerminated = "session.terminated"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, sessionID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(sessionID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		p.logger.Debug("event enqueued",
			zap.String("event_type", eventType),
			zap.String("event_id", eventID),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sessionTerminatedPayload struct {
	SessionID        string         `json:"session_id"`
	Reason           string         `json:"reason"`
	RevokedRights    []string       `json:"revoked_rights"`
	StoreUnreachable bool           `json:"store_unreachable"`
	TerminatedAt     time.Time      `json:"terminated_at"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func newSessionTerminatedPayload(event domain.SessionTerminatedEvent) sessionTerminatedPayload {
	rights := make([]string, 0, len(event.RevokedRights))
	for _, r := range event.RevokedRights {
		rights = append(rights, string(r))
	}
	return sessionTerminatedPayload{
		SessionID:        event.SessionID,
		Reason:           event.Reason,
		RevokedRights:    rights,
		StoreUnreachable: event.StoreUnreachable,
		TerminatedAt:     event.TerminatedAt.UTC(),
		Metadata:         event.Metadata,
	}
}

// PublishSessionTerminated publishes session.terminated events.
func (p *EventPublisher) PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error {
	return p.publish(ctx, event.EventID, EventSessionTerminated, event.SessionID, event.TerminatedAt, newSessionTerminatedPayload(event))
}

var _ port.EventPublisher = (*EventPublisher)(nil)
