package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the service.
const (
	EventPrincipalRegistered = "iam.principal.registered"
	EventRoleGrantsChanged   = "iam.role.grants.changed"
	EventTokenReuseDetected  = "iam.token.reuse_detected"
)

// EventPublisher implements port.EventPublisher on a Kafka producer.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher constructs a Kafka-backed publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subject string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Subject:   subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(body),
	}
	if subject != "" {
		msg.Key = sarama.StringEncoder(subject)
	}

	select {
	case p.producer.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func subjectOf(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// PublishPrincipalRegistered publishes iam.principal.registered.
func (p *EventPublisher) PublishPrincipalRegistered(ctx context.Context, event domain.PrincipalRegisteredEvent) error {
	payload := struct {
		PrincipalID  int64     `json:"principal_id"`
		Username     string    `json:"username"`
		Method       string    `json:"method"`
		RoleIDs      []int64   `json:"role_ids"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		PrincipalID:  event.PrincipalID,
		Username:     event.Username,
		Method:       event.Method,
		RoleIDs:      event.RoleIDs,
		RegisteredAt: event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventPrincipalRegistered, subjectOf(event.PrincipalID), event.RegisteredAt, payload)
}

// PublishRoleGrantsChanged publishes iam.role.grants.changed.
func (p *EventPublisher) PublishRoleGrantsChanged(ctx context.Context, event domain.RoleGrantsChangedEvent) error {
	payload := struct {
		RoleIDs   []int64   `json:"role_ids"`
		Change    string    `json:"change"`
		ChangedBy int64     `json:"changed_by,omitempty"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		RoleIDs:   event.RoleIDs,
		Change:    event.Change,
		ChangedBy: event.ChangedBy,
		ChangedAt: event.ChangedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventRoleGrantsChanged, subjectOf(event.ChangedBy), event.ChangedAt, payload)
}

// PublishTokenReuseDetected publishes iam.token.reuse_detected.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		PrincipalID int64     `json:"principal_id,omitempty"`
		TokenID     string    `json:"token_id,omitempty"`
		IPAddress   string    `json:"ip_address,omitempty"`
		DetectedAt  time.Time `json:"detected_at"`
	}{
		PrincipalID: event.PrincipalID,
		TokenID:     event.TokenID,
		IPAddress:   event.IPAddress,
		DetectedAt:  event.DetectedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventTokenReuseDetected, subjectOf(event.PrincipalID), event.DetectedAt, payload)
}
