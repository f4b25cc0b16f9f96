package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const auditSchemaVersion = 2

// Audit actions.
const (
	ActionRoomCreated    = "room.created"
	ActionMessageSent    = "message.sent"
	ActionMessageEdited  = "message.edited"
	ActionMessageDeleted = "message.deleted"
	ActionFileUploaded   = "file.uploaded"
	ActionDebug          = "debug.test"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Record is one user-visible mutation.
type Record struct {
	Level     string
	Action    string
	RoomID    int64
	MessageID int64
	Detail    string
}

// Text renders the record for humans reading the audit stream.
func (r Record) Text() string {
	switch {
	case r.MessageID != 0 && r.RoomID != 0:
		return fmt.Sprintf("%s: message %d in room %d", r.Action, r.MessageID, r.RoomID)
	case r.MessageID != 0:
		return fmt.Sprintf("%s: message %d", r.Action, r.MessageID)
	case r.RoomID != 0 && r.Detail != "":
		return fmt.Sprintf("%s: room %d (%s)", r.Action, r.RoomID, r.Detail)
	case r.RoomID != 0:
		return fmt.Sprintf("%s: room %d", r.Action, r.RoomID)
	default:
		return r.Action
	}
}

// AuditEmitter records user-visible mutations (sends, edits, deletes, room
// creation) as audit envelopes on the broker.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         zerolog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Action    string `json:"action"`
	RoomID    int64  `json:"room_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Text      string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log.With().Str("component", "audit").Logger(),
	}
}

// Emit publishes rec. Broker failures are logged and dropped.
func (e *AuditEmitter) Emit(ctx context.Context, rec Record, requestID string, userID *int64) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	e.log.Debug().
		Str("action", rec.Action).
		Int64("room_id", rec.RoomID).
		Int64("message_id", rec.MessageID).
		Str("request_id", requestID).
		Msg("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:     rec.Level,
			Action:    rec.Action,
			RoomID:    rec.RoomID,
			MessageID: rec.MessageID,
			Text:      rec.Text(),
		},
	}

	headers := map[string]string{"x-audit-action": rec.Action}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.log.Warn().Err(err).Str("action", rec.Action).Msg("audit publish failed")
	}
}
