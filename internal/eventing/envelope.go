package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	AgreementID   string          `json:"agreement_id"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	TenantID      string
	AgreementID   string
	SchemaVersion int
}

// NewEventID generates a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope constructs an envelope from event payload and metadata.
// AgreementID and OccurredAt fall back to the fields of the same name on the
// event struct.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return Envelope{}, errors.New("eventing: nil event")
		}
		value = value.Elem()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:       meta.EventID,
		EventType:     value.Type().String(),
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		TenantID:      meta.TenantID,
		AgreementID:   meta.AgreementID,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	if value.Kind() == reflect.Struct {
		if env.AgreementID == "" {
			if field := value.FieldByName("AgreementID"); field.IsValid() && field.Kind() == reflect.String {
				env.AgreementID = field.String()
			}
		}
		if env.OccurredAt.IsZero() {
			if field := value.FieldByName("OccurredAt"); field.IsValid() {
				if t, ok := field.Interface().(time.Time); ok {
					env.OccurredAt = t
				}
			}
		}
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.EventID == "" {
		env.EventID = NewEventID()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	return env, nil
}
