package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType tags a security event
type EventType string

const (
	EventSignInFailure   EventType = "sign_in_failure"
	EventSignInSuccess   EventType = "sign_in_success"
	EventOTPVerified     EventType = "otp_verified"
	EventIPBlocked       EventType = "ip_blocked"
	EventForcedSignOut   EventType = "forced_sign_out"
	EventPasswordChanged EventType = "password_changed"
)

// Event is a security event published to Kafka. The gateway only produces;
// consumers (alerting, SIEM ingestion) live elsewhere.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Email     string    `json:"email,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent builds an event with a fresh id and timestamp
func NewEvent(eventType EventType, email, clientIP, detail string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Email:     email,
		ClientIP:  clientIP,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// ToJSON serializes the event for the wire
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PartitionKey routes events for the same principal to the same partition
// so per-account ordering holds.
func (e *Event) PartitionKey() string {
	if e.Email != "" {
		return e.Email
	}
	return e.ClientIP
}
