package event

import "time"

// SecurityEventsDestination is the topic/subject carrying recorded security
// events for downstream consumers (alerting, SIEM forwarders).
const SecurityEventsDestination = "security.events"

// SecurityEventsConsumerAlert is the consumer identity (queue group /
// consumer group) used by the alert module.
const SecurityEventsConsumerAlert = "security-events-alert"

// SecurityEventMessage is the wire shape of one audit event on the bus.
type SecurityEventMessage struct {
	ID         int64          `json:"id,string"`
	IdentityID int64          `json:"identity_id,string,omitempty"`
	Action     string         `json:"action"`
	Origin     string         `json:"origin,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
