// Package events carries real-time fan-out for emergency state changes.
// Each emergency owns a topic keyed by its identifier; a single global
// topic additionally announces brand-new emergencies to all connected
// parties. Delivery is at-least-once within the lifetime of a
// subscription; there is no replay for late subscribers.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventNewEmergency      EventType = "new-emergency"
	EventStatusUpdated     EventType = "emergency-status-updated"
	EventAmbulanceAssigned EventType = "ambulance-assigned"
	EventHospitalAssigned  EventType = "hospital-assigned"
	EventLocationUpdated   EventType = "location-updated"
	EventNewChatMessage    EventType = "new-chat-message"
	EventCancelled         EventType = "emergency-cancelled"
)

type Event struct {
	Type        EventType       `json:"type"`
	EmergencyID string          `json:"emergency_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Topic names.
const (
	// TopicGlobal announces new emergencies to every connected party.
	TopicGlobal = "emergency:all"

	topicPrefix = "emergency:"
)

// EmergencyTopic returns the scoped topic for one emergency.
func EmergencyTopic(emergencyID string) string {
	return topicPrefix + emergencyID
}

// Bus is the real-time transport capability the orchestrator depends on.
type Bus interface {
	// Publish delivers the event to every live subscriber of the topic.
	Publish(ctx context.Context, topic string, event *Event) error

	// Subscribe returns a stream of events for the topic. The
	// subscription lives until ctx is cancelled; the returned channel is
	// closed afterwards.
	Subscribe(ctx context.Context, topic string) (<-chan *Event, error)

	Close() error
}

// NewEvent builds an event with the payload JSON-encoded.
func NewEvent(t EventType, emergencyID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:        t,
		EmergencyID: emergencyID,
		Timestamp:   time.Now(),
		Data:        data,
	}, nil
}
