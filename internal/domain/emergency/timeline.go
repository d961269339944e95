package emergency

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
)

type EventKind string

const (
	EventCreated             EventKind = "created"
	EventAssigned            EventKind = "assigned"
	EventHospitalAssigned    EventKind = "hospital-assigned"
	EventAmbulanceDispatched EventKind = "ambulance-dispatched"
	EventAmbulanceArrived    EventKind = "ambulance-arrived"
	EventPatientPickedUp     EventKind = "patient-picked-up"
	EventArrivedAtHospital   EventKind = "arrived-at-hospital"
	EventCompleted           EventKind = "completed"
	EventCancelled           EventKind = "cancelled"
)

// TimelineEvent is an immutable audit record. The timeline is append-only:
// events are never mutated or reordered once recorded.
type TimelineEvent struct {
	Event       EventKind   `json:"event"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
	ActorID     uuid.UUID   `json:"actor_id"`
	ActorRole   domain.Role `json:"actor_role"`
}

func (e *Emergency) AppendTimelineEvent(kind EventKind, description string, actorID uuid.UUID, actorRole domain.Role) {
	e.Timeline = append(e.Timeline, TimelineEvent{
		Event:       kind,
		Timestamp:   time.Now(),
		Description: description,
		ActorID:     actorID,
		ActorRole:   actorRole,
	})
}

// firstEvent returns the earliest timeline event of the given kind.
// Timeline order is append order, so the first match wins.
func (e *Emergency) firstEvent(kind EventKind) *TimelineEvent {
	for i := range e.Timeline {
		if e.Timeline[i].Event == kind {
			return &e.Timeline[i]
		}
	}
	return nil
}

// DeriveResponseMetrics recomputes the three response-time durations from
// the timeline milestones. Absent milestones leave the corresponding
// metric unset. The derivation is idempotent and side-effect-free.
func (e *Emergency) DeriveResponseMetrics() {
	created := e.firstEvent(EventCreated)
	assigned := e.firstEvent(EventAssigned)
	arrived := e.firstEvent(EventAmbulanceArrived)

	m := ResponseMetrics{}
	if created != nil && assigned != nil {
		secs := assigned.Timestamp.Sub(created.Timestamp).Seconds()
		m.AlertToAssignmentSecs = &secs
	}
	if assigned != nil && arrived != nil {
		secs := arrived.Timestamp.Sub(assigned.Timestamp).Seconds()
		m.AssignmentToArrivalSecs = &secs
	}
	if created != nil && arrived != nil {
		secs := arrived.Timestamp.Sub(created.Timestamp).Seconds()
		m.TotalResponseSecs = &secs
	}
	e.ResponseMetrics = m
}
