package emergency

import (
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
)

// State transition possibilities:
//
//	pending -> assigned -> en-route -> arrived -> in-transit -> completed
//	any non-terminal state -> cancelled
//
// completed and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusEnRoute   Status = "en-route"
	StatusArrived   Status = "arrived"
	StatusInTransit Status = "in-transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusEnRoute, StatusArrived,
		StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var statusGraph = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusEnRoute, StatusCancelled},
	StatusEnRoute:   {StatusArrived, StatusCancelled},
	StatusArrived:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (e *Emergency) CanTransitionTo(newStatus Status) bool {
	for _, s := range statusGraph[e.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// timelineKindFor maps a target status to the milestone kind recorded on
// the timeline. `arrived` is recorded as ambulance-arrived so the metric
// derivation can find it.
func timelineKindFor(s Status) EventKind {
	switch s {
	case StatusAssigned:
		return EventAssigned
	case StatusEnRoute:
		return EventAmbulanceDispatched
	case StatusArrived:
		return EventAmbulanceArrived
	case StatusInTransit:
		return EventPatientPickedUp
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	default:
		return EventKind(s)
	}
}

// TransitionTo moves the emergency through the status graph. It appends
// exactly one timeline event, stamps terminal timestamps at most once,
// and recomputes response metrics on completion. Persistence and
// notification are the caller's responsibility.
func (e *Emergency) TransitionTo(newStatus Status, notes string, actor domain.Actor) error {
	if !newStatus.IsValid() {
		return ErrInvalidStatus
	}
	if !e.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, e.Status, newStatus)
	}

	e.Status = newStatus
	e.UpdatedBy = actor.ID

	if notes == "" {
		notes = fmt.Sprintf("Emergency status changed to %s", newStatus)
	}
	e.AppendTimelineEvent(timelineKindFor(newStatus), notes, actor.ID, actor.Role)

	now := time.Now()
	switch newStatus {
	case StatusCompleted:
		if e.CompletedAt == nil {
			e.CompletedAt = &now
		}
		e.DeriveResponseMetrics()
	case StatusCancelled:
		if e.CancelledAt == nil {
			e.CancelledAt = &now
		}
	}

	return nil
}
