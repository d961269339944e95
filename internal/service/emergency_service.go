package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/responder"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/events"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
)

// maxSaveRetries bounds the reload-and-retry loop on optimistic
// concurrency conflicts before the conflict is surfaced to the caller.
const maxSaveRetries = 3

type EmergencyService struct {
	repo       emergency.Repository
	directory  responder.Directory
	bus        events.Bus
	dispatcher *Dispatcher
	auditSvc   *AuditService
	log        *zap.Logger
	metrics    *metrics.Collector
}

func NewEmergencyService(
	repo emergency.Repository,
	directory responder.Directory,
	bus events.Bus,
	dispatcher *Dispatcher,
	auditSvc *AuditService,
	log *zap.Logger,
	m *metrics.Collector,
) *EmergencyService {
	return &EmergencyService{
		repo:       repo,
		directory:  directory,
		bus:        bus,
		dispatcher: dispatcher,
		auditSvc:   auditSvc,
		log:        log,
		metrics:    m,
	}
}

type CreateEmergencyCommand struct {
	Type            emergency.Type
	Severity        emergency.Severity
	Priority        emergency.Priority
	Symptoms        []emergency.Symptom
	Description     string
	AdditionalNotes string
	Location        emergency.Location
	VitalSigns      *emergency.VitalSigns
	AITriage        *emergency.AITriage

	Patient           emergency.PatientSnapshot
	EmergencyContacts []emergency.EmergencyContact
}

// Create validates the report, persists the new record, appends the
// created milestone, announces it on the global topic, and seeds contact
// notifications. It returns the full record.
func (s *EmergencyService) Create(ctx context.Context, cmd CreateEmergencyCommand, actor domain.Actor) (*emergency.Emergency, error) {
	if err := validateCreate(&cmd); err != nil {
		return nil, err
	}

	now := time.Now()
	cmd.Location.Timestamp = now

	e := &emergency.Emergency{
		EmergencyID:     emergency.NewEmergencyID(),
		Type:            cmd.Type,
		Severity:        cmd.Severity,
		Priority:        cmd.Priority,
		PatientSnapshot: cmd.Patient,
		Location:        cmd.Location,
		Symptoms:        cmd.Symptoms,
		Description:     cmd.Description,
		AdditionalNotes: cmd.AdditionalNotes,
		VitalSigns:      cmd.VitalSigns,
		AITriage:        cmd.AITriage,
		Status:          emergency.StatusPending,
		CreatedBy:       actor.ID,
		UpdatedBy:       actor.ID,
		Version:         1,
	}

	e.AppendTimelineEvent(emergency.EventCreated, "Emergency alert created", actor.ID, actor.Role)

	for _, c := range cmd.EmergencyContacts {
		e.ContactsNotified = append(e.ContactsNotified, emergency.ContactNotification{
			Name:         c.Name,
			Relationship: c.Relationship,
			Phone:        c.Phone,
			Status:       emergency.DeliveryPending,
		})
		e.Notifications = append(e.Notifications, emergency.NotificationAttempt{
			Channel:   emergency.ChannelSMS,
			Recipient: c.Phone,
			Status:    emergency.DeliveryPending,
			Timestamp: now,
		})
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Error("failed to create emergency", zap.Error(err))
		return nil, fmt.Errorf("creating emergency: %w", err)
	}

	s.metrics.EmergenciesCreatedTotal.WithLabelValues(string(e.Severity)).Inc()

	s.publish(ctx, events.TopicGlobal, events.EventNewEmergency, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"type":         e.Type,
		"severity":     e.Severity,
		"priority":     e.Priority,
		"location":     e.Location,
		"patient_name": e.PatientSnapshot.Name,
	})

	if s.dispatcher != nil {
		for _, c := range cmd.EmergencyContacts {
			s.dispatcher.Enqueue(NotificationJob{
				EmergencyID: e.EmergencyID,
				Channel:     emergency.ChannelSMS,
				Recipient:   c.Phone,
				Payload:     fmt.Sprintf("Emergency alert for %s (%s). Responders are being coordinated.", e.PatientSnapshot.Name, e.EmergencyID),
			})
		}
	}

	s.auditSvc.LogAsync(actor, domain.ActionCreate, e.EmergencyID, "")

	return e, nil
}

func (s *EmergencyService) Get(ctx context.Context, emergencyID string, actor domain.Actor) (*emergency.Emergency, error) {
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RolePatient && e.PatientSnapshot.PatientID != actor.ID {
		return nil, ErrForbidden
	}
	return e, nil
}

func (s *EmergencyService) ActiveEmergencies(ctx context.Context, actor domain.Actor) ([]*emergency.Emergency, error) {
	if actor.Role == domain.RolePatient {
		return nil, ErrForbidden
	}
	return s.repo.ListActive(ctx)
}

func (s *EmergencyService) ListByPatient(ctx context.Context, patientID uuid.UUID, actor domain.Actor) ([]*emergency.Emergency, error) {
	if patientID != actor.ID && !actor.Is(domain.RoleAdmin, domain.RoleDoctor, domain.RoleHospital) {
		return nil, ErrForbidden
	}
	return s.repo.ListByPatient(ctx, patientID)
}

// UpdateStatus moves the emergency through the status graph. Conflicting
// concurrent saves are retried with a fresh load up to maxSaveRetries.
func (s *EmergencyService) UpdateStatus(ctx context.Context, emergencyID string, newStatus emergency.Status, notes string, actor domain.Actor) (*emergency.Emergency, error) {
	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		if !canUpdateStatus(actor, e) {
			return ErrForbidden
		}
		return e.TransitionTo(newStatus, notes, actor)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitionsTotal.WithLabelValues(string(newStatus)).Inc()

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventStatusUpdated, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"status":       e.Status,
		"updated_by":   actor.Name,
		"timestamp":    time.Now(),
	})

	s.auditSvc.LogAsync(actor, domain.ActionUpdate, e.EmergencyID,
		fmt.Sprintf(`{"status":%q}`, newStatus))

	return e, nil
}

// AssignAmbulance resolves the responder, overwrites the ambulance
// assignment, and transitions the emergency to assigned.
func (s *EmergencyService) AssignAmbulance(ctx context.Context, emergencyID string, responderID uuid.UUID, eta time.Time, actor domain.Actor) (*emergency.Emergency, error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleHospital) {
		return nil, ErrForbidden
	}

	amb, err := s.directory.GetByID(ctx, responderID)
	if err != nil {
		return nil, err
	}
	if amb.Kind != responder.KindAmbulance {
		return nil, responder.ErrResponderNotFound
	}

	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		// Reassignment overwrites, but never out of a terminal state.
		if e.IsTerminal() {
			return fmt.Errorf("%w: emergency is %s", emergency.ErrInvalidStatusTransition, e.Status)
		}
		e.AssignedAmbulance = &emergency.AmbulanceAssignment{
			ResponderID:      amb.ID,
			CrewName:         amb.Name,
			CrewPhone:        amb.Phone,
			EstimatedArrival: eta,
		}
		if e.Status == emergency.StatusPending {
			return e.TransitionTo(emergency.StatusAssigned,
				fmt.Sprintf("Ambulance assigned: %s", amb.Name), actor)
		}
		e.AppendTimelineEvent(emergency.EventAssigned,
			fmt.Sprintf("Ambulance reassigned: %s", amb.Name), actor.ID, actor.Role)
		e.UpdatedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AssignmentsTotal.WithLabelValues(string(responder.KindAmbulance)).Inc()

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventAmbulanceAssigned, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"ambulance":    e.AssignedAmbulance,
		"assigned_by":  actor.Name,
	})

	s.auditSvc.LogAsync(actor, domain.ActionAssign, e.EmergencyID,
		fmt.Sprintf(`{"ambulance_id":%q}`, responderID))

	return e, nil
}

// AssignHospital pre-selects the receiving hospital. Unlike ambulance
// assignment it does not change status by itself.
func (s *EmergencyService) AssignHospital(ctx context.Context, emergencyID string, responderID uuid.UUID, travelMins int, actor domain.Actor) (*emergency.Emergency, error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleHospital) {
		return nil, ErrForbidden
	}

	hosp, err := s.directory.GetByID(ctx, responderID)
	if err != nil {
		return nil, err
	}
	if hosp.Kind != responder.KindHospital {
		return nil, responder.ErrResponderNotFound
	}

	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		if e.IsTerminal() {
			return fmt.Errorf("%w: emergency is %s", emergency.ErrInvalidStatusTransition, e.Status)
		}
		e.AssignedHospital = &emergency.HospitalAssignment{
			ResponderID:         hosp.ID,
			Name:                hosp.Name,
			Address:             hosp.Address,
			EstimatedTravelMins: travelMins,
			BedAvailability: &emergency.BedAvailability{
				General:   hosp.GeneralBeds,
				ICU:       hosp.ICUBeds,
				Emergency: hosp.EmergencyBeds,
			},
		}
		e.AppendTimelineEvent(emergency.EventHospitalAssigned,
			fmt.Sprintf("Hospital assigned: %s", hosp.Name), actor.ID, actor.Role)
		e.UpdatedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AssignmentsTotal.WithLabelValues(string(responder.KindHospital)).Inc()

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventHospitalAssigned, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"hospital":     e.AssignedHospital,
		"assigned_by":  actor.Name,
	})

	s.auditSvc.LogAsync(actor, domain.ActionAssign, e.EmergencyID,
		fmt.Sprintf(`{"hospital_id":%q}`, responderID))

	return e, nil
}

// UpdateLocation overwrites the location while the patient or crew is
// moving. It never changes status.
func (s *EmergencyService) UpdateLocation(ctx context.Context, emergencyID string, coords emergency.Coordinates, accuracy *float64, actor domain.Actor) (*emergency.Emergency, error) {
	if verr := validateCoordinates(coords, nil); verr != nil {
		return nil, verr
	}

	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		if e.PatientSnapshot.PatientID != actor.ID && !actor.Is(domain.RoleAdmin, domain.RoleAmbulance) {
			return ErrForbidden
		}
		e.Location.Coords = coords
		e.Location.Accuracy = accuracy
		e.Location.Timestamp = time.Now()
		e.UpdatedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventLocationUpdated, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"location":     e.Location,
	})

	return e, nil
}

func (s *EmergencyService) PostChatMessage(ctx context.Context, emergencyID, message string, actor domain.Actor) (*emergency.Emergency, error) {
	if isBlank(message) {
		return nil, &ValidationError{Fields: []string{"message is required"}}
	}

	var msg emergency.ChatMessage
	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		msg = emergency.ChatMessage{
			SenderID:   actor.ID,
			SenderRole: actor.Role,
			SenderName: actor.Name,
			Message:    message,
			Timestamp:  time.Now(),
		}
		e.ChatMessages = append(e.ChatMessages, msg)
		e.UpdatedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ChatMessagesTotal.Inc()

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventNewChatMessage, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"message":      msg,
	})

	return e, nil
}

func (s *EmergencyService) ChatMessages(ctx context.Context, emergencyID string, actor domain.Actor) ([]emergency.ChatMessage, error) {
	e, err := s.Get(ctx, emergencyID, actor)
	if err != nil {
		return nil, err
	}
	return e.ChatMessages, nil
}

// Cancel is a terminal transition; the record is preserved for audit,
// never deleted.
func (s *EmergencyService) Cancel(ctx context.Context, emergencyID, reason string, actor domain.Actor) (*emergency.Emergency, error) {
	e, err := s.mutate(ctx, emergencyID, func(e *emergency.Emergency) error {
		if e.PatientSnapshot.PatientID != actor.ID && actor.Role != domain.RoleAdmin {
			return ErrForbidden
		}
		if reason == "" {
			reason = "Emergency cancelled by user"
		}
		return e.TransitionTo(emergency.StatusCancelled, reason, actor)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitionsTotal.WithLabelValues(string(emergency.StatusCancelled)).Inc()

	s.publish(ctx, events.EmergencyTopic(e.EmergencyID), events.EventCancelled, e.EmergencyID, map[string]any{
		"emergency_id": e.EmergencyID,
		"cancelled_by": actor.ID,
	})

	s.auditSvc.LogAsync(actor, domain.ActionCancel, e.EmergencyID, "")

	return e, nil
}

// mutate runs the load, validate, mutate, save unit, reloading and
// retrying on version conflicts so each operation appears atomic per
// emergency identifier.
func (s *EmergencyService) mutate(ctx context.Context, emergencyID string, fn func(*emergency.Emergency) error) (*emergency.Emergency, error) {
	for attempt := 0; ; attempt++ {
		e, err := s.repo.GetByID(ctx, emergencyID)
		if err != nil {
			return nil, err
		}

		if err := fn(e); err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, emergency.ErrVersionConflict) {
			return nil, err
		}

		s.metrics.SaveConflictsTotal.Inc()
		if attempt >= maxSaveRetries {
			return nil, err
		}
		s.log.Debug("save conflict, retrying with fresh load",
			zap.String("emergency_id", emergencyID),
			zap.Int("attempt", attempt+1),
		)
	}
}

// publish is fire-and-forget: a failed publish is logged, never surfaced
// to the mutating operation's caller.
func (s *EmergencyService) publish(ctx context.Context, topic string, t events.EventType, emergencyID string, payload any) {
	ev, err := events.NewEvent(t, emergencyID, payload)
	if err != nil {
		s.log.Error("failed to encode event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, topic, ev); err != nil {
		s.log.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

func canUpdateStatus(actor domain.Actor, e *emergency.Emergency) bool {
	if actor.Is(domain.RoleAdmin, domain.RoleAmbulance, domain.RoleHospital) {
		return true
	}
	return actor.Role == domain.RolePatient && e.PatientSnapshot.PatientID == actor.ID
}
