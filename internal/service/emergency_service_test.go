package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/responder"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/events"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
)

// Registered once: the prometheus default registry rejects duplicates.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Collector
)

func testCollector() *metrics.Collector {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewCollector("lifeline_test")
	})
	return testMetrics
}

// memoryRepo mimics the version-guarded store: Save fails with
// ErrVersionConflict unless the caller loaded the current version.
type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*emergency.Emergency

	// conflictsToInject makes the next N saves fail regardless of version.
	conflictsToInject int
	saveCalls         int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*emergency.Emergency)}
}

func (r *memoryRepo) Create(ctx context.Context, e *emergency.Emergency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.records[e.EmergencyID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, emergencyID string) (*emergency.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[emergencyID]
	if !ok {
		return nil, emergency.ErrEmergencyNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memoryRepo) Save(ctx context.Context, e *emergency.Emergency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++

	if r.conflictsToInject > 0 {
		r.conflictsToInject--
		return emergency.ErrVersionConflict
	}

	stored, ok := r.records[e.EmergencyID]
	if !ok {
		return emergency.ErrEmergencyNotFound
	}
	if stored.Version != e.Version {
		return emergency.ErrVersionConflict
	}
	e.Version++
	cp := *e
	r.records[e.EmergencyID] = &cp
	return nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]*emergency.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*emergency.Emergency
	for _, e := range r.records {
		if e.IsActive() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*emergency.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*emergency.Emergency
	for _, e := range r.records {
		if e.PatientSnapshot.PatientID == patientID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetByID(ctx context.Context, id uuid.UUID) (*responder.Responder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*responder.Responder), args.Error(1)
}

type nopAuditRepo struct{}

func (nopAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error { return nil }

type fixture struct {
	svc       *EmergencyService
	repo      *memoryRepo
	directory *mockDirectory
	bus       *events.MemoryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemoryRepo()
	directory := &mockDirectory{}
	bus := events.NewMemoryBus(zap.NewNop(), nil)
	t.Cleanup(func() { _ = bus.Close() })

	auditSvc := NewAuditService(nopAuditRepo{}, zap.NewNop(), nil)
	t.Cleanup(auditSvc.Shutdown)

	svc := NewEmergencyService(repo, directory, bus, nil, auditSvc, zap.NewNop(), testCollector())
	return &fixture{svc: svc, repo: repo, directory: directory, bus: bus}
}

func adminActor() domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin, Name: "Dispatch Admin"}
}

func patientActor() domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: domain.RolePatient, Name: "Asha Rao"}
}

func validCreateCommand(patientID uuid.UUID) CreateEmergencyCommand {
	return CreateEmergencyCommand{
		Type:        emergency.TypeCardiac,
		Severity:    emergency.SeverityCritical,
		Priority:    emergency.PriorityImmediate,
		Description: "Chest pain, shortness of breath",
		Location: emergency.Location{
			City:   "Pune",
			Coords: emergency.Coordinates{Latitude: 18.5204, Longitude: 73.8567},
		},
		Patient: emergency.PatientSnapshot{PatientID: patientID, Name: "Asha Rao", Age: 58},
	}
}

func createTestEmergency(t *testing.T, f *fixture, actor domain.Actor) *emergency.Emergency {
	t.Helper()
	e, err := f.svc.Create(context.Background(), validCreateCommand(actor.ID), actor)
	require.NoError(t, err)
	return e
}

func TestCreateEmergency(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()

	sub, err := f.bus.Subscribe(context.Background(), events.TopicGlobal)
	require.NoError(t, err)

	e, err := f.svc.Create(context.Background(), validCreateCommand(actor.ID), actor)
	require.NoError(t, err)

	assert.Regexp(t, `^EMG-\d+-[A-Z0-9]{5}$`, e.EmergencyID)
	assert.Equal(t, emergency.StatusPending, e.Status)
	assert.Equal(t, int64(1), e.Version)
	require.Len(t, e.Timeline, 1)
	assert.Equal(t, emergency.EventCreated, e.Timeline[0].Event)
	assert.Equal(t, actor.ID, e.CreatedBy)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventNewEmergency, ev.Type)
		assert.Equal(t, e.EmergencyID, ev.EmergencyID)
	case <-time.After(time.Second):
		t.Fatal("expected new-emergency event on the global topic")
	}

	stored, err := f.repo.GetByID(context.Background(), e.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, e.EmergencyID, stored.EmergencyID)
}

func TestCreateEmergencySeedsContactNotifications(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()

	cmd := validCreateCommand(actor.ID)
	cmd.EmergencyContacts = []emergency.EmergencyContact{
		{Name: "Ravi Rao", Relationship: "spouse", Phone: "+919800000001"},
		{Name: "Meera Rao", Relationship: "daughter", Phone: "+919800000002"},
	}

	e, err := f.svc.Create(context.Background(), cmd, actor)
	require.NoError(t, err)

	require.Len(t, e.ContactsNotified, 2)
	require.Len(t, e.Notifications, 2)
	for _, c := range e.ContactsNotified {
		assert.Equal(t, emergency.DeliveryPending, c.Status)
	}
	for _, n := range e.Notifications {
		assert.Equal(t, emergency.ChannelSMS, n.Channel)
		assert.Equal(t, emergency.DeliveryPending, n.Status)
		assert.Zero(t, n.RetryCount)
	}
}

func TestCreateEmergencyValidation(t *testing.T) {
	f := newFixture(t)

	cmd := CreateEmergencyCommand{
		Type:     emergency.Type("invalid"),
		Severity: emergency.SeverityHigh,
	}
	_, err := f.svc.Create(context.Background(), cmd, patientActor())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// Every violation is reported, not just the first.
	assert.GreaterOrEqual(t, len(verr.Fields), 4)
	assert.Contains(t, verr.Fields, "priority is required")
	assert.Contains(t, verr.Fields, "description is required")
	assert.Contains(t, verr.Fields, "coordinates are required")
	assert.Contains(t, verr.Fields, "patient is required")
}

func TestGetEmergency(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	got, err := f.svc.Get(context.Background(), e.EmergencyID, actor)
	require.NoError(t, err)
	assert.Equal(t, e.EmergencyID, got.EmergencyID)

	_, err = f.svc.Get(context.Background(), "EMG-0-XXXXX", actor)
	require.ErrorIs(t, err, emergency.ErrEmergencyNotFound)
}

func TestGetEmergencyForbiddenForOtherPatient(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	_, err := f.svc.Get(context.Background(), e.EmergencyID, patientActor())
	require.ErrorIs(t, err, ErrForbidden)

	// Coordinating roles can read any record.
	_, err = f.svc.Get(context.Background(), e.EmergencyID, adminActor())
	require.NoError(t, err)
}

func TestActiveEmergenciesForbiddenForPatients(t *testing.T) {
	f := newFixture(t)
	createTestEmergency(t, f, patientActor())

	_, err := f.svc.ActiveEmergencies(context.Background(), patientActor())
	require.ErrorIs(t, err, ErrForbidden)

	list, err := f.svc.ActiveEmergencies(context.Background(), adminActor())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListByPatient(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	createTestEmergency(t, f, actor)

	list, err := f.svc.ListByPatient(context.Background(), actor.ID, actor)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Another patient cannot list someone else's history.
	_, err = f.svc.ListByPatient(context.Background(), actor.ID, patientActor())
	require.ErrorIs(t, err, ErrForbidden)

	list, err = f.svc.ListByPatient(context.Background(), actor.ID, adminActor())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateStatusRequiresAssignmentFirst(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	_, err := f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusEnRoute, "", adminActor())
	require.ErrorIs(t, err, emergency.ErrInvalidStatusTransition)

	stored, err := f.repo.GetByID(context.Background(), e.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusPending, stored.Status)
	assert.Len(t, stored.Timeline, 1)
}

func TestUpdateStatusForbiddenLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	doctor := domain.Actor{ID: uuid.New(), Role: domain.RoleDoctor, Name: "Dr. Iyer"}
	_, err := f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusAssigned, "", doctor)
	require.ErrorIs(t, err, ErrForbidden)

	stored, err := f.repo.GetByID(context.Background(), e.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusPending, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestUpdateStatusPublishesScopedEvent(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	sub, err := f.bus.Subscribe(context.Background(), events.EmergencyTopic(e.EmergencyID))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusAssigned, "", adminActor())
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventStatusUpdated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected status event on the emergency topic")
	}
}

func TestAssignAmbulance(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	ambID := uuid.New()
	f.directory.On("GetByID", mock.Anything, ambID).Return(&responder.Responder{
		ID:    ambID,
		Kind:  responder.KindAmbulance,
		Name:  "Unit 12",
		Phone: "+919800000099",
	}, nil)

	eta := time.Now().Add(9 * time.Minute)
	got, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, ambID, eta, adminActor())
	require.NoError(t, err)

	assert.Equal(t, emergency.StatusAssigned, got.Status)
	require.NotNil(t, got.AssignedAmbulance)
	assert.Equal(t, ambID, got.AssignedAmbulance.ResponderID)
	assert.Equal(t, "Unit 12", got.AssignedAmbulance.CrewName)

	require.Len(t, got.Timeline, 2)
	assert.Equal(t, emergency.EventAssigned, got.Timeline[1].Event)
	assert.Equal(t, "Ambulance assigned: Unit 12", got.Timeline[1].Description)
}

func TestAssignAmbulanceReassignmentKeepsStatus(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())
	admin := adminActor()

	first, second := uuid.New(), uuid.New()
	f.directory.On("GetByID", mock.Anything, first).Return(&responder.Responder{
		ID: first, Kind: responder.KindAmbulance, Name: "Unit 1",
	}, nil)
	f.directory.On("GetByID", mock.Anything, second).Return(&responder.Responder{
		ID: second, Kind: responder.KindAmbulance, Name: "Unit 2",
	}, nil)

	_, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, first, time.Now().Add(5*time.Minute), admin)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusEnRoute, "", admin)
	require.NoError(t, err)

	got, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, second, time.Now().Add(3*time.Minute), admin)
	require.NoError(t, err)

	assert.Equal(t, emergency.StatusEnRoute, got.Status)
	assert.Equal(t, second, got.AssignedAmbulance.ResponderID)
	last := got.Timeline[len(got.Timeline)-1]
	assert.Equal(t, "Ambulance reassigned: Unit 2", last.Description)
}

func TestAssignAmbulanceRejectsHospitalResponder(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	hospID := uuid.New()
	f.directory.On("GetByID", mock.Anything, hospID).Return(&responder.Responder{
		ID: hospID, Kind: responder.KindHospital, Name: "City General",
	}, nil)

	_, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, hospID, time.Now(), adminActor())
	require.ErrorIs(t, err, responder.ErrResponderNotFound)
}

func TestAssignAmbulanceForbiddenRoles(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	_, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, uuid.New(), time.Now(), actor)
	require.ErrorIs(t, err, ErrForbidden)
	f.directory.AssertNotCalled(t, "GetByID")
}

func TestAssignHospitalDoesNotChangeStatus(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	hospID := uuid.New()
	f.directory.On("GetByID", mock.Anything, hospID).Return(&responder.Responder{
		ID:            hospID,
		Kind:          responder.KindHospital,
		Name:          "City General",
		Address:       "12 MG Road",
		GeneralBeds:   40,
		ICUBeds:       6,
		EmergencyBeds: 10,
	}, nil)

	got, err := f.svc.AssignHospital(context.Background(), e.EmergencyID, hospID, 14, adminActor())
	require.NoError(t, err)

	assert.Equal(t, emergency.StatusPending, got.Status)
	require.NotNil(t, got.AssignedHospital)
	assert.Equal(t, "City General", got.AssignedHospital.Name)
	assert.Equal(t, 14, got.AssignedHospital.EstimatedTravelMins)
	require.NotNil(t, got.AssignedHospital.BedAvailability)
	assert.Equal(t, 6, got.AssignedHospital.BedAvailability.ICU)

	last := got.Timeline[len(got.Timeline)-1]
	assert.Equal(t, emergency.EventHospitalAssigned, last.Event)
}

func TestUpdateLocation(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	accuracy := 12.5
	got, err := f.svc.UpdateLocation(context.Background(), e.EmergencyID,
		emergency.Coordinates{Latitude: 18.53, Longitude: 73.86}, &accuracy, actor)
	require.NoError(t, err)

	assert.Equal(t, 18.53, got.Location.Coords.Latitude)
	require.NotNil(t, got.Location.Accuracy)
	assert.Equal(t, 12.5, *got.Location.Accuracy)
	// Location updates never touch the status or timeline.
	assert.Equal(t, emergency.StatusPending, got.Status)
	assert.Len(t, got.Timeline, 1)
}

func TestUpdateLocationRejectsOutOfRangeCoordinates(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	_, err := f.svc.UpdateLocation(context.Background(), e.EmergencyID,
		emergency.Coordinates{Latitude: 91, Longitude: 200}, nil, actor)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestPostChatMessage(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	sub, err := f.bus.Subscribe(context.Background(), events.EmergencyTopic(e.EmergencyID))
	require.NoError(t, err)

	got, err := f.svc.PostChatMessage(context.Background(), e.EmergencyID, "Please hurry", actor)
	require.NoError(t, err)

	require.Len(t, got.ChatMessages, 1)
	assert.Equal(t, "Please hurry", got.ChatMessages[0].Message)
	assert.Equal(t, actor.ID, got.ChatMessages[0].SenderID)
	assert.Equal(t, domain.RolePatient, got.ChatMessages[0].SenderRole)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventNewChatMessage, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected chat event on the emergency topic")
	}
}

func TestPostChatMessageRejectsBlank(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.PostChatMessage(context.Background(), e.EmergencyID, msg, actor)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	}

	stored, err := f.repo.GetByID(context.Background(), e.EmergencyID)
	require.NoError(t, err)
	assert.Empty(t, stored.ChatMessages)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	got, err := f.svc.Cancel(context.Background(), e.EmergencyID, "false alarm", actor)
	require.NoError(t, err)

	assert.Equal(t, emergency.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	last := got.Timeline[len(got.Timeline)-1]
	assert.Equal(t, emergency.EventCancelled, last.Event)
	assert.Equal(t, "false alarm", last.Description)
}

func TestCancelForbiddenForUnrelatedPatient(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	_, err := f.svc.Cancel(context.Background(), e.EmergencyID, "", patientActor())
	require.ErrorIs(t, err, ErrForbidden)

	stored, err := f.repo.GetByID(context.Background(), e.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusPending, stored.Status)
}

func TestCancelTerminalEmergencyFails(t *testing.T) {
	f := newFixture(t)
	actor := patientActor()
	e := createTestEmergency(t, f, actor)

	_, err := f.svc.Cancel(context.Background(), e.EmergencyID, "", actor)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), e.EmergencyID, "", actor)
	require.ErrorIs(t, err, emergency.ErrInvalidStatusTransition)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	f.repo.conflictsToInject = 2
	got, err := f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusAssigned, "", adminActor())
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusAssigned, got.Status)
	// Two conflicted saves plus the one that succeeded.
	assert.Equal(t, 3, f.repo.saveCalls)
}

func TestMutateGivesUpAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	e := createTestEmergency(t, f, patientActor())

	f.repo.conflictsToInject = maxSaveRetries + 1
	_, err := f.svc.UpdateStatus(context.Background(), e.EmergencyID, emergency.StatusAssigned, "", adminActor())
	require.ErrorIs(t, err, emergency.ErrVersionConflict)
}

func TestFullResponseLifecycle(t *testing.T) {
	f := newFixture(t)
	patient := patientActor()
	admin := adminActor()
	e := createTestEmergency(t, f, patient)

	ambID := uuid.New()
	f.directory.On("GetByID", mock.Anything, ambID).Return(&responder.Responder{
		ID: ambID, Kind: responder.KindAmbulance, Name: "Unit 7",
	}, nil)

	_, err := f.svc.AssignAmbulance(context.Background(), e.EmergencyID, ambID, time.Now().Add(6*time.Minute), admin)
	require.NoError(t, err)

	crew := domain.Actor{ID: uuid.New(), Role: domain.RoleAmbulance, Name: "Unit 7 Crew"}
	for _, next := range []emergency.Status{
		emergency.StatusEnRoute,
		emergency.StatusArrived,
		emergency.StatusInTransit,
		emergency.StatusCompleted,
	} {
		_, err = f.svc.UpdateStatus(context.Background(), e.EmergencyID, next, "", crew)
		require.NoError(t, err)
	}

	final, err := f.svc.Get(context.Background(), e.EmergencyID, admin)
	require.NoError(t, err)

	assert.Equal(t, emergency.StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Nil(t, final.CancelledAt)

	// created, assigned, dispatched, arrived, picked-up, completed
	require.Len(t, final.Timeline, 6)
	require.NotNil(t, final.ResponseMetrics.AlertToAssignmentSecs)
	require.NotNil(t, final.ResponseMetrics.AssignmentToArrivalSecs)
	require.NotNil(t, final.ResponseMetrics.TotalResponseSecs)
	assert.GreaterOrEqual(t, *final.ResponseMetrics.TotalResponseSecs, 0.0)
}
