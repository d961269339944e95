package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/service"
)

type EmergencyHandler struct {
	svc *service.EmergencyService
}

func NewEmergencyHandler(svc *service.EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{svc: svc}
}

func (h *EmergencyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/emergencies", h.Create)
	rg.GET("/emergencies/active", h.Active)
	rg.GET("/emergencies/:id", h.Get)
	rg.PUT("/emergencies/:id/status", h.UpdateStatus)
	rg.PUT("/emergencies/:id/assign-ambulance", h.AssignAmbulance)
	rg.PUT("/emergencies/:id/assign-hospital", h.AssignHospital)
	rg.PUT("/emergencies/:id/location", h.UpdateLocation)
	rg.POST("/emergencies/:id/chat", h.PostChatMessage)
	rg.GET("/emergencies/:id/chat", h.ChatMessages)
	rg.DELETE("/emergencies/:id", h.Cancel)
	rg.GET("/patients/:id/emergencies", h.ListByPatient)
}

type createEmergencyRequest struct {
	Type            emergency.Type        `json:"type"`
	Severity        emergency.Severity    `json:"severity"`
	Priority        emergency.Priority    `json:"priority"`
	Symptoms        []emergency.Symptom   `json:"symptoms"`
	Description     string                `json:"description"`
	AdditionalNotes string                `json:"additional_notes"`
	Location        emergency.Location    `json:"location"`
	VitalSigns      *emergency.VitalSigns `json:"vital_signs"`
	AITriage        *emergency.AITriage   `json:"ai_triage"`

	Patient           *emergency.PatientSnapshot   `json:"patient"`
	EmergencyContacts []emergency.EmergencyContact `json:"emergency_contacts"`
}

func (h *EmergencyHandler) Create(c *gin.Context) {
	var req createEmergencyRequest
	if !bindJSON(c, &req) {
		return
	}

	actor := actorFrom(c)

	// Patients report for themselves; coordinating roles may report on
	// behalf of a patient by supplying the snapshot.
	patient := emergency.PatientSnapshot{PatientID: actor.ID, Name: actor.Name}
	if req.Patient != nil {
		patient = *req.Patient
		if patient.PatientID == uuid.Nil && actor.Role == domain.RolePatient {
			patient.PatientID = actor.ID
		}
	}

	e, err := h.svc.Create(c.Request.Context(), service.CreateEmergencyCommand{
		Type:              req.Type,
		Severity:          req.Severity,
		Priority:          req.Priority,
		Symptoms:          req.Symptoms,
		Description:       req.Description,
		AdditionalNotes:   req.AdditionalNotes,
		Location:          req.Location,
		VitalSigns:        req.VitalSigns,
		AITriage:          req.AITriage,
		Patient:           patient,
		EmergencyContacts: req.EmergencyContacts,
	}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, e)
}

func (h *EmergencyHandler) Get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e)
}

func (h *EmergencyHandler) Active(c *gin.Context) {
	list, err := h.svc.ActiveEmergencies(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, list)
}

func (h *EmergencyHandler) ListByPatient(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListByPatient(c.Request.Context(), patientID, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, list)
}

type updateStatusRequest struct {
	Status emergency.Status `json:"status" binding:"required"`
	Notes  string           `json:"notes"`
}

func (h *EmergencyHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	e, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Notes, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e)
}

type assignAmbulanceRequest struct {
	AmbulanceID      uuid.UUID `json:"ambulance_id" binding:"required"`
	EstimatedArrival time.Time `json:"estimated_arrival" binding:"required"`
}

func (h *EmergencyHandler) AssignAmbulance(c *gin.Context) {
	var req assignAmbulanceRequest
	if !bindJSON(c, &req) {
		return
	}

	e, err := h.svc.AssignAmbulance(c.Request.Context(), c.Param("id"), req.AmbulanceID, req.EstimatedArrival, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e)
}

type assignHospitalRequest struct {
	HospitalID          uuid.UUID `json:"hospital_id" binding:"required"`
	EstimatedTravelMins int       `json:"estimated_travel_mins"`
}

func (h *EmergencyHandler) AssignHospital(c *gin.Context) {
	var req assignHospitalRequest
	if !bindJSON(c, &req) {
		return
	}

	e, err := h.svc.AssignHospital(c.Request.Context(), c.Param("id"), req.HospitalID, req.EstimatedTravelMins, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e)
}

type updateLocationRequest struct {
	Coordinates emergency.Coordinates `json:"coordinates"`
	Accuracy    *float64              `json:"accuracy"`
}

func (h *EmergencyHandler) UpdateLocation(c *gin.Context) {
	var req updateLocationRequest
	if !bindJSON(c, &req) {
		return
	}

	e, err := h.svc.UpdateLocation(c.Request.Context(), c.Param("id"), req.Coordinates, req.Accuracy, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e.Location)
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

func (h *EmergencyHandler) PostChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	_, err := h.svc.PostChatMessage(c.Request.Context(), c.Param("id"), req.Message, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "chat message sent"})
}

func (h *EmergencyHandler) ChatMessages(c *gin.Context) {
	msgs, err := h.svc.ChatMessages(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, msgs)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *EmergencyHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	// Body is optional on cancel.
	_ = c.ShouldBindJSON(&req)

	e, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, e)
}
