package emergency

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain"
)

type Type string

const (
	TypeMedical      Type = "medical"
	TypeTrauma       Type = "trauma"
	TypeCardiac      Type = "cardiac"
	TypeRespiratory  Type = "respiratory"
	TypeNeurological Type = "neurological"
	TypePediatric    Type = "pediatric"
	TypeObstetric    Type = "obstetric"
	TypeOther        Type = "other"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeMedical, TypeTrauma, TypeCardiac, TypeRespiratory,
		TypeNeurological, TypePediatric, TypeObstetric, TypeOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
	PriorityImmediate Priority = "immediate"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityEmergency, PriorityImmediate:
		return true
	}
	return false
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Location struct {
	Street    string      `json:"street,omitempty"`
	City      string      `json:"city,omitempty"`
	State     string      `json:"state,omitempty"`
	Country   string      `json:"country,omitempty"`
	ZipCode   string      `json:"zip_code,omitempty"`
	Coords    Coordinates `json:"coordinates"`
	Accuracy  *float64    `json:"accuracy,omitempty"` // GPS accuracy in meters
	Timestamp time.Time   `json:"timestamp"`
}

type Symptom struct {
	Name     string `json:"name"`
	Severity string `json:"severity,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type Consciousness string

const (
	ConsciousnessAlert        Consciousness = "alert"
	ConsciousnessVerbal       Consciousness = "verbal"
	ConsciousnessPain         Consciousness = "pain"
	ConsciousnessUnresponsive Consciousness = "unresponsive"
)

type VitalSigns struct {
	BloodPressure    string        `json:"blood_pressure,omitempty"`
	HeartRate        int           `json:"heart_rate,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	OxygenSaturation int           `json:"oxygen_saturation,omitempty"`
	RespiratoryRate  int           `json:"respiratory_rate,omitempty"`
	Consciousness    Consciousness `json:"consciousness,omitempty"`
}

// AITriage is an advisory annotation only. It never drives a transition.
type AITriage struct {
	UrgencyScore        int       `json:"urgency_score"` // 1-10
	RecommendedPriority Priority  `json:"recommended_priority,omitempty"`
	SuggestedActions    []string  `json:"suggested_actions,omitempty"`
	Confidence          float64   `json:"confidence"` // 0-1
	AnalyzedAt          time.Time `json:"analyzed_at"`
}

// PatientSnapshot is captured at creation so the record stays readable
// even if the patient's profile later changes.
type PatientSnapshot struct {
	PatientID  uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	Name       string    `gorm:"column:patient_name;type:varchar(200)" json:"name"`
	Age        int       `gorm:"column:patient_age" json:"age"`
	Phone      string    `gorm:"column:patient_phone;type:varchar(20)" json:"phone"`
	BloodGroup string    `gorm:"column:patient_blood_group;type:varchar(5)" json:"blood_group"`
}

type AmbulanceAssignment struct {
	ResponderID      uuid.UUID `json:"responder_id"`
	CrewName         string    `json:"crew_name"`
	CrewPhone        string    `json:"crew_phone"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	CurrentLocation  *Location `json:"current_location,omitempty"`
}

type BedAvailability struct {
	General   int `json:"general"`
	ICU       int `json:"icu"`
	Emergency int `json:"emergency"`
}

type HospitalAssignment struct {
	ResponderID         uuid.UUID        `json:"responder_id"`
	Name                string           `json:"name"`
	Address             string           `json:"address"`
	EstimatedTravelMins int              `json:"estimated_travel_mins"`
	BedAvailability     *BedAvailability `json:"bed_availability,omitempty"`
}

type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
	ChannelPush  NotificationChannel = "push"
	ChannelCall  NotificationChannel = "call"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// NotificationAttempt is best-effort bookkeeping for an external
// (SMS/email/push) delivery. Failures are recorded, never raised.
type NotificationAttempt struct {
	Channel    NotificationChannel `json:"channel"`
	Recipient  string              `json:"recipient"`
	Status     DeliveryStatus      `json:"status"`
	Timestamp  time.Time           `json:"timestamp"`
	RetryCount int                 `json:"retry_count"`
}

// EmergencyContact is a registered contact snapshot supplied at creation.
type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone"`
}

type ContactNotification struct {
	Name         string         `json:"name"`
	Relationship string         `json:"relationship,omitempty"`
	Phone        string         `json:"phone"`
	Status       DeliveryStatus `json:"status"`
	NotifiedAt   *time.Time     `json:"notified_at,omitempty"`
}

type ChatMessage struct {
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderRole domain.Role `json:"sender_role"`
	SenderName string      `json:"sender_name,omitempty"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
	Read       bool        `json:"read"`
}

// ResponseMetrics are derived from the timeline, never set by callers.
type ResponseMetrics struct {
	AlertToAssignmentSecs   *float64 `json:"alert_to_assignment_secs,omitempty"`
	AssignmentToArrivalSecs *float64 `json:"assignment_to_arrival_secs,omitempty"`
	TotalResponseSecs       *float64 `json:"total_response_secs,omitempty"`
}

// Emergency is the aggregate root for one reported incident. Nested
// sequences are embedded in the row so the record stays self-describing.
type Emergency struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Public, human-readable identifier. Immutable after creation.
	EmergencyID string `gorm:"column:emergency_id;type:varchar(30);uniqueIndex;not null" json:"emergency_id"`

	Type     Type     `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Severity Severity `gorm:"column:severity;type:varchar(10);not null;index" json:"severity"`
	Priority Priority `gorm:"column:priority;type:varchar(10);not null;index" json:"priority"`

	PatientSnapshot

	Location Location `gorm:"column:location;serializer:json" json:"location"`

	Symptoms        []Symptom   `gorm:"column:symptoms;serializer:json" json:"symptoms,omitempty"`
	Description     string      `gorm:"column:description;type:text;not null" json:"description"`
	AdditionalNotes string      `gorm:"column:additional_notes;type:text" json:"additional_notes,omitempty"`
	VitalSigns      *VitalSigns `gorm:"column:vital_signs;serializer:json" json:"vital_signs,omitempty"`
	AITriage        *AITriage   `gorm:"column:ai_triage;serializer:json" json:"ai_triage,omitempty"`

	AssignedAmbulance *AmbulanceAssignment `gorm:"column:assigned_ambulance;serializer:json" json:"assigned_ambulance,omitempty"`
	AssignedHospital  *HospitalAssignment  `gorm:"column:assigned_hospital;serializer:json" json:"assigned_hospital,omitempty"`

	Status Status `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`

	Timeline         []TimelineEvent       `gorm:"column:timeline;serializer:json" json:"timeline"`
	ResponseMetrics  ResponseMetrics       `gorm:"column:response_metrics;serializer:json" json:"response_metrics"`
	ChatMessages     []ChatMessage         `gorm:"column:chat_messages;serializer:json" json:"chat_messages,omitempty"`
	Notifications    []NotificationAttempt `gorm:"column:notifications;serializer:json" json:"notifications,omitempty"`
	ContactsNotified []ContactNotification `gorm:"column:contacts_notified;serializer:json" json:"contacts_notified,omitempty"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	UpdatedBy uuid.UUID `gorm:"column:updated_by;type:uuid" json:"updated_by"`

	// Optimistic concurrency token. Incremented by every guarded save.
	Version int64 `gorm:"column:version;not null;default:1" json:"version"`
}

func (Emergency) TableName() string {
	return "response.emergencies"
}

const idSuffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewEmergencyID generates the public identifier: a millisecond timestamp
// prefix for rough sortability plus a random suffix for uniqueness.
func NewEmergencyID() string {
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = idSuffixCharset[rand.Intn(len(idSuffixCharset))]
	}
	return fmt.Sprintf("EMG-%d-%s", time.Now().UnixMilli(), suffix)
}

func (e *Emergency) IsActive() bool {
	switch e.Status {
	case StatusPending, StatusAssigned, StatusEnRoute, StatusArrived, StatusInTransit:
		return true
	}
	return false
}

func (e *Emergency) IsUrgent() bool {
	return e.Severity == SeverityCritical || e.Priority == PriorityImmediate
}

func (e *Emergency) IsTerminal() bool {
	return e.Status.IsTerminal()
}
