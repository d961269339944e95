package responder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a response resource.
type Kind string

const (
	KindAmbulance Kind = "ambulance"
	KindHospital  Kind = "hospital"
)

func (k Kind) IsValid() bool {
	return k == KindAmbulance || k == KindHospital
}

// Responder is a dispatchable response resource: an ambulance crew or a
// receiving hospital. Only the fields assignment needs are modelled here.
type Responder struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`

	Kind    Kind   `gorm:"column:kind;type:varchar(20);not null;index" json:"kind"`
	Name    string `gorm:"column:name;type:varchar(200);not null" json:"name"`
	Phone   string `gorm:"column:phone;type:varchar(20)" json:"phone"`
	Address string `gorm:"column:address;type:text" json:"address,omitempty"`

	Available bool `gorm:"column:available;default:true;index" json:"available"`

	// Hospital-only snapshot fields.
	GeneralBeds   int `gorm:"column:general_beds" json:"general_beds,omitempty"`
	ICUBeds       int `gorm:"column:icu_beds" json:"icu_beds,omitempty"`
	EmergencyBeds int `gorm:"column:emergency_beds" json:"emergency_beds,omitempty"`
}

func (Responder) TableName() string {
	return "response.responders"
}

var ErrResponderNotFound = errors.New("responder not found")

// Directory resolves resource identifiers to responders for assignment.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Responder, error)
}
