package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
)

var activeStatuses = []emergency.Status{
	emergency.StatusPending,
	emergency.StatusAssigned,
	emergency.StatusEnRoute,
	emergency.StatusArrived,
	emergency.StatusInTransit,
}

type EmergencyRepository struct {
	db *gorm.DB
}

func NewEmergencyRepository(db *gorm.DB) *EmergencyRepository {
	return &EmergencyRepository{db: db}
}

func (r *EmergencyRepository) Create(ctx context.Context, e *emergency.Emergency) error {
	if e.Version == 0 {
		e.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("creating emergency: %w", err)
	}
	return nil
}

func (r *EmergencyRepository) GetByID(ctx context.Context, emergencyID string) (*emergency.Emergency, error) {
	var e emergency.Emergency
	err := r.db.WithContext(ctx).
		Where("emergency_id = ?", emergencyID).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emergency.ErrEmergencyNotFound
		}
		return nil, fmt.Errorf("loading emergency %s: %w", emergencyID, err)
	}
	return &e, nil
}

// Save writes the whole record guarded by the version the caller loaded.
// A concurrent writer bumps the version first and the guarded update
// matches zero rows, which surfaces as ErrVersionConflict.
func (r *EmergencyRepository) Save(ctx context.Context, e *emergency.Emergency) error {
	loadedVersion := e.Version
	e.Version = loadedVersion + 1

	res := r.db.WithContext(ctx).
		Model(&emergency.Emergency{}).
		Where("emergency_id = ? AND version = ?", e.EmergencyID, loadedVersion).
		Select("*").
		Omit("id", "created_at", "emergency_id").
		Updates(e)
	if res.Error != nil {
		e.Version = loadedVersion
		return fmt.Errorf("saving emergency %s: %w", e.EmergencyID, res.Error)
	}
	if res.RowsAffected == 0 {
		e.Version = loadedVersion
		return emergency.ErrVersionConflict
	}
	return nil
}

func (r *EmergencyRepository) ListActive(ctx context.Context) ([]*emergency.Emergency, error) {
	var out []*emergency.Emergency
	err := r.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing active emergencies: %w", err)
	}
	return out, nil
}

func (r *EmergencyRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*emergency.Emergency, error) {
	var out []*emergency.Emergency
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing emergencies for patient %s: %w", patientID, err)
	}
	return out, nil
}
