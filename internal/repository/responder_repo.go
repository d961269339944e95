package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/responder"
)

type ResponderRepository struct {
	db *gorm.DB
}

func NewResponderRepository(db *gorm.DB) *ResponderRepository {
	return &ResponderRepository{db: db}
}

func (r *ResponderRepository) GetByID(ctx context.Context, id uuid.UUID) (*responder.Responder, error) {
	var res responder.Responder
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, responder.ErrResponderNotFound
		}
		return nil, fmt.Errorf("loading responder %s: %w", id, err)
	}
	return &res, nil
}
