package emergency

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Emergency) error

	// GetByID resolves the public emergency identifier (EMG-...).
	GetByID(ctx context.Context, emergencyID string) (*Emergency, error)

	// Save persists the record with an optimistic concurrency check: the
	// update only applies if the stored version matches e.Version, and
	// increments it. A stale read fails with ErrVersionConflict and must
	// be retried by the caller with a fresh load.
	Save(ctx context.Context, e *Emergency) error

	// ListActive returns emergencies in a non-terminal status, newest first.
	ListActive(ctx context.Context) ([]*Emergency, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Emergency, error)
}
