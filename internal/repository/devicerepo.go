package repository

import (
	"context"

	"github.com/and161185/thermolink/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepository provides access to registered thermostats.
type DeviceRepository interface {
	// Create inserts a new device. Returns errs.ErrAlreadyExists on duplicate ID or public key.
	Create(ctx context.Context, d *model.Device) error
	// GetByID loads a device by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	// List returns all devices.
	List(ctx context.Context) ([]model.Device, error)
	// ListByOwner returns devices registered to the user.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Device, error)
	// SetOwner registers the device to ownerID, or unregisters it when ownerID is nil.
	SetOwner(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) error
	// SetSchedule replaces the device schedule.
	SetSchedule(ctx context.Context, id uuid.UUID, s *model.Schedule) error
	// Delete removes a device together with its reports.
	Delete(ctx context.Context, id uuid.UUID) error
}
