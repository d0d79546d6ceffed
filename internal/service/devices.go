package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/repository"
)

// DeviceService defines owner-scoped device operations.
type DeviceService interface {
	ListOwned(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	Get(ctx context.Context, userID, deviceID uuid.UUID) (*model.Device, error)
	GetSchedule(ctx context.Context, userID, deviceID uuid.UUID) (*model.Schedule, error)
	SetSchedule(ctx context.Context, userID, deviceID uuid.UUID, s *model.Schedule) error
	DeviceSchedule(ctx context.Context, dev *model.Device) (*model.Schedule, error)
}

type DeviceServiceImpl struct {
	devices repository.DeviceRepository
}

// NewDeviceService constructs DeviceService.
func NewDeviceService(devices repository.DeviceRepository) *DeviceServiceImpl {
	return &DeviceServiceImpl{devices: devices}
}

// ListOwned returns the user's devices.
func (s *DeviceServiceImpl) ListOwned(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	return s.devices.ListByOwner(ctx, userID)
}

// Get returns a device the user owns; other devices yield errs.ErrNotOwner.
func (s *DeviceServiceImpl) Get(ctx context.Context, userID, deviceID uuid.UUID) (*model.Device, error) {
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(userID) {
		return nil, errs.ErrNotOwner
	}
	return d, nil
}

// GetSchedule returns the schedule of an owned device.
func (s *DeviceServiceImpl) GetSchedule(ctx context.Context, userID, deviceID uuid.UUID) (*model.Schedule, error) {
	d, err := s.Get(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	return s.DeviceSchedule(ctx, d)
}

// SetSchedule replaces the schedule of an owned device; nil clears it.
// s must already be validated.
func (s *DeviceServiceImpl) SetSchedule(ctx context.Context, userID, deviceID uuid.UUID, sched *model.Schedule) error {
	if _, err := s.Get(ctx, userID, deviceID); err != nil {
		return err
	}
	return s.devices.SetSchedule(ctx, deviceID, sched)
}

// DeviceSchedule returns dev's schedule or errs.ErrNotFound if none was uploaded.
func (s *DeviceServiceImpl) DeviceSchedule(_ context.Context, dev *model.Device) (*model.Schedule, error) {
	if dev.Schedule == nil {
		return nil, errs.ErrNotFound
	}
	return dev.Schedule, nil
}
