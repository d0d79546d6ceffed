package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/thermolink/internal/crypto"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/repository"
)

// AdminService defines user and device management.
type AdminService interface {
	CreateUser(ctx context.Context, email, password string, isAdmin bool) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CreateDevice(ctx context.Context, id uuid.UUID, publicKey string, ownerID *uuid.UUID) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error)
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	AssignOwner(ctx context.Context, deviceID uuid.UUID, userID *uuid.UUID) (*model.Device, error)
}

type AdminServiceImpl struct {
	users   repository.UserRepository
	devices repository.DeviceRepository
	log     *zap.Logger
}

// NewAdminService constructs AdminService.
func NewAdminService(users repository.UserRepository, devices repository.DeviceRepository, log *zap.Logger) *AdminServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminServiceImpl{users: users, devices: devices, log: log}
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *AdminServiceImpl) CreateUser(ctx context.Context, email, password string, isAdmin bool) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", errs.ErrValidation)
	}
	hash, err := pkgcrypto.HashPassword([]byte(password))
	if err != nil {
		return nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{ID: uid, Email: email, PasswordHash: hash, IsAdmin: isAdmin}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", uid.String()), zap.Bool("admin", isAdmin))
	return u, nil
}

// ListUsers returns every account.
func (s *AdminServiceImpl) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

// GetUser returns one account.
func (s *AdminServiceImpl) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// DeleteUser removes an account; its devices become unregistered.
func (s *AdminServiceImpl) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

// CreateDevice registers a device key. id may be uuid.Nil to have one generated.
func (s *AdminServiceImpl) CreateDevice(ctx context.Context, id uuid.UUID, publicKey string, ownerID *uuid.UUID) (*model.Device, error) {
	if _, err := pkgcrypto.ParsePublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("%w: public key: %v", errs.ErrValidation, err)
	}
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV4(); err != nil {
			return nil, err
		}
	}
	if ownerID != nil {
		if _, err := s.users.GetByID(ctx, *ownerID); err != nil {
			return nil, err
		}
	}
	d := &model.Device{ID: id, PublicKey: strings.TrimSpace(publicKey), OwnerID: ownerID}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, err
	}
	s.log.Info("device created", zap.String("device_id", id.String()))
	return s.devices.GetByID(ctx, id)
}

// ListDevices returns every device.
func (s *AdminServiceImpl) ListDevices(ctx context.Context) ([]model.Device, error) {
	return s.devices.List(ctx)
}

// GetDevice returns one device.
func (s *AdminServiceImpl) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	return s.devices.GetByID(ctx, id)
}

// DeleteDevice removes a device and its reports.
func (s *AdminServiceImpl) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	if err := s.devices.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("device deleted", zap.String("device_id", id.String()))
	return nil
}

// AssignOwner registers the device to userID, or unregisters it when userID is nil.
func (s *AdminServiceImpl) AssignOwner(ctx context.Context, deviceID uuid.UUID, userID *uuid.UUID) (*model.Device, error) {
	if userID != nil {
		if _, err := s.users.GetByID(ctx, *userID); err != nil {
			return nil, err
		}
	}
	if err := s.devices.SetOwner(ctx, deviceID, userID); err != nil {
		return nil, err
	}
	return s.devices.GetByID(ctx, deviceID)
}

// EnsureAdmin creates the bootstrap administrator unless the email is taken.
func (s *AdminServiceImpl) EnsureAdmin(ctx context.Context, email, password string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}
	_, err = s.CreateUser(ctx, email, password, true)
	if errors.Is(err, errs.ErrAlreadyExists) {
		return nil
	}
	return err
}
