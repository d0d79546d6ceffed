package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
)

// DeviceRepo implements DeviceRepository on SQLite.
type DeviceRepo struct{ s *Storage }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(s *Storage) *DeviceRepo { return &DeviceRepo{s: s} }

const deviceCols = `id, public_key, owner_id, schedule, registered_at, created_at`

// Create inserts a new device row.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	const q = `
INSERT INTO devices (id, public_key, owner_id, registered_at, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := r.s.db.ExecContext(ctx, q, d.ID, d.PublicKey, d.OwnerID, d.RegisteredAt, time.Now().UTC())
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a device by ID.
func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	d, err := scanDevice(r.s.db.QueryRowContext(ctx, `SELECT `+deviceCols+` FROM devices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrDeviceNotFound
	}
	return d, err
}

// List returns all devices.
func (r *DeviceRepo) List(ctx context.Context) ([]model.Device, error) {
	return r.query(ctx, `SELECT `+deviceCols+` FROM devices ORDER BY created_at`)
}

// ListByOwner returns devices registered to ownerID.
func (r *DeviceRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Device, error) {
	return r.query(ctx, `SELECT `+deviceCols+` FROM devices WHERE owner_id = ? ORDER BY created_at`, ownerID)
}

// SetOwner sets or clears the owner.
func (r *DeviceRepo) SetOwner(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) error {
	var registeredAt *time.Time
	if ownerID != nil {
		now := time.Now().UTC()
		registeredAt = &now
	}
	return r.exec(ctx, `UPDATE devices SET owner_id = ?, registered_at = ? WHERE id = ?`, ownerID, registeredAt, id)
}

// SetSchedule stores the schedule as JSON text.
func (r *DeviceRepo) SetSchedule(ctx context.Context, id uuid.UUID, s *model.Schedule) error {
	var raw sql.NullString
	if s != nil {
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal schedule: %w", err)
		}
		raw = sql.NullString{String: string(b), Valid: true}
	}
	return r.exec(ctx, `UPDATE devices SET schedule = ? WHERE id = ?`, raw, id)
}

// Delete removes a device; reports cascade.
func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM devices WHERE id = ?`, id)
}

func (r *DeviceRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepo) query(ctx context.Context, q string, args ...any) ([]model.Device, error) {
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDevice(row rowScanner) (*model.Device, error) {
	var (
		d        model.Device
		schedule sql.NullString
	)
	if err := row.Scan(&d.ID, &d.PublicKey, &d.OwnerID, &schedule, &d.RegisteredAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if schedule.Valid && schedule.String != "" {
		var s model.Schedule
		if err := json.Unmarshal([]byte(schedule.String), &s); err != nil {
			return nil, fmt.Errorf("decode schedule of %s: %w", d.ID, err)
		}
		d.Schedule = &s
	}
	return &d, nil
}
