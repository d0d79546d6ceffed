package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceCols = `id, public_key, owner_id, schedule, registered_at, created_at`

// Create inserts a new device row. Schedule is not written here.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	const q = `
INSERT INTO devices (id, public_key, owner_id, registered_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.PublicKey, d.OwnerID, d.RegisteredAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a device by ID.
func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	q := `SELECT ` + deviceCols + ` FROM devices WHERE id=$1`
	d, err := scanDevice(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrDeviceNotFound
	}
	return d, err
}

// List returns all devices.
func (r *DeviceRepo) List(ctx context.Context) ([]model.Device, error) {
	q := `SELECT ` + deviceCols + ` FROM devices ORDER BY created_at`
	return r.query(ctx, q)
}

// ListByOwner returns devices registered to ownerID.
func (r *DeviceRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Device, error) {
	q := `SELECT ` + deviceCols + ` FROM devices WHERE owner_id=$1 ORDER BY created_at`
	return r.query(ctx, q, ownerID)
}

// SetOwner sets or clears owner_id and stamps registered_at accordingly.
func (r *DeviceRepo) SetOwner(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) error {
	const q = `UPDATE devices SET owner_id=$2, registered_at=$3 WHERE id=$1`
	var registeredAt *time.Time
	if ownerID != nil {
		now := time.Now().UTC()
		registeredAt = &now
	}
	tag, err := r.db.Pool.Exec(ctx, q, id, ownerID, registeredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrDeviceNotFound
	}
	return nil
}

// SetSchedule stores the schedule as JSONB.
func (r *DeviceRepo) SetSchedule(ctx context.Context, id uuid.UUID, s *model.Schedule) error {
	const q = `UPDATE devices SET schedule=$2 WHERE id=$1`
	var raw []byte
	if s != nil {
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal schedule: %w", err)
		}
		raw = b
	}
	tag, err := r.db.Pool.Exec(ctx, q, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device; reports cascade.
func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM devices WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepo) query(ctx context.Context, q string, args ...any) ([]model.Device, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
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

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d        model.Device
		schedule []byte
	)
	if err := row.Scan(&d.ID, &d.PublicKey, &d.OwnerID, &schedule, &d.RegisteredAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if len(schedule) > 0 {
		var s model.Schedule
		if err := json.Unmarshal(schedule, &s); err != nil {
			return nil, fmt.Errorf("decode schedule of %s: %w", d.ID, err)
		}
		d.Schedule = &s
	}
	return &d, nil
}
