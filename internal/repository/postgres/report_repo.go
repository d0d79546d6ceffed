package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/model"
)

// ReportRepo implements ReportRepository using PostgreSQL.
type ReportRepo struct{ db *DB }

// NewReportRepo constructs a report repository.
func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{db: db} }

// Create inserts a report row.
func (r *ReportRepo) Create(ctx context.Context, rep *model.Report) error {
	const q = `
INSERT INTO reports (id, device_id, user_id, temperature_celsius, heater_on, ts)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q,
		rep.ID, rep.DeviceID, rep.UserID, rep.TemperatureCelsius, rep.HeaterOn, rep.Timestamp)
	return err
}

// ListByDevice returns all reports of a device ordered by timestamp.
func (r *ReportRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.Report, error) {
	const q = `
SELECT id, device_id, user_id, temperature_celsius, heater_on, ts
FROM reports WHERE device_id=$1 ORDER BY ts, id`
	return r.query(ctx, q, deviceID)
}

// ListSince returns reports newer than since ordered by timestamp.
func (r *ReportRepo) ListSince(ctx context.Context, deviceID uuid.UUID, since time.Time) ([]model.Report, error) {
	const q = `
SELECT id, device_id, user_id, temperature_celsius, heater_on, ts
FROM reports WHERE device_id=$1 AND ts > $2 ORDER BY ts, id`
	return r.query(ctx, q, deviceID, since)
}

func (r *ReportRepo) query(ctx context.Context, q string, args ...any) ([]model.Report, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Report, 0)
	for rows.Next() {
		var rep model.Report
		if err := rows.Scan(&rep.ID, &rep.DeviceID, &rep.UserID,
			&rep.TemperatureCelsius, &rep.HeaterOn, &rep.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
