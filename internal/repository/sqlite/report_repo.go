package sqlite

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/model"
)

// ReportRepo implements ReportRepository on SQLite. Timestamps are stored as
// UTC unix nanoseconds so range filters compare numerically.
type ReportRepo struct{ s *Storage }

// NewReportRepo constructs a report repository.
func NewReportRepo(s *Storage) *ReportRepo { return &ReportRepo{s: s} }

// Create inserts a report row.
func (r *ReportRepo) Create(ctx context.Context, rep *model.Report) error {
	const q = `
INSERT INTO reports (id, device_id, user_id, temperature_celsius, heater_on, ts)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.s.db.ExecContext(ctx, q,
		rep.ID, rep.DeviceID, rep.UserID, rep.TemperatureCelsius, rep.HeaterOn, rep.Timestamp.UnixNano())
	return err
}

// ListByDevice returns all reports of a device ordered by timestamp.
func (r *ReportRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.Report, error) {
	const q = `
SELECT id, device_id, user_id, temperature_celsius, heater_on, ts
FROM reports WHERE device_id = ? ORDER BY ts, id`
	return r.query(ctx, q, deviceID)
}

// ListSince returns reports newer than since ordered by timestamp.
func (r *ReportRepo) ListSince(ctx context.Context, deviceID uuid.UUID, since time.Time) ([]model.Report, error) {
	const q = `
SELECT id, device_id, user_id, temperature_celsius, heater_on, ts
FROM reports WHERE device_id = ? AND ts > ? ORDER BY ts, id`
	return r.query(ctx, q, deviceID, since.UnixNano())
}

func (r *ReportRepo) query(ctx context.Context, q string, args ...any) ([]model.Report, error) {
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Report, 0)
	for rows.Next() {
		var (
			rep model.Report
			ts  int64
		)
		if err := rows.Scan(&rep.ID, &rep.DeviceID, &rep.UserID,
			&rep.TemperatureCelsius, &rep.HeaterOn, &ts); err != nil {
			return nil, err
		}
		rep.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rep)
	}
	return out, rows.Err()
}
