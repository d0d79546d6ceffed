package repository

import (
	"context"
	"time"

	"github.com/and161185/thermolink/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ReportRepository stores device telemetry.
type ReportRepository interface {
	// Create inserts a report.
	Create(ctx context.Context, r *model.Report) error
	// ListByDevice returns all reports of a device in chronological order.
	ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.Report, error)
	// ListSince returns reports with Timestamp strictly after since, in chronological order.
	ListSince(ctx context.Context, deviceID uuid.UUID, since time.Time) ([]model.Report, error)
}
