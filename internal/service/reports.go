package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/thermolink/internal/broadcast"
	"github.com/and161185/thermolink/internal/convert"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/repository"
)

// DefaultLookback is how far back a new stream replays history.
const DefaultLookback = 10 * time.Minute

// ReportService defines telemetry ingest and live viewing.
type ReportService interface {
	// Ingest stores a report from an authenticated device and broadcasts it.
	Ingest(ctx context.Context, dev *model.Device, in model.ReportInput) (*model.Report, error)
	// OpenStream subscribes the user to a device's live reports.
	OpenStream(ctx context.Context, user *model.User, deviceID uuid.UUID) (*Stream, error)
	// ListReports returns every stored report of an owned device.
	ListReports(ctx context.Context, user *model.User, deviceID uuid.UUID) ([]model.Report, error)
}

// Broadcaster is the fan-out contract the report service needs.
type Broadcaster interface {
	Subscribe(deviceID uuid.UUID) *broadcast.Subscription
	Unsubscribe(s *broadcast.Subscription)
	Publish(deviceID uuid.UUID, m broadcast.Message) int
}

type ReportServiceImpl struct {
	reports  repository.ReportRepository
	devices  repository.DeviceRepository
	hub      Broadcaster
	lookback time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewReportService constructs ReportService. lookback <= 0 selects DefaultLookback.
func NewReportService(
	reports repository.ReportRepository,
	devices repository.DeviceRepository,
	hub Broadcaster,
	lookback time.Duration,
	log *zap.Logger,
) *ReportServiceImpl {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportServiceImpl{
		reports:  reports,
		devices:  devices,
		hub:      hub,
		lookback: lookback,
		log:      log,
		now:      time.Now,
	}
}

// Ingest persists the report, then publishes it to live viewers of the device.
func (s *ReportServiceImpl) Ingest(ctx context.Context, dev *model.Device, in model.ReportInput) (*model.Report, error) {
	if dev.OwnerID == nil {
		return nil, errs.ErrDeviceUnregistered
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	r := &model.Report{
		ID:                 id,
		DeviceID:           dev.ID,
		UserID:             *dev.OwnerID,
		TemperatureCelsius: in.TemperatureCelsius,
		HeaterOn:           in.HeaterOn,
		Timestamp:          ts,
	}
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	data, err := json.Marshal(convert.ToAPIReport(*r))
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	n := s.hub.Publish(dev.ID, broadcast.Message{ID: r.ID.String(), Owner: r.UserID, Data: data})
	s.log.Debug("report broadcast",
		zap.String("device_id", dev.ID.String()),
		zap.Int("subscribers", n))
	return r, nil
}

// OpenStream checks ownership, subscribes, then loads the replay window.
// Subscribing first means nothing published meanwhile is lost; the caller
// skips updates whose ID already appeared in History.
func (s *ReportServiceImpl) OpenStream(ctx context.Context, user *model.User, deviceID uuid.UUID) (*Stream, error) {
	if err := s.checkOwner(ctx, user, deviceID); err != nil {
		return nil, err
	}

	sub := s.hub.Subscribe(deviceID)
	st := &Stream{deviceID: deviceID, viewer: user.ID, sub: sub, hub: s.hub}

	recent, err := s.reports.ListSince(ctx, deviceID, s.now().Add(-s.lookback))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	// Only samples taken while this user owned the device.
	for _, r := range recent {
		if r.UserID == user.ID {
			st.history = append(st.history, r)
		}
	}
	return st, nil
}

// ListReports returns all reports of an owned device in chronological order.
func (s *ReportServiceImpl) ListReports(ctx context.Context, user *model.User, deviceID uuid.UUID) ([]model.Report, error) {
	if err := s.checkOwner(ctx, user, deviceID); err != nil {
		return nil, err
	}
	return s.reports.ListByDevice(ctx, deviceID)
}

func (s *ReportServiceImpl) checkOwner(ctx context.Context, user *model.User, deviceID uuid.UUID) error {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.OwnedBy(user.ID) {
		return errs.ErrNotOwner
	}
	return nil
}

// Stream is one open live view. Close must be called on every exit path.
type Stream struct {
	deviceID uuid.UUID
	viewer   uuid.UUID
	history  []model.Report
	sub      *broadcast.Subscription
	hub      Broadcaster
	once     sync.Once
}

// DeviceID returns the watched device.
func (st *Stream) DeviceID() uuid.UUID { return st.deviceID }

// History returns the replayed reports, oldest first.
func (st *Stream) History() []model.Report { return st.history }

// Updates yields live reports. The channel closes when the stream is closed
// or the hub shuts down.
func (st *Stream) Updates() <-chan broadcast.Message { return st.sub.Inbox() }

// Owned reports whether m was taken while the viewer owned the device.
// A false result means ownership moved after the stream opened.
func (st *Stream) Owned(m broadcast.Message) bool { return m.Owner == st.viewer }

// Dropped reports how many live updates were discarded for this viewer.
func (st *Stream) Dropped() uint64 { return st.sub.Dropped() }

// Close unsubscribes. It is safe to call more than once.
func (st *Stream) Close() {
	st.once.Do(func() { st.hub.Unsubscribe(st.sub) })
}
