package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/broadcast"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
)

type reportEnv struct {
	svc     *ReportServiceImpl
	devices *fakeDevices
	reports *fakeReports
	hub     *broadcast.Hub
	owner   *model.User
	dev     *model.Device
}

func newReportEnv(t *testing.T) *reportEnv {
	t.Helper()
	e := &reportEnv{
		devices: newFakeDevices(),
		reports: &fakeReports{},
		hub:     broadcast.NewHub(8),
		owner:   &model.User{ID: uuid.Must(uuid.NewV4()), Email: "o@example.com"},
	}
	e.svc = NewReportService(e.reports, e.devices, e.hub, 0, zaptest.NewLogger(t))

	ownerID := e.owner.ID
	e.dev = &model.Device{ID: uuid.Must(uuid.NewV4()), PublicKey: "k", OwnerID: &ownerID}
	if err := e.devices.Create(context.Background(), e.dev); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return e
}

func TestReports_IngestUnregistered(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	dev := &model.Device{ID: uuid.Must(uuid.NewV4())}

	if _, err := e.svc.Ingest(context.Background(), dev, model.ReportInput{}); !errors.Is(err, errs.ErrDeviceUnregistered) {
		t.Fatalf("err=%v, want ErrDeviceUnregistered", err)
	}
	if len(e.reports.items) != 0 {
		t.Fatalf("unregistered report must not be stored")
	}
}

func TestReports_IngestPublishesAfterStore(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	sub := e.hub.Subscribe(e.dev.ID)
	defer e.hub.Unsubscribe(sub)

	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	r, err := e.svc.Ingest(context.Background(), e.dev, model.ReportInput{TemperatureCelsius: 19.5, HeaterOn: true, Timestamp: ts})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if r.UserID != e.owner.ID || len(e.reports.items) != 1 {
		t.Fatalf("report not stored against owner: %+v", r)
	}

	select {
	case m := <-sub.Inbox():
		if m.ID != r.ID.String() {
			t.Fatalf("message id=%s, want %s", m.ID, r.ID)
		}
		var got api.Report
		if err := json.Unmarshal(m.Data, &got); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if got.TemperatureCelcius != 19.5 || !got.HeaterOn || !got.Timestamp.Equal(ts) {
			t.Fatalf("payload mismatch: %+v", got)
		}
	default:
		t.Fatalf("no message published")
	}
}

func TestReports_IngestDefaultsTimestamp(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	e.svc.now = func() time.Time { return now }

	r, err := e.svc.Ingest(context.Background(), e.dev, model.ReportInput{TemperatureCelsius: 1})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !r.Timestamp.Equal(now) {
		t.Fatalf("timestamp=%v, want %v", r.Timestamp, now)
	}
}

func TestReports_OpenStream_OwnershipAndHistory(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	e.svc.now = func() time.Time { return now }

	stranger := &model.User{ID: uuid.Must(uuid.NewV4())}
	if _, err := e.svc.OpenStream(ctx, stranger, e.dev.ID); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("err=%v, want ErrNotOwner", err)
	}
	if _, err := e.svc.OpenStream(ctx, e.owner, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrDeviceNotFound) {
		t.Fatalf("err=%v, want ErrDeviceNotFound", err)
	}
	if e.hub.Subscribers(e.dev.ID) != 0 {
		t.Fatalf("rejected stream must not subscribe")
	}

	add := func(ago time.Duration, userID uuid.UUID) {
		_ = e.reports.Create(ctx, &model.Report{
			ID: uuid.Must(uuid.NewV4()), DeviceID: e.dev.ID, UserID: userID, Timestamp: now.Add(-ago),
		})
	}
	add(2*time.Minute, e.owner.ID)
	add(30*time.Minute, e.owner.ID) // outside the window
	add(5*time.Minute, e.owner.ID)
	add(1*time.Minute, stranger.ID) // previous owner

	st, err := e.svc.OpenStream(ctx, e.owner, e.dev.ID)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	h := st.History()
	if len(h) != 2 || !h[0].Timestamp.Equal(now.Add(-5*time.Minute)) || !h[1].Timestamp.Equal(now.Add(-2*time.Minute)) {
		t.Fatalf("history not windowed/chronological: %+v", h)
	}
	if e.hub.Subscribers(e.dev.ID) != 1 {
		t.Fatalf("stream not subscribed")
	}

	st.Close()
	st.Close()
	if e.hub.Subscribers(e.dev.ID) != 0 {
		t.Fatalf("Close must unsubscribe")
	}
	if _, ok := <-st.Updates(); ok {
		t.Fatalf("updates channel must be closed")
	}
}

func TestReports_OpenStream_HistoryErrorUnsubscribes(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	e.reports.listErr = errors.New("db down")

	if _, err := e.svc.OpenStream(context.Background(), e.owner, e.dev.ID); err == nil {
		t.Fatalf("want error")
	}
	if e.hub.Subscribers(e.dev.ID) != 0 {
		t.Fatalf("subscription leaked on error")
	}
}

func TestReports_StreamRejectsUpdatesAfterOwnerChange(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	ctx := context.Background()

	st, err := e.svc.OpenStream(ctx, e.owner, e.dev.ID)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer st.Close()

	if _, err := e.svc.Ingest(ctx, e.dev, model.ReportInput{TemperatureCelsius: 20}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if m := <-st.Updates(); !st.Owned(m) {
		t.Fatalf("report from own device rejected: %+v", m)
	}

	next := uuid.Must(uuid.NewV4())
	e.dev.OwnerID = &next
	if _, err := e.svc.Ingest(ctx, e.dev, model.ReportInput{TemperatureCelsius: 33}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	m := <-st.Updates()
	if m.Owner != next {
		t.Fatalf("message owner=%s, want %s", m.Owner, next)
	}
	if st.Owned(m) {
		t.Fatalf("report taken for the new owner leaked to the previous one")
	}
}

func TestReports_ListReports(t *testing.T) {
	t.Parallel()
	e := newReportEnv(t)
	ctx := context.Background()
	_, _ = e.svc.Ingest(ctx, e.dev, model.ReportInput{Timestamp: time.Now().Add(-48 * time.Hour)})
	_, _ = e.svc.Ingest(ctx, e.dev, model.ReportInput{Timestamp: time.Now()})

	rs, err := e.svc.ListReports(ctx, e.owner, e.dev.ID)
	if err != nil || len(rs) != 2 {
		t.Fatalf("ListReports: %v len=%d", err, len(rs))
	}
	if _, err := e.svc.ListReports(ctx, &model.User{ID: uuid.Must(uuid.NewV4())}, e.dev.ID); !errors.Is(err, errs.ErrNotOwner) {
		t.Fatalf("err=%v, want ErrNotOwner", err)
	}
}
