package service

import (
	"context"
	"crypto/rsa"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/crypto/clientcrypto"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/limiter"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/repository"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User

	getErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uuid.UUID]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) List(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, *u)
	}
	return out, nil
}
func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeDevices struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Device
}

var _ repository.DeviceRepository = (*fakeDevices)(nil)

func newFakeDevices() *fakeDevices { return &fakeDevices{byID: map[uuid.UUID]*model.Device{}} }

func (f *fakeDevices) Create(_ context.Context, d *model.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[d.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cpy := *d
	cpy.CreatedAt = time.Now()
	f.byID[d.ID] = &cpy
	return nil
}
func (f *fakeDevices) GetByID(_ context.Context, id uuid.UUID) (*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrDeviceNotFound
	}
	c := *d
	return &c, nil
}
func (f *fakeDevices) List(context.Context) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Device, 0, len(f.byID))
	for _, d := range f.byID {
		out = append(out, *d)
	}
	return out, nil
}
func (f *fakeDevices) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Device
	for _, d := range f.byID {
		if d.OwnedBy(ownerID) {
			out = append(out, *d)
		}
	}
	return out, nil
}
func (f *fakeDevices) SetOwner(_ context.Context, id uuid.UUID, ownerID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return errs.ErrDeviceNotFound
	}
	d.OwnerID = ownerID
	if ownerID != nil {
		now := time.Now()
		d.RegisteredAt = &now
	} else {
		d.RegisteredAt = nil
	}
	return nil
}
func (f *fakeDevices) SetSchedule(_ context.Context, id uuid.UUID, s *model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return errs.ErrDeviceNotFound
	}
	d.Schedule = s
	return nil
}
func (f *fakeDevices) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return errs.ErrDeviceNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	items   []model.Report
	listErr error
}

var _ repository.ReportRepository = (*fakeReports)(nil)

func (f *fakeReports) Create(_ context.Context, r *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *r)
	return nil
}
func (f *fakeReports) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.Report, error) {
	return f.ListSince(ctx, deviceID, time.Time{})
}
func (f *fakeReports) ListSince(_ context.Context, deviceID uuid.UUID, since time.Time) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Report, 0)
	for _, r := range f.items {
		if r.DeviceID == deviceID && r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool

	failureCalls int
	successCalls int
	lastSubject  string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, subject string, _ []byte) (bool, time.Duration, error) {
	l.lastSubject = subject
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, nil
}

var (
	keysOnce sync.Once
	keys     [2]*rsa.PrivateKey
)

// testKeys returns two RSA keys shared across tests in this package.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		for i := range keys {
			k, err := clientcrypto.GenerateKey()
			if err != nil {
				panic(err)
			}
			keys[i] = k
		}
	})
	return keys[0], keys[1]
}

func publicPEM(t *testing.T, k *rsa.PrivateKey) string {
	t.Helper()
	p, err := clientcrypto.PublicKeyPEM(&k.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyPEM: %v", err)
	}
	return string(p)
}
