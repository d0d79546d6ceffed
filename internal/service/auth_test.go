package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/challenge"
	pkgcrypto "github.com/and161185/thermolink/internal/crypto"
	"github.com/and161185/thermolink/internal/crypto/clientcrypto"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/token"
)

type authEnv struct {
	svc        *AuthServiceImpl
	users      *fakeUsers
	devices    *fakeDevices
	challenges *challenge.Store
	tokens     *token.Service
	lim        *fakeLimiter
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	tokens, err := token.New([]byte("test-secret-test-secret"), "HS256")
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	e := &authEnv{
		users:      newFakeUsers(),
		devices:    newFakeDevices(),
		challenges: challenge.NewStore(),
		tokens:     tokens,
		lim:        &fakeLimiter{allowOK: true},
	}
	e.svc = NewAuthService(e.users, e.devices, e.challenges, pkgcrypto.NewVerifier(), tokens, time.Minute, e.lim)
	return e
}

func (e *authEnv) addDevice(t *testing.T, pem string) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	if err := e.devices.Create(context.Background(), &model.Device{ID: id, PublicKey: pem}); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return id
}

func TestAuth_Challenge(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	k, _ := testKeys(t)
	id := e.addDevice(t, publicPEM(t, k))
	ctx := context.Background()

	c1, err := e.svc.Challenge(ctx, id)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	c2, _ := e.svc.Challenge(ctx, id)
	if c1.Nonce != c2.Nonce {
		t.Fatalf("challenge must be reused while valid")
	}

	if _, err := e.svc.Challenge(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrDeviceNotFound) {
		t.Fatalf("unknown device err=%v, want ErrDeviceNotFound", err)
	}
}

func TestAuth_DeviceLogin_Failures(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	k, other := testKeys(t)
	id := e.addDevice(t, publicPEM(t, k))
	ctx := context.Background()

	// Unknown device.
	if _, err := e.svc.DeviceLogin(ctx, uuid.Must(uuid.NewV4()), "AAAA", "1.1.1.1"); !errors.Is(err, errs.ErrDeviceNotFound) {
		t.Fatalf("err=%v, want ErrDeviceNotFound", err)
	}

	// No challenge issued yet.
	if _, err := e.svc.DeviceLogin(ctx, id, "AAAA", "1.1.1.1"); !errors.Is(err, errs.ErrChallengeNotFound) {
		t.Fatalf("err=%v, want ErrChallengeNotFound", err)
	}

	// Wrong key.
	c, _ := e.svc.Challenge(ctx, id)
	sig, _ := clientcrypto.SignNonce(other, c.Nonce)
	if _, err := e.svc.DeviceLogin(ctx, id, sig, "1.1.1.1"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("err=%v, want ErrInvalidSignature", err)
	}

	// Tampered nonce.
	c, _ = e.svc.Challenge(ctx, id)
	sig, _ = clientcrypto.SignNonce(k, c.Nonce+"x")
	if _, err := e.svc.DeviceLogin(ctx, id, sig, "1.1.1.1"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("err=%v, want ErrInvalidSignature", err)
	}

	// Signature that is not base64.
	_, _ = e.svc.Challenge(ctx, id)
	if _, err := e.svc.DeviceLogin(ctx, id, "%%%", "1.1.1.1"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("err=%v, want ErrInvalidSignature", err)
	}

	if e.lim.failureCalls != 5 || e.lim.successCalls != 0 {
		t.Fatalf("limiter calls: failures=%d successes=%d", e.lim.failureCalls, e.lim.successCalls)
	}
}

func TestAuth_DeviceLogin_FailedAttemptBurnsNonce(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	k, other := testKeys(t)
	id := e.addDevice(t, publicPEM(t, k))
	ctx := context.Background()

	c, _ := e.svc.Challenge(ctx, id)
	bad, _ := clientcrypto.SignNonce(other, c.Nonce)
	_, _ = e.svc.DeviceLogin(ctx, id, bad, "")

	good, _ := clientcrypto.SignNonce(k, c.Nonce)
	if _, err := e.svc.DeviceLogin(ctx, id, good, ""); !errors.Is(err, errs.ErrChallengeNotFound) {
		t.Fatalf("err=%v, want ErrChallengeNotFound after a failed attempt", err)
	}
}

func TestAuth_DeviceLogin_RateLimited(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	id := uuid.Must(uuid.NewV4())

	e.lim.allowOK = false
	if _, err := e.svc.DeviceLogin(context.Background(), id, "", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited", err)
	}
	if e.lim.lastSubject != "device:"+id.String() {
		t.Fatalf("limiter subject=%q", e.lim.lastSubject)
	}

	e.lim.allowOK = true
	e.lim.allowErr = errors.New("lim-err")
	if _, err := e.svc.DeviceLogin(context.Background(), id, "", ""); err == nil || errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want limiter error propagated, got %v", err)
	}
}

func TestAuth_UserLogin(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()

	hash, _ := pkgcrypto.HashPassword([]byte("correct"))
	u := &model.User{ID: uuid.Must(uuid.NewV4()), Email: "alice@example.com", PasswordHash: hash}
	_ = e.users.Create(ctx, u)

	if _, err := e.svc.UserLogin(ctx, "nobody@example.com", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown email err=%v, want ErrUnauthorized", err)
	}
	if _, err := e.svc.UserLogin(ctx, "alice@example.com", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("wrong password err=%v, want ErrUnauthorized", err)
	}

	e.lim.failBlocked = true
	if _, err := e.svc.UserLogin(ctx, "alice@example.com", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited once blocked", err)
	}
	e.lim.failBlocked = false

	e.users.getErr = errors.New("db down")
	if _, err := e.svc.UserLogin(ctx, "alice@example.com", "correct", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("storage error must not look like bad credentials, got %v", err)
	}
	e.users.getErr = nil

	tk, err := e.svc.UserLogin(ctx, "alice@example.com", "correct", "127.0.0.1")
	if err != nil {
		t.Fatalf("UserLogin: %v", err)
	}
	if tk.AccessToken == "" || !tk.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad token: %+v", tk)
	}
	if e.lim.successCalls != 1 {
		t.Fatalf("expected Success() to be called once")
	}

	got, err := e.svc.AuthenticateUser(ctx, tk.AccessToken)
	if err != nil || got.ID != u.ID {
		t.Fatalf("AuthenticateUser: %v %+v", err, got)
	}
}

func TestAuth_Authenticate_KindAndSubject(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	k, _ := testKeys(t)
	devID := e.addDevice(t, publicPEM(t, k))

	devTok, _, _ := e.tokens.Issue(token.Subject{ID: devID, Kind: token.KindDevice}, time.Minute)
	if _, err := e.svc.AuthenticateUser(ctx, devTok); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("device token accepted as user token: %v", err)
	}
	if d, err := e.svc.AuthenticateDevice(ctx, devTok); err != nil || d.ID != devID {
		t.Fatalf("AuthenticateDevice: %v", err)
	}

	ghost, _, _ := e.tokens.Issue(token.Subject{ID: uuid.Must(uuid.NewV4()), Kind: token.KindUser}, time.Minute)
	if _, err := e.svc.AuthenticateUser(ctx, ghost); !errors.Is(err, errs.ErrSubjectNotFound) {
		t.Fatalf("err=%v, want ErrSubjectNotFound", err)
	}

	_ = e.devices.Delete(ctx, devID)
	if _, err := e.svc.AuthenticateDevice(ctx, devTok); !errors.Is(err, errs.ErrSubjectNotFound) {
		t.Fatalf("deleted device err=%v, want ErrSubjectNotFound", err)
	}

	for _, raw := range []string{"", "garbage", base64.StdEncoding.EncodeToString([]byte("x"))} {
		if _, err := e.svc.AuthenticateDevice(ctx, raw); !errors.Is(err, errs.ErrInvalidToken) {
			t.Fatalf("%q: err=%v, want ErrInvalidToken", raw, err)
		}
	}
}
