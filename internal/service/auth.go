// Package service contains application services for authentication, telemetry and administration.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/thermolink/internal/crypto"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/limiter"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/repository"
	"github.com/and161185/thermolink/internal/token"
)

// AuthService defines the device handshake, user login and token authentication.
type AuthService interface {
	// Challenge returns the device's current login nonce.
	Challenge(ctx context.Context, deviceID uuid.UUID) (model.Challenge, error)
	// DeviceLogin verifies a signed nonce and issues a device token.
	DeviceLogin(ctx context.Context, deviceID uuid.UUID, signatureB64, ip string) (model.Tokens, error)
	// UserLogin checks email and password and issues a user token.
	UserLogin(ctx context.Context, email, password, ip string) (model.Tokens, error)
	// AuthenticateUser resolves a bearer token to an existing user.
	AuthenticateUser(ctx context.Context, raw string) (*model.User, error)
	// AuthenticateDevice resolves a bearer token to an existing device.
	AuthenticateDevice(ctx context.Context, raw string) (*model.Device, error)
}

// ChallengeStore issues and consumes single-use nonces.
type ChallengeStore interface {
	Issue(deviceID uuid.UUID) (model.Challenge, error)
	Consume(deviceID uuid.UUID) (string, error)
}

// SignatureVerifier checks a device signature over a nonce.
type SignatureVerifier interface {
	Verify(publicKeyPEM, nonce string, signature []byte) error
}

// TokenService issues and validates session tokens.
type TokenService interface {
	Issue(sub token.Subject, ttl time.Duration) (string, time.Time, error)
	Validate(raw string) (token.Subject, error)
}

type AuthServiceImpl struct {
	users      repository.UserRepository
	devices    repository.DeviceRepository
	challenges ChallengeStore
	verifier   SignatureVerifier
	tokens     TokenService
	tokenTTL   time.Duration
	lim        limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	devices repository.DeviceRepository,
	challenges ChallengeStore,
	verifier SignatureVerifier,
	tokens TokenService,
	tokenTTL time.Duration,
	lim limiter.Limiter,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:      users,
		devices:    devices,
		challenges: challenges,
		verifier:   verifier,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		lim:        lim,
	}
}

// Challenge issues (or re-issues while valid) a nonce for a known device.
func (s *AuthServiceImpl) Challenge(ctx context.Context, deviceID uuid.UUID) (model.Challenge, error) {
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return model.Challenge{}, err
	}
	return s.challenges.Issue(deviceID)
}

// DeviceLogin runs the device handshake. A consumed nonce is never reusable,
// so a replayed signature fails with errs.ErrChallengeNotFound.
func (s *AuthServiceImpl) DeviceLogin(ctx context.Context, deviceID uuid.UUID, signatureB64, ip string) (model.Tokens, error) {
	subject := "device:" + deviceID.String()
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	dev, err := s.verifyDevice(ctx, deviceID, signatureB64)
	if err != nil {
		if isClientAuthErr(err) {
			_, _, _ = s.lim.Failure(ctx, subject, ipHash)
		}
		return model.Tokens{}, err
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, subject, ipHash)
	return s.issue(token.Subject{ID: dev.ID, Kind: token.KindDevice})
}

func (s *AuthServiceImpl) verifyDevice(ctx context.Context, deviceID uuid.UUID, signatureB64 string) (*model.Device, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	nonce, err := s.challenges.Consume(deviceID)
	if err != nil {
		return nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, errs.ErrInvalidSignature
	}
	if err := s.verifier.Verify(dev.PublicKey, nonce, sig); err != nil {
		return nil, err
	}
	return dev, nil
}

func isClientAuthErr(err error) bool {
	return errors.Is(err, errs.ErrDeviceNotFound) ||
		errors.Is(err, errs.ErrChallengeNotFound) ||
		errors.Is(err, errs.ErrInvalidSignature)
}

// UserLogin authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) UserLogin(ctx context.Context, email, password, ip string) (model.Tokens, error) {
	subject := "user:" + email
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.PasswordHash) {
		// Record failure; if threshold reached, report rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, subject, ipHash); ferr == nil && blocked {
			return model.Tokens{}, errs.ErrRateLimited
		}
		// Unknown email and wrong password look the same.
		return model.Tokens{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, subject, ipHash)
	return s.issue(token.Subject{ID: u.ID, Kind: token.KindUser})
}

func (s *AuthServiceImpl) issue(sub token.Subject) (model.Tokens, error) {
	access, exp, err := s.tokens.Issue(sub, s.tokenTTL)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("issue token: %w", err)
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// AuthenticateUser validates raw and re-checks that the user still exists.
func (s *AuthServiceImpl) AuthenticateUser(ctx context.Context, raw string) (*model.User, error) {
	sub, err := s.subject(raw, token.KindUser)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, sub.ID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrSubjectNotFound
	}
	return u, err
}

// AuthenticateDevice validates raw and re-checks that the device still exists.
func (s *AuthServiceImpl) AuthenticateDevice(ctx context.Context, raw string) (*model.Device, error) {
	sub, err := s.subject(raw, token.KindDevice)
	if err != nil {
		return nil, err
	}
	d, err := s.devices.GetByID(ctx, sub.ID)
	if errors.Is(err, errs.ErrDeviceNotFound) {
		return nil, errs.ErrSubjectNotFound
	}
	return d, err
}

func (s *AuthServiceImpl) subject(raw string, want token.Kind) (token.Subject, error) {
	if raw == "" {
		return token.Subject{}, errs.ErrInvalidToken
	}
	sub, err := s.tokens.Validate(raw)
	if err != nil {
		return token.Subject{}, err
	}
	if sub.Kind != want {
		return token.Subject{}, fmt.Errorf("%w: %s token where %s expected", errs.ErrInvalidToken, sub.Kind, want)
	}
	return sub, nil
}
