// Package token issues and validates HMAC-signed session tokens for users and devices.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/thermolink/internal/errs"
)

// Kind tells which table a token subject lives in.
type Kind string

const (
	KindUser   Kind = "user"
	KindDevice Kind = "device"
)

// Subject is the identity carried by a token.
type Subject struct {
	ID   uuid.UUID
	Kind Kind
}

type claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Service signs and validates tokens with a single algorithm fixed at construction.
type Service struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a time source for both issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a Service. method must be HS256, HS384 or HS512.
func New(secret []byte, method string, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	var m jwt.SigningMethod
	switch method {
	case "HS256":
		m = jwt.SigningMethodHS256
	case "HS384":
		m = jwt.SigningMethodHS384
	case "HS512":
		m = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token: unsupported algorithm %q", method)
	}
	s := &Service{secret: secret, method: m, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue signs a token for sub that expires ttl from now. The claim carries
// whole seconds, so the expiry is rounded up and the returned time is exactly
// the one Validate enforces.
func (s *Service) Issue(sub Subject, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token: ttl must be positive")
	}
	if sub.ID == uuid.Nil {
		return "", time.Time{}, errors.New("token: empty subject")
	}
	switch sub.Kind {
	case KindUser, KindDevice:
	default:
		return "", time.Time{}, fmt.Errorf("token: unknown kind %q", sub.Kind)
	}
	now := s.now()
	exp := now.Add(ttl)
	if t := exp.Truncate(jwt.TimePrecision); !t.Equal(exp) {
		exp = t.Add(jwt.TimePrecision)
	}
	c := claims{
		Kind: sub.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, c.ExpiresAt.Time, nil
}

// Validate parses raw and returns its subject. Every failure maps to errs.ErrInvalidToken.
func (s *Service) Validate(raw string) (Subject, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Subject{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}

	id, err := uuid.FromString(c.Subject)
	if err != nil || id == uuid.Nil {
		return Subject{}, fmt.Errorf("%w: bad subject", errs.ErrInvalidToken)
	}
	switch c.Kind {
	case KindUser, KindDevice:
	default:
		return Subject{}, fmt.Errorf("%w: unknown kind %q", errs.ErrInvalidToken, c.Kind)
	}
	return Subject{ID: id, Kind: c.Kind}, nil
}
