// Package challenge issues single-use login nonces for devices.
package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
)

// DefaultTTL is how long an issued challenge stays valid.
const DefaultTTL = 5 * time.Minute

// nonceBytes is the amount of entropy in a nonce (hex-encoded on the wire).
const nonceBytes = 32

// Store keeps at most one active challenge per device. Expiry is evaluated
// lazily on access; there is no background sweeper.
type Store struct {
	mu      sync.Mutex
	entries map[uuid.UUID]entry
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

type entry struct {
	nonce     string
	expiresAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEntropy replaces crypto/rand as the nonce source.
func WithEntropy(r io.Reader) Option {
	return func(s *Store) { s.entropy = r }
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[uuid.UUID]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue returns the device's current challenge if it has not expired,
// otherwise replaces it with a fresh one.
func (s *Store) Issue(deviceID uuid.UUID) (model.Challenge, error) {
	// Drawn outside the lock and discarded if a live challenge exists.
	nonce, genErr := newNonce(s.entropy)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[deviceID]; ok && now.Before(e.expiresAt) {
		return model.Challenge{DeviceID: deviceID, Nonce: e.nonce, ExpiresAt: e.expiresAt}, nil
	}
	if genErr != nil {
		delete(s.entries, deviceID)
		return model.Challenge{}, genErr
	}
	e := entry{nonce: nonce, expiresAt: now.Add(s.ttl)}
	s.entries[deviceID] = e
	return model.Challenge{DeviceID: deviceID, Nonce: e.nonce, ExpiresAt: e.expiresAt}, nil
}

// Consume removes and returns the device's nonce. A missing or expired
// challenge yields errs.ErrChallengeNotFound.
func (s *Store) Consume(deviceID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[deviceID]
	if !ok {
		return "", errs.ErrChallengeNotFound
	}
	delete(s.entries, deviceID)
	if !s.now().Before(e.expiresAt) {
		return "", errs.ErrChallengeNotFound
	}
	return e.nonce, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newNonce(r io.Reader) (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
