// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad email or password).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated subject lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation failed")
)

// Device handshake and session sentinels.
var (
	// ErrDeviceNotFound indicates no device is registered under the given ID.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrChallengeNotFound covers both a challenge that was never issued and one that expired.
	ErrChallengeNotFound = errors.New("challenge not found or expired")

	// ErrInvalidSignature indicates the device proof did not verify against its public key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidToken indicates a malformed, tampered or expired session token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSubjectNotFound indicates a valid token whose user or device no longer exists.
	ErrSubjectNotFound = errors.New("token subject not found")

	// ErrNotOwner indicates the user does not own the requested device.
	ErrNotOwner = errors.New("device not owned by user")

	// ErrDeviceUnregistered indicates the device has no owning user yet.
	ErrDeviceUnregistered = errors.New("device is not registered to a user")
)
