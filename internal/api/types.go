// Package api holds the JSON wire types of the HTTP API.
package api

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/model"
)

// TokenResponse is returned by both login endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ChallengeResponse carries a nonce for the device to sign.
type ChallengeResponse struct {
	Challenge string    `json:"challenge"`
	DeviceID  uuid.UUID `json:"device_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeviceLoginRequest proves possession of the device key. Signature is base64.
type DeviceLoginRequest struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Signature string    `json:"signature"`
}

// Report is a telemetry sample as posted by devices and streamed to users.
// The misspelled field name is kept for compatibility with deployed firmware.
type Report struct {
	ID                 *uuid.UUID `json:"id,omitempty"`
	TemperatureCelcius float64    `json:"temperature_celcius"`
	HeaterOn           bool       `json:"heater_on"`
	Timestamp          time.Time  `json:"timestamp"`
}

// Device is the API view of a thermostat.
type Device struct {
	DeviceID          uuid.UUID       `json:"device_id"`
	PublicKey         string          `json:"public_key,omitempty"`
	UserID            *uuid.UUID      `json:"user_id"`
	Schedule          *model.Schedule `json:"schedule"`
	RegisterTimestamp *time.Time      `json:"register_timestamp"`
	CreationTimestamp time.Time       `json:"creation_timestamp"`
}

// User is the API view of an account. The password hash is never exposed.
type User struct {
	UserID            uuid.UUID `json:"user_id"`
	Email             string    `json:"email"`
	IsAdmin           bool      `json:"is_admin"`
	CreationTimestamp time.Time `json:"creation_timestamp"`
}

// CreateUserRequest is the admin payload for a new account.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateDeviceRequest is the admin payload for a new device. A missing
// DeviceID is generated server-side.
type CreateDeviceRequest struct {
	DeviceID  *uuid.UUID `json:"device_id,omitempty"`
	PublicKey string     `json:"public_key"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
}

// SetOwnerRequest assigns (or with null, clears) a device owner.
type SetOwnerRequest struct {
	UserID *uuid.UUID `json:"user_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
