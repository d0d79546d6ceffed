// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued session token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uuid.UUID // PK
	Email        string    // unique
	PasswordHash []byte    // bcrypt(password)
	IsAdmin      bool
	CreatedAt    time.Time
}

// Device is a thermostat identified by its registered RSA public key.
type Device struct {
	ID           uuid.UUID
	PublicKey    string     // PEM (or base64 of PEM); never updated once set
	OwnerID      *uuid.UUID // nil until registered to a user
	Schedule     *Schedule  // nil if never uploaded
	RegisteredAt *time.Time // when OwnerID was last set
	CreatedAt    time.Time
}

// OwnedBy reports whether the device is registered to userID.
func (d *Device) OwnedBy(userID uuid.UUID) bool {
	return d.OwnerID != nil && *d.OwnerID == userID
}

// Challenge is a one-time nonce a device must sign to log in.
type Challenge struct {
	DeviceID  uuid.UUID
	Nonce     string
	ExpiresAt time.Time
}

// Report is a single telemetry sample posted by a device.
type Report struct {
	ID                 uuid.UUID
	DeviceID           uuid.UUID
	UserID             uuid.UUID // device owner at ingest time
	TemperatureCelsius float64
	HeaterOn           bool
	Timestamp          time.Time
}

// ReportInput is the device-supplied part of a report.
type ReportInput struct {
	TemperatureCelsius float64
	HeaterOn           bool
	Timestamp          time.Time
}

// Schedule is a weekly heating plan.
type Schedule struct {
	Days []DaySchedule `json:"schedule"`
}

// DaySchedule holds the set points for one weekday.
type DaySchedule struct {
	Day   string     `json:"day"`
	Slots []TimeSlot `json:"slots"`
}

// TimeSlot switches the target temperature at Time ("HH:MM").
type TimeSlot struct {
	Time        string `json:"time"`
	Temperature int    `json:"temperature"`
}
