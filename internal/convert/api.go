// Package convert maps domain models to and from API wire types.
package convert

import (
	"time"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/model"
)

// TokenType is the OAuth2 token type reported to clients.
const TokenType = "bearer"

// ToAPITokens wraps issued tokens.
func ToAPITokens(t model.Tokens) api.TokenResponse {
	return api.TokenResponse{AccessToken: t.AccessToken, TokenType: TokenType}
}

// ToAPIChallenge converts an issued challenge.
func ToAPIChallenge(c model.Challenge) api.ChallengeResponse {
	return api.ChallengeResponse{Challenge: c.Nonce, DeviceID: c.DeviceID, ExpiresAt: c.ExpiresAt}
}

// ToAPIReport converts a stored report, including its ID.
func ToAPIReport(r model.Report) api.Report {
	id := r.ID
	return api.Report{
		ID:                 &id,
		TemperatureCelcius: r.TemperatureCelsius,
		HeaterOn:           r.HeaterOn,
		Timestamp:          r.Timestamp,
	}
}

// ToAPIReports converts a slice, never returning nil.
func ToAPIReports(rs []model.Report) []api.Report {
	out := make([]api.Report, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToAPIReport(r))
	}
	return out
}

// FromAPIReport extracts the device-supplied fields. A zero timestamp
// is replaced with now.
func FromAPIReport(in api.Report, now time.Time) model.ReportInput {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return model.ReportInput{
		TemperatureCelsius: in.TemperatureCelcius,
		HeaterOn:           in.HeaterOn,
		Timestamp:          ts.UTC(),
	}
}

// ToAPIDevice converts a device for its owner; the public key is omitted.
func ToAPIDevice(d model.Device) api.Device {
	return api.Device{
		DeviceID:          d.ID,
		UserID:            d.OwnerID,
		Schedule:          d.Schedule,
		RegisterTimestamp: d.RegisteredAt,
		CreationTimestamp: d.CreatedAt,
	}
}

// ToAPIAdminDevice converts a device for administrators, key included.
func ToAPIAdminDevice(d model.Device) api.Device {
	out := ToAPIDevice(d)
	out.PublicKey = d.PublicKey
	return out
}

// ToAPIDevices converts a slice with conv, never returning nil.
func ToAPIDevices(ds []model.Device, conv func(model.Device) api.Device) []api.Device {
	out := make([]api.Device, 0, len(ds))
	for _, d := range ds {
		out = append(out, conv(d))
	}
	return out
}

// ToAPIUser converts a user without credentials.
func ToAPIUser(u model.User) api.User {
	return api.User{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin, CreationTimestamp: u.CreatedAt}
}

// ToAPIUsers converts a slice, never returning nil.
func ToAPIUsers(us []model.User) []api.User {
	out := make([]api.User, 0, len(us))
	for _, u := range us {
		out = append(out, ToAPIUser(u))
	}
	return out
}
