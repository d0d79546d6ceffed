package httpserver

import (
	"context"

	"github.com/and161185/thermolink/internal/model"
)

type ctxKey string

const (
	userKey   ctxKey = "thermo.user"
	deviceKey ctxKey = "thermo.device"
)

// WithUser stores the authenticated user in context.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromCtx fetches the authenticated user from context.
func UserFromCtx(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// WithDevice stores the authenticated device in context.
func WithDevice(ctx context.Context, d *model.Device) context.Context {
	return context.WithValue(ctx, deviceKey, d)
}

// DeviceFromCtx fetches the authenticated device from context.
func DeviceFromCtx(ctx context.Context) (*model.Device, bool) {
	d, ok := ctx.Value(deviceKey).(*model.Device)
	return d, ok && d != nil
}
