package convert

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/model"
)

func TestToAPIReport_WireShape(t *testing.T) {
	t.Parallel()

	r := model.Report{
		ID:                 uuid.Must(uuid.NewV4()),
		DeviceID:           uuid.Must(uuid.NewV4()),
		TemperatureCelsius: 21.5,
		HeaterOn:           true,
		Timestamp:          time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	b, err := json.Marshal(ToAPIReport(r))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"temperature_celcius":21.5`, `"heater_on":true`, `"timestamp":"2026-02-03T04:05:06Z"`, r.ID.String()} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, r.DeviceID.String()) {
		t.Fatalf("device id must not leak into the report payload: %s", s)
	}
}

func TestFromAPIReport_DefaultsTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := FromAPIReport(api.Report{TemperatureCelcius: 18, HeaterOn: false}, now)
	if !in.Timestamp.Equal(now) || in.TemperatureCelsius != 18 {
		t.Fatalf("unexpected input: %+v", in)
	}

	loc := time.FixedZone("X", 3*3600)
	ts := time.Date(2026, 1, 1, 3, 0, 0, 0, loc)
	in = FromAPIReport(api.Report{Timestamp: ts}, now)
	if in.Timestamp.Location() != time.UTC || !in.Timestamp.Equal(ts) {
		t.Fatalf("timestamp must be normalized to UTC: %v", in.Timestamp)
	}
}

func TestToAPIDevice_HidesKeyForUsers(t *testing.T) {
	t.Parallel()

	owner := uuid.Must(uuid.NewV4())
	d := model.Device{ID: uuid.Must(uuid.NewV4()), PublicKey: "pem", OwnerID: &owner}

	if got := ToAPIDevice(d); got.PublicKey != "" || *got.UserID != owner {
		t.Fatalf("user view mismatch: %+v", got)
	}
	if got := ToAPIAdminDevice(d); got.PublicKey != "pem" {
		t.Fatalf("admin view must include key")
	}
	if got := ToAPIDevices(nil, ToAPIDevice); got == nil || len(got) != 0 {
		t.Fatalf("empty slice expected")
	}
}

func TestToAPIUser_NoCredentials(t *testing.T) {
	t.Parallel()

	u := model.User{ID: uuid.Must(uuid.NewV4()), Email: "a@b.c", PasswordHash: []byte("secret-hash"), IsAdmin: true}
	b, _ := json.Marshal(ToAPIUsers([]model.User{u}))
	if strings.Contains(string(b), "secret-hash") || strings.Contains(string(b), "password") {
		t.Fatalf("credentials leaked: %s", b)
	}
	if ToAPITokens(model.Tokens{AccessToken: "t"}).TokenType != "bearer" {
		t.Fatalf("token type must be bearer")
	}
}
