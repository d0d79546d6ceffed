package main

import (
	"testing"
	"time"

	"github.com/and161185/thermolink/internal/model"
)

func Test_targetAt(t *testing.T) {
	t.Parallel()

	s := &model.Schedule{Days: []model.DaySchedule{
		{Day: "Monday", Slots: []model.TimeSlot{{Time: "07:00", Temperature: 21}, {Time: "22:00", Temperature: 17}}},
		{Day: "Wednesday", Slots: []model.TimeSlot{{Time: "08:00", Temperature: 19}}},
	}}
	// 2024-01-01 is a Monday.
	at := func(day int, hhmm string) time.Time {
		hm, err := time.Parse("15:04", hhmm)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return time.Date(2024, time.January, day, hm.Hour(), hm.Minute(), 0, 0, time.UTC)
	}

	cases := []struct {
		name string
		t    time.Time
		want int
	}{
		{"monday morning", at(1, "07:30"), 21},
		{"monday night", at(1, "23:00"), 17},
		{"monday before first slot carries wednesday", at(1, "06:00"), 19},
		{"tuesday carries monday night", at(2, "12:00"), 17},
		{"wednesday after slot", at(3, "09:00"), 19},
		{"sunday carries wednesday", at(7, "12:00"), 19},
	}
	for _, tc := range cases {
		got, ok := targetAt(s, tc.t)
		if !ok || got != tc.want {
			t.Fatalf("%s: got %d ok=%v, want %d", tc.name, got, ok, tc.want)
		}
	}

	if _, ok := targetAt(nil, at(1, "07:00")); ok {
		t.Fatalf("nil schedule must have no target")
	}
	if _, ok := targetAt(&model.Schedule{}, at(1, "07:00")); ok {
		t.Fatalf("empty schedule must have no target")
	}
}

func Test_thermostat_HeatsTowardTarget(t *testing.T) {
	t.Parallel()

	th := newThermostat(15, 1)
	for i := 0; i < 200; i++ {
		th.step(21)
	}
	if th.temp < 19.5 || th.temp > 22.5 {
		t.Fatalf("temperature did not settle near target: %.2f", th.temp)
	}

	th = newThermostat(25, 1)
	th.step(20)
	if th.heater {
		t.Fatalf("heater must be off above target")
	}
}

func Test_thermostat_RandomReading(t *testing.T) {
	t.Parallel()

	th := newThermostat(0, 7)
	for i := 0; i < 50; i++ {
		th.randomReading()
		if th.temp < 20 || th.temp > 30 || !th.heater {
			t.Fatalf("reading out of range: %.1f heater=%v", th.temp, th.heater)
		}
	}
}
