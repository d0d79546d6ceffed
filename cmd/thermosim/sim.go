package main

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/and161185/thermolink/internal/model"
)

const hysteresis = 0.5

// thermostat is a toy room model: the heater warms the room, otherwise it
// drifts toward the outside temperature.
type thermostat struct {
	temp    float64
	heater  bool
	outside float64
	rnd     *rand.Rand
}

func newThermostat(start float64, seed uint64) *thermostat {
	return &thermostat{temp: start, outside: 12, rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// targetAt returns the set point active at t: the latest slot at or before
// t, looking back through previous days. ok is false for an empty schedule.
func targetAt(s *model.Schedule, t time.Time) (int, bool) {
	if s == nil {
		return 0, false
	}
	byDay := make(map[time.Weekday][]model.TimeSlot, len(s.Days))
	for _, d := range s.Days {
		if wd, ok := parseWeekday(d.Day); ok {
			byDay[wd] = append(byDay[wd], d.Slots...)
		}
	}
	now := t.Format("15:04")
	for back := 0; back < 8; back++ {
		wd := (t.Weekday() + 7 - time.Weekday(back%7)) % 7
		best, found := "", false
		temp := 0
		for _, slot := range byDay[wd] {
			if back == 0 && slot.Time > now {
				continue
			}
			if !found || slot.Time > best {
				best, temp, found = slot.Time, slot.Temperature, true
			}
		}
		if found {
			return temp, true
		}
	}
	return 0, false
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}

// step advances the model by one tick toward target.
func (th *thermostat) step(target float64) {
	switch {
	case th.temp < target-hysteresis:
		th.heater = true
	case th.temp > target+hysteresis:
		th.heater = false
	}
	if th.heater {
		th.temp += 0.3
	} else {
		th.temp -= (th.temp - th.outside) * 0.02
	}
	th.temp += (th.rnd.Float64() - 0.5) * 0.1
}

// randomReading mimics a device without a schedule: 20..30 °C, heater on.
func (th *thermostat) randomReading() {
	th.temp = float64(20 + th.rnd.IntN(11))
	th.heater = true
}
