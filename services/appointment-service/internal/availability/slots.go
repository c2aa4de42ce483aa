package availability

import (
	"errors"
	"fmt"
	"time"
)

// Hours are the daily opening hours in which appointments may start.
type Hours struct {
	Open     time.Duration // offset from midnight
	Close    time.Duration
	Step     time.Duration
	Location *time.Location
}

func DefaultHours() Hours {
	return Hours{Open: 8 * time.Hour, Close: 18 * time.Hour, Step: 30 * time.Minute, Location: time.UTC}
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (h Hours) Validate() error {
	if h.Step <= 0 {
		return errors.New("slot step must be positive")
	}
	if h.Open < 0 || h.Close > 24*time.Hour || h.Close <= h.Open {
		return errors.New("closing time must be after opening time")
	}
	return nil
}

// Window returns [open, close) on the calendar date of day, in h.Location.
func (h Hours) Window(day time.Time) (time.Time, time.Time) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(h.Open), midnight.Add(h.Close)
}

// FreeStarts returns start times within [windowStart, windowEnd) spaced by step that are
// not taken and not before notBefore.
func FreeStarts(windowStart, windowEnd time.Time, step time.Duration, taken []time.Time, notBefore time.Time) []time.Time {
	if step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}

	busy := make(map[int64]struct{}, len(taken))
	for _, t := range taken {
		busy[t.Unix()] = struct{}{}
	}

	var slots []time.Time
	for t := windowStart; t.Before(windowEnd); t = t.Add(step) {
		if t.Before(notBefore) {
			continue
		}
		if _, ok := busy[t.Unix()]; ok {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
