package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Recognized repeat interval types and their lengths in seconds. ONCE is
// the one-shot fast path.
var intervalSeconds = map[string]int64{
	"ONCE":      5,
	"PERMINUTE": 60,
	"HOURLY":    3600,
	"DAILY":     86400,
	"WEEKLY":    604800,
	"MONTHLY":   4 * 604800,
}

var (
	ErrUnknownInterval = errors.New("scheduler: unknown repeat interval type")
	ErrInvalidWindow   = errors.New("scheduler: invalid recurrence window")
)

// Recurrence is the resolved scheduling plan for a new schedule row.
type Recurrence struct {
	RunAt          time.Time
	RepeatInterval int64
	RepeatCount    int32
}

// PlanRecurrence turns the admission-level recurrence parameters into a
// concrete plan. Non-recurring jobs get an automatic now+5s/now+10s window
// and a zero repeat count. Recurring jobs require start in the future, end
// after start, a window of at least minWindow and a recognized interval
// type; the repeat count is the window divided by the interval length.
func PlanRecurrence(isRecurring bool, intervalType string, startAt, endAt *time.Time, minWindow time.Duration, now time.Time) (Recurrence, error) {
	if !isRecurring {
		interval := intervalSeconds["ONCE"]
		return Recurrence{
			RunAt:          now.Add(5 * time.Second),
			RepeatInterval: interval,
			RepeatCount:    0,
		}, nil
	}

	interval, ok := intervalSeconds[intervalType]
	if !ok {
		return Recurrence{}, fmt.Errorf("%w: %q", ErrUnknownInterval, intervalType)
	}
	if startAt == nil || endAt == nil {
		return Recurrence{}, fmt.Errorf("%w: start_at and end_at are required", ErrInvalidWindow)
	}
	if !startAt.After(now) {
		return Recurrence{}, fmt.Errorf("%w: start_at must be in the future", ErrInvalidWindow)
	}
	if !endAt.After(*startAt) {
		return Recurrence{}, fmt.Errorf("%w: end_at must be after start_at", ErrInvalidWindow)
	}
	window := endAt.Sub(*startAt)
	if window < minWindow {
		return Recurrence{}, fmt.Errorf("%w: window must span at least %s", ErrInvalidWindow, minWindow)
	}

	return Recurrence{
		RunAt:          *startAt,
		RepeatInterval: interval,
		RepeatCount:    int32(int64(window.Seconds()) / interval),
	}, nil
}
