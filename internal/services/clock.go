package services

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// NowOr returns clock.Now(), falling back to the system clock when clock is nil.
func NowOr(clock Clock) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock.Now()
}
