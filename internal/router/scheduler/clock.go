package scheduler

import "time"

type (
	// Clock reports the current time used to compute delivery delays
	Clock func() time.Time

	// Timer fires once when the earliest pending delivery comes due
	Timer interface {
		Channel() <-chan time.Time
		Reset(delay time.Duration) bool
		Stop() bool
	}

	// TimerConstructor creates the Timer a Scheduler rearms as its queue
	// changes
	TimerConstructor func(delay time.Duration) Timer

	wallTimer struct {
		*time.Timer
	}
)

// NewTimer creates a Timer backed by time.Timer
func NewTimer(delay time.Duration) Timer {
	return wallTimer{Timer: time.NewTimer(delay)}
}

// SystemClock is time.Now
func SystemClock() time.Time {
	return time.Now()
}

func (t wallTimer) Channel() <-chan time.Time {
	return t.C
}
