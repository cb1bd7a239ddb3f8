// Package timing provides the clock and timer abstraction used by the
// session registry, the recording reconciler, and the automation
// orchestrator. Production code uses the system clock; tests inject a
// FakeClock and advance virtual time instead of sleeping.
package timing

import "time"

// Timer is a handle to a scheduled callback. Stop prevents the callback
// from firing and reports whether it did so before the timer fired.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and deferred callback scheduling.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// systemClock implements Clock using the time package.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// System returns the wall-clock backed Clock used in production wiring.
func System() Clock {
	return systemClock{}
}
