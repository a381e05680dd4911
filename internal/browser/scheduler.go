// File: internal/browser/scheduler.go
package browser

import "time"

// Handle cancels a scheduled callback. Stop reports whether the call stopped
// the callback before it ran.
type Handle interface {
	Stop() bool
}

// Scheduler runs fn once after delay. It backs the session idle check.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) Handle
}

// TimerScheduler schedules callbacks on the runtime timer heap.
type TimerScheduler struct{}

func (TimerScheduler) ScheduleOnce(delay time.Duration, fn func()) Handle {
	return time.AfterFunc(delay, fn)
}
