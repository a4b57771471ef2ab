package main

import "time"

// frameLimiter paces the driver loop to a fixed frame duration.
type frameLimiter struct {
	target time.Duration
	next   time.Time
}

func newFrameLimiter(target time.Duration) *frameLimiter {
	return &frameLimiter{target: target}
}

// Wait blocks until the next frame is due. A zero target never waits.
func (f *frameLimiter) Wait() {
	if f.target <= 0 {
		f.next = time.Time{}
		return
	}

	if f.next.IsZero() {
		f.next = time.Now().Add(f.target)
	} else {
		f.next = f.next.Add(f.target)
	}

	if remaining := time.Until(f.next); remaining > 0 {
		time.Sleep(remaining)
	}

	// resync after a hitch instead of bursting to catch up
	if late := -time.Until(f.next); late > f.target {
		f.next = time.Now().Add(f.target)
	}
}
