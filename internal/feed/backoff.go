package feed

import (
	"math/rand/v2"
	"time"
)

// Backoff produces reconnect delays: exponential doubling from Initial up
// to Max, with equal jitter so attempt k draws from [base/2, base]. A
// returned delay is never shorter than the previous one, which keeps the
// schedule monotone even where the doubling window meets the cap.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
	floor   time.Duration
}

// Next returns the delay to sleep before the upcoming dial attempt.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	base := b.Initial << b.attempt
	if base <= 0 || base > b.Max {
		base = b.Max
	} else {
		b.attempt++
	}
	half := base / 2
	d := half + rand.N(base-half+1)
	if d < b.floor {
		d = b.floor
	}
	b.floor = d
	return d
}

// Reset returns the schedule to the initial delay. Callers invoke it after
// a connection has streamed long enough to count as healthy again.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.floor = 0
}
