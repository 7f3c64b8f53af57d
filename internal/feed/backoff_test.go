package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaysAreNonDecreasingUpToCap(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 30 * time.Second}

	var prev time.Duration
	for i := 0; i < 12; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, prev, "attempt %d shrank the delay", i)
		assert.LessOrEqual(t, d, 30*time.Second, "attempt %d exceeded the cap", i)
		prev = d
	}
	assert.GreaterOrEqual(t, prev, 15*time.Second, "late delays should sit in the cap window")
}

func TestBackoffJitterStaysInWindow(t *testing.T) {
	for run := 0; run < 50; run++ {
		b := &Backoff{Initial: time.Second, Max: 64 * time.Second}
		for k := 0; k < 7; k++ {
			base := time.Second << k
			d := b.Next()
			assert.GreaterOrEqual(t, d, base/2, "attempt %d below its jitter window", k)
			assert.LessOrEqual(t, d, base, "attempt %d above its jitter window", k)
		}
	}
}

func TestBackoffResetReturnsToInitialDelay(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 30 * time.Second}
	for i := 0; i < 7; i++ {
		b.Next()
	}
	assert.GreaterOrEqual(t, b.Next(), 15*time.Second)

	b.Reset()
	d := b.Next()
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	assert.LessOrEqual(t, d, time.Second)
}

func TestBackoffDefaultsWhenUnset(t *testing.T) {
	b := &Backoff{}
	d := b.Next()
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, time.Second)
}
