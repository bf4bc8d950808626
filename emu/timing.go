package emu

import (
	"sync"
	"time"
)

// timing tracks frame rate and frame duration. vblank is called from the
// emulation goroutine, tick from the clock goroutine and the getters from
// anywhere.
type timing struct {
	now func() time.Time

	mu         sync.Mutex
	frames     int
	lastSecond time.Time // start of the current measurement interval
	lastVBlank time.Time
	fps        float64
	frameDelta time.Duration
}

func newTiming(now func() time.Time) *timing {
	t0 := now()
	return &timing{
		now:        now,
		lastSecond: t0,
		lastVBlank: t0,
	}
}

// vblank records the completion of a frame.
func (t *timing) vblank() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.frames++
	t.frameDelta = now.Sub(t.lastVBlank)
	t.lastVBlank = now
}

// tick updates the frame rate once per second. When it does so, it returns
// the exact duration of the elapsed measurement interval.
func (t *timing) tick(now time.Time) (elapsed time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed = now.Sub(t.lastSecond)
	if elapsed < time.Second {
		return 0, false
	}

	t.fps = float64(t.frames) / elapsed.Seconds()
	t.frames = 0
	t.lastSecond = now
	return elapsed, true
}

func (t *timing) framesPerSecond() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fps
}

func (t *timing) lastFrameDelta() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameDelta
}
