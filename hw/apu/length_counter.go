package apu

// lengthCounter silences its channel after a programmable duration, when
// enabled. It's clocked 256 times per second.
type lengthCounter struct {
	enabled bool
	active  bool // channel on
	counter uint16
	max     uint16 // 64, or 256 for the wave channel
}

func (lc *lengthCounter) load(val uint8) {
	lc.counter = lc.max - uint16(val)
}

func (lc *lengthCounter) reset() {
	lc.enabled = false
	lc.active = false
	lc.counter = 0
}

// trigger turns the channel on. A zero counter is reloaded with the maximum
// duration.
func (lc *lengthCounter) trigger() {
	lc.active = true
	if lc.counter == 0 {
		lc.counter = lc.max
	}
}

func (lc *lengthCounter) status() bool {
	return lc.active
}

func (lc *lengthCounter) tick() {
	if !lc.enabled || lc.counter == 0 {
		return
	}
	lc.counter--
	if lc.counter == 0 {
		lc.active = false
	}
}
