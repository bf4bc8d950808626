package apu

// timer is a channel frequency timer. Each time it expires, the channel
// waveform advances one step. Output changes are sent to the mixer at the
// exact clock they happen.
type timer struct {
	previousCycle uint32
	timer         uint16
	period        uint16
	lastOutput    int8

	channel Channel
	mixer   *Mixer
}

func (t *timer) reset() {
	t.timer = 0
	t.period = 0
	t.previousCycle = 0
	t.lastOutput = 0
}

func (t *timer) addOutput(output int8) {
	if output != t.lastOutput {
		t.mixer.addDelta(t.channel, t.previousCycle, int16(output-t.lastOutput))
		t.lastOutput = output
	}
}

// run runs the timer until targetCycle, or until it expires, in which case it
// reports true and must be run again.
func (t *timer) run(targetCycle uint32) bool {
	if targetCycle <= t.previousCycle {
		return false
	}
	cyclesToRun := targetCycle - t.previousCycle

	if cyclesToRun > uint32(t.timer) {
		t.previousCycle += uint32(t.timer) + 1
		t.timer = t.period
		return true
	}

	t.timer -= uint16(cyclesToRun)
	t.previousCycle = targetCycle
	return false
}

// endFrame starts a new frame, frameCycles after the start of the current one.
func (t *timer) endFrame(frameCycles uint32) {
	if t.previousCycle > frameCycles {
		t.previousCycle -= frameCycles
	} else {
		t.previousCycle = 0
	}
}
