package apu

// envelope is a volume envelope. Its volume goes up or down by one unit
// each period, 64 periods per second, until it reaches 0 or 15.
type envelope struct {
	initVolume uint8
	increase   bool
	period     uint8

	volume  uint8
	counter uint8

	lenCounter lengthCounter
}

// init sets up the envelope from a NRx2 register value.
func (env *envelope) init(val uint8) {
	env.initVolume = val >> 4
	env.increase = val&0x08 != 0
	env.period = val & 0x07
}

// dacEnabled reports whether the channel DAC is on, which is the case unless
// the envelope register upper 5 bits are all zeroes.
func (env *envelope) dacEnabled() bool {
	return env.initVolume != 0 || env.increase
}

func (env *envelope) restart() {
	env.volume = env.initVolume
	env.counter = env.period
}

func (env *envelope) output() uint8 {
	if env.lenCounter.status() {
		return env.volume
	}
	return 0
}

func (env *envelope) reset() {
	env.lenCounter.reset()
	env.initVolume = 0
	env.increase = false
	env.period = 0
	env.volume = 0
	env.counter = 0
}

func (env *envelope) tick() {
	if env.period == 0 {
		return
	}
	if env.counter > 0 {
		env.counter--
	}
	if env.counter != 0 {
		return
	}

	env.counter = env.period
	switch {
	case env.increase && env.volume < 15:
		env.volume++
	case !env.increase && env.volume > 0:
		env.volume--
	}
}
