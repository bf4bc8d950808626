package apu

var dutySequences = [4][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 1}, // 12.5%
	{1, 0, 0, 0, 0, 0, 0, 1}, // 25%
	{1, 0, 0, 0, 0, 1, 1, 1}, // 50%
	{0, 1, 1, 1, 1, 1, 1, 0}, // 75%
}

// pulse is a square wave channel with a volume envelope. The first pulse
// channel also has a frequency sweep unit.
type pulse struct {
	timer timer
	env   envelope

	duty    uint8
	dutyPos uint8
	freq    uint16 // 11 bits

	hasSweep     bool
	sweepEnabled bool
	sweepPeriod  uint8
	sweepNegate  bool
	sweepShift   uint8
	sweepTimer   uint8
	shadowFreq   uint16
}

func newPulse(ch Channel, mixer *Mixer, hasSweep bool) *pulse {
	p := &pulse{hasSweep: hasSweep}
	p.timer.channel = ch
	p.timer.mixer = mixer
	p.env.lenCounter.max = 64
	return p
}

func (p *pulse) reset() {
	p.timer.reset()
	p.env.reset()
	p.duty = 0
	p.dutyPos = 0
	p.freq = 0
	p.sweepEnabled = false
	p.sweepPeriod = 0
	p.sweepNegate = false
	p.sweepShift = 0
	p.sweepTimer = 0
	p.shadowFreq = 0
	p.updatePeriod()
}

func (p *pulse) enabled() bool {
	return p.env.lenCounter.status()
}

func (p *pulse) output() int8 {
	return int8(dutySequences[p.duty][p.dutyPos] * p.env.output())
}

func (p *pulse) updatePeriod() {
	// The waveform advances one step every (2048-freq)*4 cycles.
	p.timer.period = (2048-p.freq)*4 - 1
}

func (p *pulse) run(targetCycle uint32) {
	for p.timer.run(targetCycle) {
		p.dutyPos = (p.dutyPos + 1) & 7
		p.timer.addOutput(p.output())
	}
}

// NRx0, first pulse channel only.
func (p *pulse) writeSweep(val uint8) {
	p.sweepPeriod = (val >> 4) & 0x07
	p.sweepNegate = val&0x08 != 0
	p.sweepShift = val & 0x07
}

// NRx1
func (p *pulse) writeDuty(val uint8) {
	p.duty = val >> 6
	p.env.lenCounter.load(val & 0x3F)
}

// NRx2
func (p *pulse) writeEnvelope(val uint8) {
	p.env.init(val)
	if !p.env.dacEnabled() {
		p.env.lenCounter.active = false
	}
	p.timer.addOutput(p.output())
}

// NRx3
func (p *pulse) writeFreqLo(val uint8) {
	p.freq = p.freq&0x700 | uint16(val)
	p.updatePeriod()
}

// NRx4
func (p *pulse) writeFreqHi(val uint8) {
	p.freq = p.freq&0xFF | uint16(val&0x07)<<8
	p.updatePeriod()
	p.env.lenCounter.enabled = val&0x40 != 0
	if val&0x80 != 0 {
		p.trigger()
	}
	p.timer.addOutput(p.output())
}

func (p *pulse) trigger() {
	p.env.lenCounter.trigger()
	p.env.restart()
	p.timer.timer = p.timer.period

	if p.hasSweep {
		p.shadowFreq = p.freq
		p.sweepTimer = p.sweepReload()
		p.sweepEnabled = p.sweepPeriod != 0 || p.sweepShift != 0
		if p.sweepShift != 0 {
			p.sweepFreq()
		}
	}

	if !p.env.dacEnabled() {
		p.env.lenCounter.active = false
	}
}

func (p *pulse) sweepReload() uint8 {
	if p.sweepPeriod == 0 {
		return 8
	}
	return p.sweepPeriod
}

// sweepFreq computes the next swept frequency, disabling the channel when it
// overflows.
func (p *pulse) sweepFreq() uint16 {
	delta := p.shadowFreq >> p.sweepShift
	freq := p.shadowFreq + delta
	if p.sweepNegate {
		freq = p.shadowFreq - delta
	}
	if freq > 2047 {
		p.env.lenCounter.active = false
	}
	return freq
}

func (p *pulse) tickSweep() {
	if p.sweepTimer > 0 {
		p.sweepTimer--
	}
	if p.sweepTimer != 0 {
		return
	}

	p.sweepTimer = p.sweepReload()
	if !p.sweepEnabled || p.sweepPeriod == 0 {
		return
	}

	freq := p.sweepFreq()
	if freq <= 2047 && p.sweepShift != 0 {
		p.shadowFreq = freq
		p.freq = freq
		p.updatePeriod()
		p.sweepFreq()
	}
}
