// Package apu implements the audio unit: channel level changes are
// accumulated during a frame and resampled to the output sample rate when the
// frame ends. The two pulse channels are synthesized here, the other channels
// report their levels through AddDelta.
package apu

import (
	"fmt"
	"sync"

	"gbcore/emu/log"
	"gbcore/hw/hwdefs"
	"gbcore/hw/hwio"
)

const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// A Sink receives audio samples, stereo interleaved. It's called on the
// emulation goroutine, samples are only valid during the call.
type Sink func(samples []int16)

// APU is the audio unit. All methods but SetSink must be called from the
// emulation goroutine.
type APU struct {
	NR10 hwio.Reg8 `hwio:"offset=0x10,rwmask=0x7F,wcb"`
	NR11 hwio.Reg8 `hwio:"offset=0x11,wcb"`
	NR12 hwio.Reg8 `hwio:"offset=0x12,wcb"`
	NR13 hwio.Reg8 `hwio:"offset=0x13,wcb"`
	NR14 hwio.Reg8 `hwio:"offset=0x14,rwmask=0xC7,wcb"`
	NR21 hwio.Reg8 `hwio:"offset=0x16,wcb"`
	NR22 hwio.Reg8 `hwio:"offset=0x17,wcb"`
	NR23 hwio.Reg8 `hwio:"offset=0x18,wcb"`
	NR24 hwio.Reg8 `hwio:"offset=0x19,rwmask=0xC7,wcb"`
	NR50 hwio.Reg8 `hwio:"offset=0x24,reset=0x77,wcb"`
	NR51 hwio.Reg8 `hwio:"offset=0x25,reset=0xFF,wcb"`
	NR52 hwio.Reg8 `hwio:"offset=0x26,reset=0x80,rwmask=0x80,rcb"`

	mixer      *Mixer
	sampleRate int

	pulse1 *pulse
	pulse2 *pulse
	seq    sequencer

	// clock is the current cycle within the frame.
	clock   uint32
	frames  uint64
	samples uint64

	mu   sync.Mutex
	sink Sink
}

// New returns an audio unit producing samples at the given sample rate.
func New(sampleRate int) *APU {
	// Large enough to hold a few frames, in case of overshoot.
	bufsize := MaxSampleRate / 10
	mixer := newMixer(bufsize)
	a := &APU{
		mixer:      mixer,
		sampleRate: sampleRate,
		pulse1:     newPulse(Pulse1, mixer, true),
		pulse2:     newPulse(Pulse2, mixer, false),
		seq:        sequencer{next: sequencerPeriod},
	}
	hwio.MustInitRegs(a)
	return a
}

func (a *APU) Initialize() error {
	if a.sampleRate < MinSampleRate || a.sampleRate > MaxSampleRate {
		return fmt.Errorf("invalid sample rate %d, must be in [%d, %d]", a.sampleRate, MinSampleRate, MaxSampleRate)
	}
	a.mixer.setRates(hwdefs.CPUClockRate, float64(a.sampleRate))
	log.ModSound.DebugZ("audio initialized").Int("rate", a.sampleRate).End()
	return nil
}

func (a *APU) Reset() {
	hwio.MustInitRegs(a)
	a.mixer.reset()
	a.pulse1.reset()
	a.pulse2.reset()
	a.seq.reset()
	a.clock = 0
}

func (a *APU) Shutdown() {
	log.ModSound.DebugZ("audio shutdown").
		Uint("frames", a.frames).
		Uint("samples", a.samples).
		End()
}

func (a *APU) SampleRate() int { return a.sampleRate }

// SetSink sets the function receiving the samples, nil discards them.
func (a *APU) SetSink(sink Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// Tick advances the current clock within the frame, running the channels up
// to it.
func (a *APU) Tick(cycles int) {
	a.clock += uint32(cycles)
	a.run(a.clock)
}

func (a *APU) run(targetCycle uint32) {
	for a.seq.next <= targetCycle {
		a.pulse1.run(a.seq.next)
		a.pulse2.run(a.seq.next)
		a.seq.clock(a.pulse1, a.pulse2)
	}
	a.pulse1.run(targetCycle)
	a.pulse2.run(targetCycle)
}

// MapIO maps the sound registers into the I/O space.
func (a *APU) MapIO(io *hwio.Table) {
	io.MapBank(0xFF00, a)
}

func (a *APU) WriteNR10(_, val uint8) { a.pulse1.writeSweep(val) }
func (a *APU) WriteNR11(_, val uint8) { a.pulse1.writeDuty(val) }
func (a *APU) WriteNR12(_, val uint8) { a.pulse1.writeEnvelope(val) }
func (a *APU) WriteNR13(_, val uint8) { a.pulse1.writeFreqLo(val) }
func (a *APU) WriteNR14(_, val uint8) { a.pulse1.writeFreqHi(val) }
func (a *APU) WriteNR21(_, val uint8) { a.pulse2.writeDuty(val) }
func (a *APU) WriteNR22(_, val uint8) { a.pulse2.writeEnvelope(val) }
func (a *APU) WriteNR23(_, val uint8) { a.pulse2.writeFreqLo(val) }
func (a *APU) WriteNR24(_, val uint8) { a.pulse2.writeFreqHi(val) }

func (a *APU) WriteNR50(_, val uint8) {
	// Left and right volumes can't be set independently.
	a.SetVolume(int(val&0x07) + 1)
}

func (a *APU) WriteNR51(_, val uint8) {
	for ch := range Channel(NumChannels) {
		a.mixer.left[ch] = val&(0x10<<ch) != 0
		a.mixer.right[ch] = val&(0x01<<ch) != 0
	}
	a.mixer.update(a.clock)
}

// ReadNR52 reports the channels status in the low bits.
func (a *APU) ReadNR52(val uint8) uint8 {
	val |= 0x70
	for ch := range Channel(NumChannels) {
		if a.Enabled(ch) {
			val |= 1 << ch
		}
	}
	return val
}

// Enabled reports whether a channel is currently producing sound.
func (a *APU) Enabled(ch Channel) bool {
	switch ch {
	case Pulse1:
		return a.pulse1.enabled()
	case Pulse2:
		return a.pulse2.enabled()
	}
	return false
}

// AddDelta changes the output level of a channel at the current clock.
func (a *APU) AddDelta(ch Channel, delta int16) {
	a.mixer.addDelta(ch, a.clock, delta)
}

// SetPanning routes the output of a channel to the left and/or right
// speakers.
func (a *APU) SetPanning(ch Channel, left, right bool) {
	a.mixer.left[ch] = left
	a.mixer.right[ch] = right
	a.mixer.update(a.clock)
}

// SetVolume sets the master volume, from 0 to 8.
func (a *APU) SetVolume(vol int) {
	a.mixer.volume = int32(min(max(vol, 0), 8))
	a.mixer.update(a.clock)
}

// Advance ends the audio frame after the given number of cycles and hands the
// resulting samples to the sink.
func (a *APU) Advance(cycles int) {
	end := uint32(cycles)
	a.run(end)

	samples := a.mixer.endFrame(cycles)
	a.pulse1.timer.endFrame(end)
	a.pulse2.timer.endFrame(end)
	a.seq.endFrame(end)
	if a.clock > end {
		a.clock -= end
	} else {
		a.clock = 0
	}
	a.frames++
	a.samples += uint64(len(samples) / 2)

	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()

	if sink != nil && len(samples) > 0 {
		sink(samples)
	}
}
