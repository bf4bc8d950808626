package apu

import (
	"github.com/arl/blip"
)

// Mixer mixes the output of the sound channels into a stereo stream of
// band-limited samples. Channels report level changes, as deltas, at the clock
// they happen within the current frame.
type Mixer struct {
	bufleft  *blip.Buffer
	bufright *blip.Buffer

	// stereo interleaved samples, as read at the end of a frame.
	outbuf []int16

	curOutput [NumChannels]int16
	left      [NumChannels]bool
	right     [NumChannels]bool
	volume    int32

	prevOutleft  int32
	prevOutright int32
}

// Amplitude of a single channel at full volume.
const channelAmp = 1 << 9

func newMixer(bufsize int) *Mixer {
	m := &Mixer{
		bufleft:  blip.NewBuffer(bufsize),
		bufright: blip.NewBuffer(bufsize),
		outbuf:   make([]int16, bufsize*2),
	}
	m.reset()
	return m
}

func (m *Mixer) setRates(clockRate, sampleRate float64) {
	m.bufleft.SetRates(clockRate, sampleRate)
	m.bufright.SetRates(clockRate, sampleRate)
}

func (m *Mixer) reset() {
	m.bufleft.Clear()
	m.bufright.Clear()
	clear(m.curOutput[:])
	for i := range NumChannels {
		m.left[i] = true
		m.right[i] = true
	}
	m.volume = 8
	m.prevOutleft = 0
	m.prevOutright = 0
}

func (m *Mixer) output(side *[NumChannels]bool) int32 {
	var out int32
	for ch := range NumChannels {
		if side[ch] {
			out += int32(m.curOutput[ch])
		}
	}
	return out * channelAmp * m.volume / 8
}

// addDelta changes the output level of ch by delta, at the given clock of the
// current frame.
func (m *Mixer) addDelta(ch Channel, clock uint32, delta int16) {
	if delta == 0 {
		return
	}
	m.curOutput[ch] += delta
	m.update(clock)
}

func (m *Mixer) update(clock uint32) {
	if out := m.output(&m.left); out != m.prevOutleft {
		m.bufleft.AddDelta(uint64(clock), out-m.prevOutleft)
		m.prevOutleft = out
	}
	if out := m.output(&m.right); out != m.prevOutright {
		m.bufright.AddDelta(uint64(clock), out-m.prevOutright)
		m.prevOutright = out
	}
}

// endFrame ends the current frame after the given number of clocks and
// returns the available stereo samples, interleaved. The returned slice is
// only valid until the next call.
func (m *Mixer) endFrame(clocks int) []int16 {
	m.bufleft.EndFrame(clocks)
	m.bufright.EndFrame(clocks)

	n := m.bufleft.ReadSamples(m.outbuf, len(m.outbuf)/2, blip.Stereo)
	m.bufright.ReadSamples(m.outbuf[1:], n, blip.Stereo)
	return m.outbuf[:n*2]
}
