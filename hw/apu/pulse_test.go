package apu

import (
	"testing"

	"gbcore/hw/hwdefs"
	"gbcore/hw/hwio"
)

func mapIO(a *APU) *hwio.Table {
	io := hwio.NewTable("io")
	a.MapIO(io)
	return io
}

// trigger starts the first pulse channel.
func trigger(io *hwio.Table, duty, env, freqHi uint8) {
	io.Write8(0xFF11, duty)
	io.Write8(0xFF12, env)
	io.Write8(0xFF13, 0x00)
	io.Write8(0xFF14, 0x80|freqHi)
}

// risingEdges counts the rising edges of the left channel, that is the jumps
// of at least 2/3 of step from the lowest level seen since the last falling
// edge. The output high-pass filter makes the levels drift, so edges are
// detected relative to the current plateau rather than to fixed thresholds.
func risingEdges(samples []int16, step int) int {
	n := 0
	high := false
	lo, hi := 0, 0
	for i := 0; i < len(samples); i += 2 {
		v := int(samples[i])
		if high {
			hi = max(hi, v)
			if v < hi-step*2/3 {
				high = false
				lo = v
			}
			continue
		}
		lo = min(lo, v)
		if v > lo+step*2/3 {
			high = true
			hi = v
			n++
		}
	}
	return n
}

func TestPulseTone(t *testing.T) {
	a, c := newTestAPU(t)
	io := mapIO(a)

	trigger(io, 0x80, 0xF0, 0x07)
	if !a.Enabled(Pulse1) {
		t.Fatalf("pulse1 disabled after trigger")
	}

	a.Tick(hwdefs.FrameCycles)
	a.Advance(hwdefs.FrameCycles)

	left, right := peak(c.samples)
	if left < 1000 || left != right {
		t.Fatalf("peaks = %d/%d, want a centered tone", left, right)
	}

	// 512Hz square wave during 1/59.7s: about 8.5 periods.
	if n := risingEdges(c.samples, left); n < 8 || n > 10 {
		t.Errorf("got %d rising edges, want about 9", n)
	}
}

func TestPulseDACOff(t *testing.T) {
	a, c := newTestAPU(t)
	io := mapIO(a)

	trigger(io, 0x80, 0x00, 0x07)
	if a.Enabled(Pulse1) {
		t.Fatalf("pulse1 enabled with DAC off")
	}

	a.Tick(hwdefs.FrameCycles)
	a.Advance(hwdefs.FrameCycles)
	if left, right := peak(c.samples); left != 0 || right != 0 {
		t.Fatalf("peaks = %d/%d, want silence", left, right)
	}
}

func TestPulseLength(t *testing.T) {
	a, _ := newTestAPU(t)
	io := mapIO(a)

	// Length 63 lasts a single length clock.
	io.Write8(0xFF16, 0x80|63)
	io.Write8(0xFF17, 0xF0)
	io.Write8(0xFF19, 0xC7)
	if !a.Enabled(Pulse2) {
		t.Fatalf("pulse2 disabled after trigger")
	}

	a.Tick(sequencerPeriod)
	if a.Enabled(Pulse2) {
		t.Fatalf("pulse2 still enabled after length expired")
	}

	// Without length enabled, the channel plays on.
	io.Write8(0xFF19, 0x87)
	a.Tick(10 * sequencerPeriod)
	if !a.Enabled(Pulse2) {
		t.Fatalf("pulse2 disabled with length counter off")
	}
}

func TestPulseEnvelope(t *testing.T) {
	a, _ := newTestAPU(t)
	io := mapIO(a)

	// Decrease by one every envelope clock, from volume 3.
	trigger(io, 0x80, 0x31, 0x07)
	if got := a.pulse1.env.volume; got != 3 {
		t.Fatalf("volume = %d after trigger, want 3", got)
	}

	// The envelope is clocked once every 8 sequencer steps.
	for want := uint8(2); want > 0; want-- {
		a.Tick(8 * sequencerPeriod)
		if got := a.pulse1.env.volume; got != want {
			t.Fatalf("volume = %d, want %d", got, want)
		}
	}
	a.Tick(16 * sequencerPeriod)
	if got := a.pulse1.env.volume; got != 0 {
		t.Fatalf("volume = %d, want 0", got)
	}
}

func TestPulseSweepOverflow(t *testing.T) {
	a, _ := newTestAPU(t)
	io := mapIO(a)

	// Addition sweep with shift 1 on frequency 0x7FF overflows right away.
	io.Write8(0xFF10, 0x11)
	io.Write8(0xFF12, 0xF0)
	io.Write8(0xFF13, 0xFF)
	io.Write8(0xFF14, 0x87)
	if a.Enabled(Pulse1) {
		t.Fatalf("pulse1 enabled after sweep overflow")
	}
}

func TestPulseSweep(t *testing.T) {
	a, _ := newTestAPU(t)
	io := mapIO(a)

	// Subtraction sweep, period 1, shift 1: freq -= freq/2 at every sweep clock.
	io.Write8(0xFF10, 0x19)
	io.Write8(0xFF12, 0xF0)
	io.Write8(0xFF13, 0x00)
	io.Write8(0xFF14, 0x84) // freq = 0x400

	// Sweep is clocked on steps 2 and 6.
	a.Tick(3 * sequencerPeriod)
	if got := a.pulse1.freq; got != 0x200 {
		t.Fatalf("freq = %#x after one sweep clock, want 0x200", got)
	}
	a.Tick(4 * sequencerPeriod)
	if got := a.pulse1.freq; got != 0x100 {
		t.Fatalf("freq = %#x after two sweep clocks, want 0x100", got)
	}
	if !a.Enabled(Pulse1) {
		t.Fatalf("pulse1 disabled by subtraction sweep")
	}
}

func TestPulseReset(t *testing.T) {
	a, c := newTestAPU(t)
	io := mapIO(a)

	trigger(io, 0x80, 0xF0, 0x07)
	a.Tick(1000)
	a.Reset()
	if a.Enabled(Pulse1) {
		t.Fatalf("pulse1 enabled after reset")
	}

	c.samples = nil
	a.Tick(hwdefs.FrameCycles)
	a.Advance(hwdefs.FrameCycles)
	if left, right := peak(c.samples); left != 0 || right != 0 {
		t.Errorf("peaks = %d/%d after reset, want silence", left, right)
	}
}

func TestPanningRegister(t *testing.T) {
	a, c := newTestAPU(t)
	io := mapIO(a)

	// Pulse1 on the right speaker only.
	io.Write8(0xFF25, 0x01)
	trigger(io, 0x80, 0xF0, 0x07)
	a.Tick(hwdefs.FrameCycles)
	a.Advance(hwdefs.FrameCycles)

	left, right := peak(c.samples)
	if left != 0 || right == 0 {
		t.Fatalf("peaks = %d/%d, want right only", left, right)
	}
}

func TestStatusRegister(t *testing.T) {
	a, _ := newTestAPU(t)
	io := mapIO(a)

	if got := io.Read8(0xFF26); got != 0xF0 {
		t.Fatalf("NR52 = %02X, want F0", got)
	}
	trigger(io, 0x80, 0xF0, 0x07)
	io.Write8(0xFF17, 0xF0)
	io.Write8(0xFF19, 0x87)
	if got := io.Read8(0xFF26); got != 0xF3 {
		t.Fatalf("NR52 = %02X, want F3", got)
	}

	// Frequency registers read back what was written.
	if got := io.Read8(0xFF13); got != 0 {
		t.Errorf("NR13 = %02X, want 00", got)
	}
	if got := io.Read8(0xFF14); got != 0x87 {
		t.Errorf("NR14 = %02X, want 87", got)
	}
}
