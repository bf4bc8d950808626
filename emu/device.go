package emu

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gbcore/emu/clock"
	"gbcore/emu/log"
	"gbcore/emu/signal"
	"gbcore/hw/hwdefs"
)

// ErrTerminated is returned by control operations on a terminated device.
var ErrTerminated = errors.New("device terminated")

// A Device is an emulated machine. It runs the processor on a dedicated
// goroutine, paced by a real-time clock, and can be controlled from any
// goroutine: control methods never wait for the emulation goroutine, they
// only signal it.
type Device struct {
	m     Machine
	units []unit
	clock clock.Source

	frameCycles int
	colorMode   bool

	// Signals between controllers, the clock and the emulation goroutine.
	cont       *signal.Event // resume execution
	term       *signal.Event // exit the emulation goroutine, never reset
	frameStart *signal.Event // a new frame can be emulated
	brk        *signal.Event // break requested

	// hwmu serializes hardware accesses between the emulation goroutine,
	// which holds it while executing an instruction, and Reset/Terminate.
	hwmu        sync.Mutex
	terminating atomic.Bool

	// ctlmu serializes control operations, so that the clock state always
	// matches the last one.
	ctlmu sync.Mutex

	bps    Breakpoints
	obs    observers
	timing *timing

	poweredOn  atomic.Bool
	frameLimit atomic.Bool

	unsubClock  func()
	unsubVBlank func()

	done    chan struct{} // closed when the emulation goroutine exits
	outcome error         // set before done is closed

	closeOnce sync.Once
	closeErr  error
}

// PowerUp initializes and resets the machine hardware and starts the
// emulation goroutine, halted. Call Run to start execution.
func PowerUp(m Machine, src clock.Source, cfg EmulationConfig) (*Device, error) {
	return powerUp(m, src, cfg, time.Now)
}

func powerUp(m Machine, src clock.Source, cfg EmulationConfig, now func() time.Time) (*Device, error) {
	units, err := m.units()
	if err != nil {
		return nil, fmt.Errorf("incomplete machine: %w", err)
	}
	if src == nil {
		return nil, errors.New("missing clock source")
	}

	m.Mem.LoadCartridge(m.Cart)

	for i, u := range units {
		if err := u.Initialize(); err != nil {
			for _, prev := range units[:i] {
				prev.Shutdown()
			}
			return nil, fmt.Errorf("failed to initialize %s: %w", u.name, err)
		}
		log.ModEmu.DebugZ("initialized").String("unit", u.name).End()
	}

	d := &Device{
		m:           m,
		units:       units,
		clock:       src,
		frameCycles: m.GPU.FrameCycles(),
		colorMode:   m.Cart.ColorSupport() && !cfg.ForceDMG,
		cont:        signal.New(),
		term:        signal.New(),
		frameStart:  signal.New(),
		brk:         signal.New(),
		timing:      newTiming(now),
		done:        make(chan struct{}),
	}
	if d.frameCycles <= 0 {
		d.frameCycles = hwdefs.FrameCycles
	}
	d.frameLimit.Store(cfg.FrameLimit)

	d.resetUnits()
	d.poweredOn.Store(true)

	d.unsubClock = src.Subscribe(d.onTick)
	d.unsubVBlank = m.GPU.SubscribeVBlank(d.onVBlank)

	go d.loop()

	log.ModEmu.InfoZ("Powered up").
		Bool("color", d.colorMode).
		Bool("frame_limit", cfg.FrameLimit).
		End()
	return d, nil
}

func (d *Device) resetUnits() {
	for _, u := range d.units {
		u.Reset()
	}
}

// Reset resets all hardware units. It doesn't change the execution state: a
// running device keeps running from the reset state.
func (d *Device) Reset() error {
	if d.term.IsSet() {
		return ErrTerminated
	}

	d.hwmu.Lock()
	defer d.hwmu.Unlock()

	d.resetUnits()
	log.ModEmu.InfoZ("Reset").End()
	return nil
}

// Terminate stops the emulation and shuts the hardware down. It doesn't wait
// for the emulation goroutine to exit, use Wait or Close for that.
// Terminating an already terminated device does nothing.
func (d *Device) Terminate() error {
	d.ctlmu.Lock()
	defer d.ctlmu.Unlock()

	if !d.poweredOn.CompareAndSwap(true, false) {
		return nil
	}

	d.terminating.Store(true)
	d.term.Set()
	d.clock.Stop()

	d.hwmu.Lock()
	defer d.hwmu.Unlock()

	for _, u := range d.units {
		u.Shutdown()
	}

	log.ModEmu.InfoZ("Terminated").End()
	return nil
}

// Close terminates the device, waits for the emulation goroutine to exit and
// releases the resources held by the cartridge. It must not be called from an
// Observer.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.Terminate()
		<-d.done

		d.unsubClock()
		d.unsubVBlank()

		if c, ok := d.m.Cart.(io.Closer); ok {
			d.closeErr = c.Close()
		}
	})
	return d.closeErr
}

// Wait blocks until the emulation goroutine exits and returns the termination
// outcome: nil after Terminate, a *CrashError if the emulation crashed.
func (d *Device) Wait() error {
	<-d.done
	return d.outcome
}

// Done returns a channel closed when the emulation goroutine exits.
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// Subscribe registers fn to be notified of execution events.
func (d *Device) Subscribe(fn Observer) (cancel func()) {
	return d.obs.subscribe(fn)
}

// Breakpoints returns the device breakpoints.
func (d *Device) Breakpoints() *Breakpoints {
	return &d.bps
}

func (d *Device) PoweredOn() bool { return d.poweredOn.Load() }

// ColorMode reports whether the machine runs in color mode.
func (d *Device) ColorMode() bool { return d.colorMode }

// FrameLimit reports whether execution is paced to the real frame rate.
func (d *Device) FrameLimit() bool { return d.frameLimit.Load() }

// SetFrameLimit enables or disables frame pacing. When disabled, the emulation
// runs as fast as possible.
func (d *Device) SetFrameLimit(enabled bool) {
	d.frameLimit.Store(enabled)
	log.ModEmu.InfoZ("Frame limit").Bool("enabled", enabled).End()
}

// FPS returns the number of frames emulated during the last second.
func (d *Device) FPS() float64 { return d.timing.framesPerSecond() }

// FrameDelta returns the wall-clock duration of the last emulated frame.
func (d *Device) FrameDelta() time.Duration { return d.timing.lastFrameDelta() }

// SpeedFactor returns the emulation speed relative to the real hardware, 1.0
// meaning full speed.
func (d *Device) SpeedFactor() float64 {
	nominal := float64(hwdefs.CPUClockRate * d.m.CPU.SpeedFactor())
	return d.m.CPU.CyclesPerSecond() / nominal
}

// AddLogContext implements log.ContextAdder.
func (d *Device) AddLogContext(z *log.EntryZ) {
	z.Float("fps", d.FPS())
}

// onTick is the clock handler. It must not block.
func (d *Device) onTick(now time.Time) {
	d.frameStart.Set()

	if elapsed, ok := d.timing.tick(now); ok {
		d.m.CPU.SecondElapsed(elapsed)
	}
}

func (d *Device) onVBlank() {
	d.timing.vblank()
}
