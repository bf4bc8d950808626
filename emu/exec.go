package emu

import (
	"errors"
	"fmt"
	"runtime/debug"

	"gbcore/emu/log"
	"gbcore/emu/signal"
)

// A CrashError is the outcome of an emulation that stopped on a failure.
type CrashError struct {
	// Err is the error returned by the processor, or the recovered value when
	// it's an error.
	Err error

	// Value and Stack are set when the emulation panicked.
	Value any
	Stack []byte
}

func (e *CrashError) Error() string {
	if e.Err != nil {
		return "emulation crashed: " + e.Err.Error()
	}
	return fmt.Sprintf("emulation crashed: panic: %v", e.Value)
}

func (e *CrashError) Unwrap() error { return e.Err }

// loop is the emulation goroutine.
func (d *Device) loop() {
	err := d.exec()
	if err != nil {
		log.ModEmu.ErrorZ("Emulation crashed").Error("err", err).End()
		var ce *CrashError
		if errors.As(err, &ce) && ce.Stack != nil {
			log.ModEmu.DebugZ("crash stack").String("stack", string(ce.Stack)).End()
		}

		// Move to the terminated state, but leave shutting the hardware down
		// to Terminate.
		d.ctlmu.Lock()
		d.term.Set()
		d.clock.Stop()
		d.ctlmu.Unlock()
	}

	d.outcome = err
	close(d.done)

	defer func() {
		if r := recover(); r != nil {
			log.ModEmu.ErrorZ("Observer panicked on termination").String("panic", fmt.Sprint(r)).End()
		}
	}()
	d.obs.emit(Event{Kind: EventTerminated, Err: err})
}

// exec runs the execution loop until the device is terminated or a failure
// occurs. Any failure, panics included, ends up as a *CrashError.
func (d *Device) exec() (err error) {
	defer func() {
		if r := recover(); r != nil {
			ce := &CrashError{Value: r, Stack: debug.Stack()}
			if rerr, ok := r.(error); ok {
				ce.Err = rerr
			}
			err = ce
		}
	}()

	cpu := d.m.CPU
	defer cpu.SetRunning(false)

	for {
		// The terminate signal comes first, it wins over continue.
		if signal.WaitAny(d.term, d.cont) == 0 {
			return nil
		}

		cpu.SetRunning(true)
		d.cont.Reset()
		d.obs.emit(Event{Kind: EventResumed, PC: d.pc()})

		terminated, err := d.runUntilBreak()
		if err != nil {
			return &CrashError{Err: err}
		}
		if terminated {
			return nil
		}

		d.brk.Reset()
		cpu.SetRunning(false)
		d.obs.emit(Event{Kind: EventPaused, PC: d.pc()})
	}
}

// pc returns the processor program counter. Reset may change it from another
// goroutine.
func (d *Device) pc() uint16 {
	d.hwmu.Lock()
	defer d.hwmu.Unlock()
	return d.m.CPU.PC()
}

// runUntilBreak executes instructions until the processor is marked as broken,
// either by a breakpoint or by a controller. It reports whether it stopped
// because the device got terminated.
func (d *Device) runUntilBreak() (terminated bool, err error) {
	// Cycles executed since the last frame boundary. A long instruction may
	// overshoot the frame budget, the surplus is carried over to the next
	// frame of this run.
	cycles := 0
	for {
		frame, stop, err := d.execOne(&cycles)
		switch {
		case err != nil:
			return false, err
		case stop:
			return true, nil
		}

		if frame {
			if d.frameLimit.Load() {
				if signal.WaitAny(d.term, d.brk, d.frameStart) == 0 {
					return true, nil
				}
				d.frameStart.Reset()
			} else if d.term.IsSet() {
				return true, nil
			}
		}

		if d.checkBreakpoint() {
			return false, nil
		}
	}
}

// execOne executes one instruction, adding its duration to cycles, and reports
// whether a frame boundary has been crossed, in which case the audio unit has
// been advanced for the whole frame. stop is true if the device is being
// terminated, in which case no instruction has been executed.
func (d *Device) execOne(cycles *int) (frame, stop bool, err error) {
	d.hwmu.Lock()
	defer d.hwmu.Unlock()

	if d.terminating.Load() {
		return false, true, nil
	}

	cpu := d.m.CPU
	n, err := cpu.Step()
	if err != nil {
		return false, false, fmt.Errorf("processor fault at $%04X: %w", cpu.PC(), err)
	}
	*cycles += n

	speed := cpu.SpeedFactor()
	budget := d.frameCycles * speed
	if *cycles >= budget {
		d.m.APU.Advance(*cycles / speed)
		*cycles -= budget
		frame = true
	}
	return frame, false, nil
}

// checkBreakpoint marks the processor as broken if there's a breakpoint at the
// current instruction and its condition holds. It reports whether the
// processor is broken, which may also have been requested by a controller.
func (d *Device) checkBreakpoint() bool {
	d.hwmu.Lock()
	defer d.hwmu.Unlock()

	cpu := d.m.CPU
	if bp, ok := d.bps.match(cpu); ok {
		cpu.SetBroken(true)
		log.ModEmu.InfoZ("Breakpoint hit").Hex16("pc", bp.Addr).End()
	}
	return cpu.Broken()
}
