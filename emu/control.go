package emu

import "gbcore/emu/log"

// State is the execution state of a device.
type State uint8

const (
	Halted State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Halted:
		return "halted"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// State returns the current execution state. The state may have changed by
// the time the caller looks at it.
func (d *Device) State() State {
	switch {
	case d.term.IsSet():
		return Terminated
	case d.m.CPU.Running():
		return Running
	}
	return Halted
}

// Run resumes execution, until a breakpoint is hit or Break is called.
func (d *Device) Run() error {
	d.ctlmu.Lock()
	defer d.ctlmu.Unlock()

	if d.term.IsSet() {
		return ErrTerminated
	}

	// A break requested while halted must not leak into this run, it would
	// disable frame pacing.
	d.brk.Reset()
	d.m.CPU.SetBroken(false)
	d.clock.Start()
	d.cont.Set()

	log.ModEmu.DebugZ("run").End()
	return nil
}

// Break requests execution to pause. Execution pauses after the instruction
// being executed, it is signaled by a paused event.
func (d *Device) Break() error {
	d.ctlmu.Lock()
	defer d.ctlmu.Unlock()

	if d.term.IsSet() {
		return ErrTerminated
	}

	d.brk.Set()
	d.clock.Stop()
	d.cont.Reset()
	d.m.CPU.SetBroken(true)

	log.ModEmu.DebugZ("break").End()
	return nil
}

// Step executes a single instruction and pauses. If the device is running, it
// pauses after the current instruction and then executes one more.
func (d *Device) Step() error {
	d.ctlmu.Lock()
	if d.term.IsSet() {
		d.ctlmu.Unlock()
		return ErrTerminated
	}

	d.clock.Stop()
	d.m.CPU.SetBroken(true)
	// Wakes up the emulation goroutine if it's waiting for the next frame,
	// which won't come since the clock is stopped.
	d.brk.Set()
	d.cont.Set()
	d.ctlmu.Unlock()

	log.ModEmu.DebugZ("step").End()
	d.obs.emit(Event{Kind: EventStepPerformed})
	return nil
}
