// Package hw defines the contracts between the emulation core and the hardware
// units it schedules. The core never looks inside a unit: it drives lifecycle
// transitions, steps the processor and advances audio in bulk.
package hw

import "time"

// A Component is a hardware unit with a lifecycle. Initialize is called once,
// at power up, Reset any number of times afterwards and Shutdown once, at
// power off.
type Component interface {
	Initialize() error
	Reset()
	Shutdown()
}

// Processor is the CPU. Step and PC are only called from the emulation
// goroutine. All other methods may be called concurrently from controllers and
// from the clock goroutine, implementations must make them safe for that.
type Processor interface {
	Component

	// Step executes exactly one instruction and returns the number of cycles
	// it took.
	Step() (cycles int, err error)

	// PC returns the address of the next instruction to execute.
	PC() uint16

	Running() bool
	SetRunning(bool)

	// Broken reports whether execution should halt after the current
	// instruction.
	Broken() bool
	SetBroken(bool)

	// SpeedFactor is the current clock multiplier, 1 in normal speed mode.
	SpeedFactor() int

	// CyclesPerSecond is the measured number of executed cycles per
	// wall-clock second.
	CyclesPerSecond() float64

	// SecondElapsed is called about once per wall-clock second, with the
	// exact elapsed duration, so that the processor can perform real-time
	// corrections (RTC, cycle rate measurement).
	SecondElapsed(elapsed time.Duration)
}

// Graphics is the picture processing unit.
type Graphics interface {
	Component

	// FrameCycles is the number of normal speed cycles in a full frame.
	FrameCycles() int

	// SubscribeVBlank registers fn to be called at the start of each vertical
	// blanking period.
	SubscribeVBlank(fn func()) (cancel func())
}

// Audio is the sound processing unit.
type Audio interface {
	Component

	// Advance runs audio synthesis for the given number of normal speed
	// cycles.
	Advance(cycles int)
}

// Memory is the memory controller, the cartridge is mapped into the address
// space through it.
type Memory interface {
	Component
	LoadCartridge(c Cartridge)
}

// Cartridge is the game cartridge. A cartridge holding external resources, for
// example a battery backed RAM mapped to a file, also implements io.Closer;
// Close is called once the machine has been powered off.
type Cartridge interface {
	Component

	// ColorSupport reports whether the cartridge supports color mode.
	ColorSupport() bool
}
