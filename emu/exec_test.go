package emu

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gbcore/hw"
	"gbcore/hw/hwdefs"
)

func TestStep(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: true})
	r := record(d)

	for i := range 5 {
		before := tm.cpu.retired.Load()
		if err := d.Step(); err != nil {
			t.Fatal(err)
		}
		ev := r.waitFor(t, EventPaused)

		if got := tm.cpu.retired.Load(); got != before+1 {
			t.Fatalf("step %d: retired %d instructions, want 1", i, got-before)
		}
		if !tm.cpu.Broken() {
			t.Fatalf("step %d: processor not broken after step", i)
		}
		if want := uint16(resetPC + i + 1); ev.PC != want {
			t.Fatalf("step %d: paused at $%04X, want $%04X", i, ev.PC, want)
		}
	}
	if tm.clk.Running() {
		t.Errorf("clock running after steps")
	}
}

func TestStepEvent(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	var stepped atomic.Bool
	d.Subscribe(func(ev Event) {
		if ev.Kind == EventStepPerformed {
			stepped.Store(true)
		}
	})

	if err := d.Step(); err != nil {
		t.Fatal(err)
	}

	// The step event marks the accepted request, it's delivered before Step
	// returns, whether or not the instruction has executed yet.
	if !stepped.Load() {
		t.Fatalf("step event not delivered when Step returned")
	}
	r.waitFor(t, EventStepPerformed)
}

func TestRunBreak(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: false})
	r := record(d)

	starts, stops := tm.clk.Calls()
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, EventResumed)
	if !tm.clk.Running() {
		t.Errorf("clock not started by Run")
	}
	if gotStarts, _ := tm.clk.Calls(); gotStarts != starts+1 {
		t.Errorf("Run started the clock %d times, want 1", gotStarts-starts)
	}
	eventually(t, "instructions to execute", func() bool { return tm.cpu.retired.Load() > 1000 })

	if err := d.Break(); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, EventPaused)

	if !tm.cpu.Broken() {
		t.Errorf("processor not broken after Break")
	}
	if tm.cpu.Running() {
		t.Errorf("processor still running after Break")
	}
	if tm.clk.Running() {
		t.Errorf("clock still running after Break")
	}
	if gotStarts, gotStops := tm.clk.Calls(); gotStarts != starts+1 || gotStops != stops+1 {
		t.Errorf("clock started %d and stopped %d times, want 1 and 1", gotStarts-starts, gotStops-stops)
	}
	if got := d.State(); got != Halted {
		t.Errorf("State() = %s, want %s", got, Halted)
	}

	// Halted means halted.
	n := tm.cpu.retired.Load()
	time.Sleep(20 * time.Millisecond)
	if got := tm.cpu.retired.Load(); got != n {
		t.Fatalf("%d instructions executed while halted", got-n)
	}

	// And execution can be resumed.
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, EventResumed)
	eventually(t, "execution to resume", func() bool { return tm.cpu.retired.Load() > n })
}

// loopProg is a program looping over [resetPC, resetPC+16).
func loopProg() map[uint16]instr {
	return map[uint16]instr{
		resetPC + 15: {cycles: 4, next: resetPC},
	}
}

func TestBreakpoint(t *testing.T) {
	tm := newTestMachine(loopProg())
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	d.Breakpoints().Set(resetPC+8, nil)
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}

	ev := r.waitFor(t, EventPaused)
	if ev.PC != resetPC+8 {
		t.Fatalf("paused at $%04X, want $%04X", ev.PC, resetPC+8)
	}
	if got := tm.cpu.retired.Load(); got != 8 {
		t.Fatalf("retired %d instructions, want 8", got)
	}

	// Running again goes around the loop once more.
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	ev = r.waitFor(t, EventPaused)
	if ev.PC != resetPC+8 {
		t.Fatalf("paused at $%04X, want $%04X", ev.PC, resetPC+8)
	}
	if got := tm.cpu.retired.Load(); got != 8+16 {
		t.Fatalf("retired %d instructions, want %d", got, 8+16)
	}
}

func TestConditionalBreakpoint(t *testing.T) {
	tm := newTestMachine(loopProg())
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	// Only break on the third visit.
	visits := 0
	d.Breakpoints().Set(resetPC+4, func(cpu hw.Processor) bool {
		visits++
		return visits == 3
	})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	ev := r.waitFor(t, EventPaused)
	if ev.PC != resetPC+4 {
		t.Fatalf("paused at $%04X, want $%04X", ev.PC, resetPC+4)
	}
	if visits != 3 {
		t.Fatalf("condition evaluated %d times, want 3", visits)
	}
	if got, want := tm.cpu.retired.Load(), int64(4+16*2); got != want {
		t.Fatalf("retired %d instructions, want %d", got, want)
	}
}

func TestTerminateDuringFrameWait(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: true})
	r := record(d)

	// The clock never ticks: the emulation goroutine blocks at the end of
	// the first frame.
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "first frame", func() bool { return len(tm.apu.getAdvances()) == 1 })

	n := tm.cpu.retired.Load()
	if want := int64(hwdefs.FrameCycles / 4); n != want {
		t.Fatalf("retired %d instructions in the first frame, want %d", n, want)
	}

	if err := d.Terminate(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-d.Done():
	case <-time.After(eventTimeout):
		t.Fatalf("emulation goroutine didn't exit")
	}
	if ev := r.waitFor(t, EventTerminated); ev.Err != nil {
		t.Fatalf("unexpected crash: %v", ev.Err)
	}
	if got := tm.cpu.retired.Load(); got != n {
		t.Fatalf("%d instructions executed after Terminate", got-n)
	}
	r.none(t, EventPaused)
}

func TestBreakDuringFrameWait(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: true})
	r := record(d)

	// No tick ever comes, Break alone must release the frame wait.
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "first frame", func() bool { return len(tm.apu.getAdvances()) == 1 })

	if err := d.Break(); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, EventPaused)

	if got := d.State(); got != Halted {
		t.Fatalf("State() = %s, want %s", got, Halted)
	}
	n := tm.cpu.retired.Load()
	if want := int64(hwdefs.FrameCycles / 4); n != want {
		t.Fatalf("retired %d instructions, want %d", n, want)
	}
	time.Sleep(20 * time.Millisecond)
	if got := tm.cpu.retired.Load(); got != n {
		t.Fatalf("%d instructions executed after Break", got-n)
	}
}

func TestTerminateWhileRunning(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: false})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "instructions to execute", func() bool { return tm.cpu.retired.Load() > 1000 })

	if err := d.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	// No instruction executes once the hardware has been shut down.
	n := tm.cpu.retired.Load()
	time.Sleep(10 * time.Millisecond)
	if got := tm.cpu.retired.Load(); got != n {
		t.Fatalf("%d instructions executed after termination", got-n)
	}
}

func TestProcessorFault(t *testing.T) {
	tm := newTestMachine(map[uint16]instr{
		resetPC + 5: {err: errFault},
	})
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}

	ev := r.waitFor(t, EventTerminated)
	if !errors.Is(ev.Err, errFault) {
		t.Fatalf("terminated with %v, want %v", ev.Err, errFault)
	}
	var ce *CrashError
	if !errors.As(ev.Err, &ce) {
		t.Fatalf("terminated with %T, want *CrashError", ev.Err)
	}
	if err := d.Wait(); err != ev.Err {
		t.Fatalf("Wait() = %v, want %v", err, ev.Err)
	}

	if got := tm.cpu.retired.Load(); got != 5 {
		t.Fatalf("retired %d instructions, want 5", got)
	}
	if got := d.State(); got != Terminated {
		t.Fatalf("State() = %s, want %s", got, Terminated)
	}
	if err := d.Run(); !errors.Is(err, ErrTerminated) {
		t.Fatalf("Run after crash: got %v, want %v", err, ErrTerminated)
	}
	r.none(t, EventTerminated)

	// The hardware is still powered until explicitly terminated.
	if !d.PoweredOn() {
		t.Fatalf("crashed device powered off")
	}
	tm.j.reset()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if got := tm.j.get(); len(got) != 7 {
		t.Fatalf("Close after crash: got %v, want all units shut down", got)
	}
}

func TestProcessorPanic(t *testing.T) {
	tm := newTestMachine(map[uint16]instr{
		resetPC + 2: {panic: "bad bank"},
	})
	d := tm.powerUp(t, EmulationConfig{})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}

	var ce *CrashError
	if err := d.Wait(); !errors.As(err, &ce) {
		t.Fatalf("Wait() = %v, want a *CrashError", err)
	}
	if ce.Value != "bad bank" {
		t.Errorf("crash value = %v, want %q", ce.Value, "bad bank")
	}
	if len(ce.Stack) == 0 {
		t.Errorf("crash without stack")
	}
	if tm.cpu.Running() {
		t.Errorf("processor still marked as running")
	}
}

func TestObserverPanic(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{})
	d.Subscribe(func(ev Event) {
		if ev.Kind == EventResumed {
			panic("observer failure")
		}
	})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	var ce *CrashError
	if err := d.Wait(); !errors.As(err, &ce) {
		t.Fatalf("Wait() = %v, want a *CrashError", err)
	}
	if got := tm.cpu.retired.Load(); got != 0 {
		t.Fatalf("retired %d instructions after observer crash", got)
	}
}

func TestFrameLimit(t *testing.T) {
	const window = 50 * time.Millisecond

	retired := func(limit bool) int64 {
		tm := newTestMachine(nil)
		d := tm.powerUp(t, EmulationConfig{FrameLimit: limit})
		if err := d.Run(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(window)
		d.Break()
		d.Close()
		return tm.cpu.retired.Load()
	}

	limited := retired(true)
	unlimited := retired(false)

	// Without ticks, a frame limited device can't run more than one frame.
	if frame := int64(hwdefs.FrameCycles / 4); limited > frame {
		t.Fatalf("frame limited device retired %d instructions, more than a frame (%d)", limited, frame)
	}
	if unlimited <= limited {
		t.Fatalf("unlimited: %d instructions, limited: %d, want unlimited > limited", unlimited, limited)
	}
}

func TestFramePacing(t *testing.T) {
	tm := newTestMachine(nil)
	d := tm.powerUp(t, EmulationConfig{FrameLimit: true})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}

	// Each tick allows one more frame.
	for i := 1; i <= 3; i++ {
		eventually(t, "frame end", func() bool { return len(tm.apu.getAdvances()) == i })
		if !tm.clk.Tick(time.Now()) {
			t.Fatalf("clock not running")
		}
	}
	eventually(t, "frame end", func() bool { return len(tm.apu.getAdvances()) == 4 })

	for i, adv := range tm.apu.getAdvances() {
		if adv != hwdefs.FrameCycles {
			t.Errorf("frame %d: advanced audio by %d cycles, want %d", i, adv, hwdefs.FrameCycles)
		}
	}
}

func TestFrameOvershoot(t *testing.T) {
	const frame = hwdefs.FrameCycles
	tm := newTestMachine(map[uint16]instr{
		resetPC: {cycles: 2*frame + 10, next: resetPC + 1},
	})
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	// Within a run, the surplus of a long instruction is carried over, which
	// makes the next instruction cross a frame boundary again.
	d.Breakpoints().Set(resetPC+2, nil)
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	if ev := r.waitFor(t, EventPaused); ev.PC != resetPC+2 {
		t.Fatalf("paused at $%04X, want $%04X", ev.PC, resetPC+2)
	}

	want := []int{2*frame + 10, frame + 14}
	if diff := cmp.Diff(want, tm.apu.getAdvances()); diff != "" {
		t.Fatalf("audio advances differ (-want +got):\n%s", diff)
	}
}

func TestFrameCounterRestartsOnResume(t *testing.T) {
	const frame = hwdefs.FrameCycles
	tm := newTestMachine(map[uint16]instr{
		resetPC: {cycles: frame - 4, next: resetPC + 1},
	})
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	// Each step is a run of its own, cycles don't add up across pauses.
	stepN(t, d, r, 2)
	if got := tm.apu.getAdvances(); len(got) != 0 {
		t.Fatalf("audio advanced %v across separate steps", got)
	}

	// Same for Run after a break.
	d.Breakpoints().Set(resetPC+3, nil)
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, EventPaused)
	if got := tm.apu.getAdvances(); len(got) != 0 {
		t.Fatalf("audio advanced %v across separate runs", got)
	}
}

func TestDoubleSpeed(t *testing.T) {
	const frame = hwdefs.FrameCycles
	tm := newTestMachine(map[uint16]instr{
		resetPC:     {cycles: frame, next: resetPC + 1},
		resetPC + 1: {cycles: 2*frame + 8, next: resetPC + 2},
	})
	tm.cpu.speed.Store(2)
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	stepN(t, d, r, 1)
	if got := tm.apu.getAdvances(); len(got) != 0 {
		t.Fatalf("frame ended after a single normal speed frame worth of cycles: %v", got)
	}

	// In double speed, twice as many cycles fit in a frame and audio is
	// advanced in normal speed cycles.
	stepN(t, d, r, 1)
	want := []int{frame + 4}
	if diff := cmp.Diff(want, tm.apu.getAdvances()); diff != "" {
		t.Fatalf("audio advances differ (-want +got):\n%s", diff)
	}
}

func TestStepAcrossFrameWithStoppedClock(t *testing.T) {
	tm := newTestMachine(map[uint16]instr{
		resetPC: {cycles: hwdefs.FrameCycles, next: resetPC + 1},
	})
	d := tm.powerUp(t, EmulationConfig{FrameLimit: true})
	r := record(d)

	// Step stops the clock, so no frame start will come: the step must not
	// get stuck waiting for it.
	stepN(t, d, r, 2)
	if got := tm.cpu.retired.Load(); got != 2 {
		t.Fatalf("retired %d instructions, want 2", got)
	}
}

func TestResetDeterminism(t *testing.T) {
	prog := map[uint16]instr{
		resetPC + 3: {cycles: 12, next: resetPC + 9},
		resetPC + 9: {cycles: 8, next: resetPC},
	}
	const n = 20

	tm := newTestMachine(prog)
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	stepN(t, d, r, n)
	fresh := tm.cpu.getTrace()

	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	tm.cpu.clearTrace()
	stepN(t, d, r, n)

	if diff := cmp.Diff(fresh, tm.cpu.getTrace()); diff != "" {
		t.Fatalf("trace after reset differs (-fresh +reset):\n%s", diff)
	}
}

func TestResetWhileRunning(t *testing.T) {
	tm := newTestMachine(loopProg())
	d := tm.powerUp(t, EmulationConfig{})

	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "instructions to execute", func() bool { return tm.cpu.retired.Load() > 100 })

	for range 10 {
		if err := d.Reset(); err != nil {
			t.Fatal(err)
		}
	}
	if d.State() != Running {
		t.Fatalf("Reset stopped execution")
	}
}

func TestResetAroundStep(t *testing.T) {
	tm := newTestMachine(loopProg())
	d := tm.powerUp(t, EmulationConfig{})
	r := record(d)

	// Reset races with the step being executed and the paused event reading
	// the program counter.
	for range 100 {
		if err := d.Step(); err != nil {
			t.Fatal(err)
		}
		if err := d.Reset(); err != nil {
			t.Fatal(err)
		}
		ev := r.waitFor(t, EventPaused)
		if ev.PC < resetPC || ev.PC >= resetPC+16 {
			t.Fatalf("paused at $%04X, outside of the program", ev.PC)
		}
	}
}
