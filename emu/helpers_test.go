package emu

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gbcore/emu/clock"
	"gbcore/emu/log"
	"gbcore/hw"
	"gbcore/hw/hwdefs"
)

func init() {
	log.Disable()
}

// journal records hardware lifecycle calls, across all units.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

type fakeUnit struct {
	name    string
	j       *journal
	initErr error
}

func (u *fakeUnit) Initialize() error {
	u.j.add(u.name + ".init")
	return u.initErr
}

func (u *fakeUnit) Reset()    { u.j.add(u.name + ".reset") }
func (u *fakeUnit) Shutdown() { u.j.add(u.name + ".shutdown") }

type fakeCart struct {
	fakeUnit
	color  bool
	closed atomic.Int32
}

func (c *fakeCart) ColorSupport() bool { return c.color }
func (c *fakeCart) Close() error {
	c.closed.Add(1)
	return nil
}

type fakeMem struct {
	fakeUnit
	cart hw.Cartridge
}

func (m *fakeMem) LoadCartridge(c hw.Cartridge) { m.cart = c }

type fakeGPU struct {
	fakeUnit

	mu   sync.Mutex
	subs []func()
}

func (g *fakeGPU) FrameCycles() int { return hwdefs.FrameCycles }

func (g *fakeGPU) SubscribeVBlank(fn func()) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, fn)
	idx := len(g.subs) - 1
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.subs[idx] = nil
	}
}

func (g *fakeGPU) fireVBlank() {
	g.mu.Lock()
	subs := append([]func(){}, g.subs...)
	g.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

type fakeAPU struct {
	fakeUnit

	mu       sync.Mutex
	advances []int
}

func (a *fakeAPU) Advance(cycles int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advances = append(a.advances, cycles)
}

func (a *fakeAPU) getAdvances() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.advances...)
}

// instr describes the instruction at some address of a fake program.
type instr struct {
	cycles int
	next   uint16
	err    error
	panic  any
}

const resetPC = 0x0100

// fakeCPU executes a scripted program. Addresses without an instruction in
// prog take 4 cycles and fall through to the next address.
type fakeCPU struct {
	fakeUnit
	prog    map[uint16]instr
	notrace bool

	pc      uint16 // only accessed by the emulation goroutine, or when halted
	retired atomic.Int64
	running atomic.Bool
	broken  atomic.Bool
	speed   atomic.Int32
	cps     atomic.Uint64 // float64 bits

	mu      sync.Mutex
	trace   []uint16
	elapsed []time.Duration
}

func newFakeCPU(j *journal, prog map[uint16]instr) *fakeCPU {
	cpu := &fakeCPU{fakeUnit: fakeUnit{name: "cpu", j: j}, prog: prog}
	cpu.speed.Store(1)
	return cpu
}

func (c *fakeCPU) Reset() {
	c.fakeUnit.Reset()
	c.pc = resetPC
}

func (c *fakeCPU) Step() (int, error) {
	in, ok := c.prog[c.pc]
	if !ok {
		in = instr{cycles: 4, next: c.pc + 1}
	}
	if in.panic != nil {
		panic(in.panic)
	}
	if in.err != nil {
		return 0, in.err
	}

	if !c.notrace {
		c.mu.Lock()
		c.trace = append(c.trace, c.pc)
		c.mu.Unlock()
	}

	c.pc = in.next
	c.retired.Add(1)
	return in.cycles, nil
}

func (c *fakeCPU) PC() uint16         { return c.pc }
func (c *fakeCPU) Running() bool      { return c.running.Load() }
func (c *fakeCPU) SetRunning(b bool)  { c.running.Store(b) }
func (c *fakeCPU) Broken() bool       { return c.broken.Load() }
func (c *fakeCPU) SetBroken(b bool)   { c.broken.Store(b) }
func (c *fakeCPU) SpeedFactor() int   { return int(c.speed.Load()) }
func (c *fakeCPU) setCPS(cps float64) { c.cps.Store(math.Float64bits(cps)) }
func (c *fakeCPU) CyclesPerSecond() float64 {
	return math.Float64frombits(c.cps.Load())
}

func (c *fakeCPU) SecondElapsed(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = append(c.elapsed, d)
}

func (c *fakeCPU) getTrace() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint16(nil), c.trace...)
}

func (c *fakeCPU) clearTrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = nil
}

func (c *fakeCPU) getElapsed() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.elapsed...)
}

type testMachine struct {
	j     *journal
	cart  *fakeCart
	mem   *fakeMem
	cpu   *fakeCPU
	gpu   *fakeGPU
	apu   *fakeAPU
	input *fakeUnit
	timer *fakeUnit
	clk   *clock.Manual
}

func newTestMachine(prog map[uint16]instr) *testMachine {
	j := &journal{}
	return &testMachine{
		j:     j,
		cart:  &fakeCart{fakeUnit: fakeUnit{name: "cart", j: j}},
		mem:   &fakeMem{fakeUnit: fakeUnit{name: "mem", j: j}},
		cpu:   newFakeCPU(j, prog),
		gpu:   &fakeGPU{fakeUnit: fakeUnit{name: "gpu", j: j}},
		apu:   &fakeAPU{fakeUnit: fakeUnit{name: "apu", j: j}},
		input: &fakeUnit{name: "input", j: j},
		timer: &fakeUnit{name: "timer", j: j},
		clk:   clock.NewManual(),
	}
}

func (tm *testMachine) machine() Machine {
	return Machine{
		Cart:  tm.cart,
		Mem:   tm.mem,
		CPU:   tm.cpu,
		GPU:   tm.gpu,
		APU:   tm.apu,
		Input: tm.input,
		Timer: tm.timer,
	}
}

// powerUp powers the test machine up, the device is closed at the end of the
// test.
func (tm *testMachine) powerUp(t *testing.T, cfg EmulationConfig) *Device {
	t.Helper()
	return tm.powerUpAt(t, cfg, time.Now)
}

func (tm *testMachine) powerUpAt(t *testing.T, cfg EmulationConfig, now func() time.Time) *Device {
	t.Helper()

	d, err := powerUp(tm.machine(), tm.clk, cfg, now)
	if err != nil {
		t.Fatalf("power up failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// recorder records device events.
type recorder struct {
	events chan Event
}

func record(d *Device) *recorder {
	r := &recorder{events: make(chan Event, 1<<12)}
	d.Subscribe(func(ev Event) {
		select {
		case r.events <- ev:
		default:
			panic("recorder: too many events")
		}
	})
	return r
}

const eventTimeout = 2 * time.Second

// waitFor waits for an event of the given kind, discarding other events.
func (r *recorder) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()

	timeout := time.After(eventTimeout)
	for {
		select {
		case ev := <-r.events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

// none checks that no event of the given kind is received for a short while.
func (r *recorder) none(t *testing.T, kind EventKind) {
	t.Helper()

	timeout := time.After(50 * time.Millisecond)
	for {
		select {
		case ev := <-r.events:
			if ev.Kind == kind {
				t.Fatalf("unexpected %s event: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}

// stepN executes n single steps, waiting for each of them to complete.
func stepN(t *testing.T, d *Device, r *recorder, n int) {
	t.Helper()
	for range n {
		if err := d.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
		r.waitFor(t, EventPaused)
	}
}

// fakeNow is a controllable time source.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeNow() *fakeNow { return &fakeNow{t: time.Unix(1000, 0)} }

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
	return f.t
}

var errFault = errors.New("illegal opcode")

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
