// Package stub provides inert hardware units. They implement the unit
// contracts with just enough behavior to drive a device: the processor walks
// the cartridge ROM and the graphics unit signals vertical blanks at the
// right pace.
package stub

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gbcore/emu/log"
	"gbcore/hw"
	"gbcore/hw/hwdefs"
	"gbcore/hw/hwio"
)

// Unit is a hardware unit that only logs its lifecycle transitions.
type Unit struct {
	Name string
	mod  log.Module
}

func NewUnit(name string, mod log.Module) *Unit {
	return &Unit{Name: name, mod: mod}
}

func (u *Unit) Initialize() error {
	u.mod.DebugZ("initialize").String("unit", u.Name).End()
	return nil
}

func (u *Unit) Reset()    { u.mod.DebugZ("reset").String("unit", u.Name).End() }
func (u *Unit) Shutdown() { u.mod.DebugZ("shutdown").String("unit", u.Name).End() }

type romReader interface {
	ReadROM(addr uint16) uint8
}

// Memory maps the cartridge ROM and the I/O registers, $FF00-$FFFF. Other
// addresses read as $FF and ignore writes.
type Memory struct {
	Unit
	IO *hwio.Table

	cart hw.Cartridge
	rom  romReader
}

func NewMemory() *Memory {
	return &Memory{
		Unit: Unit{Name: "memory", mod: log.ModMem},
		IO:   hwio.NewTable("io"),
	}
}

func (m *Memory) LoadCartridge(c hw.Cartridge) {
	m.cart = c
	m.rom, _ = c.(romReader)
}

func (m *Memory) Read8(addr uint16) uint8 {
	switch {
	case addr >= 0xFF00:
		return m.IO.Read8(addr)
	case m.rom == nil || addr >= 0x8000:
		return 0xFF
	}
	return m.rom.ReadROM(addr)
}

func (m *Memory) Write8(addr uint16, val uint8) {
	if addr >= 0xFF00 {
		m.IO.Write8(addr, val)
	}
}

func (m *Memory) Read16(addr uint16) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// A Clocked unit is driven by the processor, in normal speed cycles.
type Clocked interface {
	Tick(cycles int)
}

const (
	opNOP  = 0x00
	opLDA  = 0x3E // LD A,n
	opJP   = 0xC3
	opLDHA = 0xE0 // LDH (n),A
)

const entryPoint = 0x0100

// CPU is a processor executing NOPs. It follows absolute jumps, so that it
// walks the cartridge ROM from its entry point, like a real program would, and
// it can load the accumulator and store it into I/O registers.
type CPU struct {
	Unit
	mem     *Memory
	clocked []Clocked

	pc uint16
	a  uint8

	running atomic.Bool
	broken  atomic.Bool
	speed   atomic.Int32

	cycles atomic.Int64  // executed since the last measurement
	cps    atomic.Uint64 // measured cycles per second, float64 bits
	total  atomic.Uint64 // cycles executed since reset
}

// NewCPU returns a processor reading its program from mem and clocking the
// given units.
func NewCPU(mem *Memory, clocked ...Clocked) *CPU {
	cpu := &CPU{
		Unit:    Unit{Name: "processor", mod: log.ModCPU},
		mem:     mem,
		clocked: clocked,
	}
	cpu.speed.Store(int32(hwdefs.NormalSpeed))
	return cpu
}

func (c *CPU) Reset() {
	c.Unit.Reset()
	c.pc = entryPoint
	c.a = 0
	c.speed.Store(int32(hwdefs.NormalSpeed))
	c.cycles.Store(0)
	c.total.Store(0)
}

func (c *CPU) Step() (int, error) {
	n := 4
	switch c.mem.Read8(c.pc) {
	case opJP:
		n = 16
		c.pc = c.mem.Read16(c.pc + 1)
	case opLDA:
		n = 8
		c.a = c.mem.Read8(c.pc + 1)
		c.advance(2)
	case opLDHA:
		n = 12
		c.mem.Write8(0xFF00|uint16(c.mem.Read8(c.pc+1)), c.a)
		c.advance(2)
	default:
		c.advance(1)
	}

	c.cycles.Add(int64(n))
	c.total.Add(uint64(n))

	speed := int(c.speed.Load())
	for _, u := range c.clocked {
		u.Tick(n / speed)
	}
	return n, nil
}

func (c *CPU) advance(n uint16) {
	c.pc += n
	if c.pc >= 0x8000 {
		c.pc = entryPoint
	}
}

func (c *CPU) PC() uint16        { return c.pc }
func (c *CPU) Running() bool     { return c.running.Load() }
func (c *CPU) SetRunning(b bool) { c.running.Store(b) }
func (c *CPU) Broken() bool      { return c.broken.Load() }
func (c *CPU) SetBroken(b bool)  { c.broken.Store(b) }
func (c *CPU) SpeedFactor() int  { return int(c.speed.Load()) }

func (c *CPU) SetSpeed(s hwdefs.SpeedMode) {
	c.speed.Store(int32(s))
	c.mod.InfoZ("Speed switch").Stringer("speed", s).End()
}

// Cycles returns the number of cycles executed since the last reset.
func (c *CPU) Cycles() uint64 { return c.total.Load() }

func (c *CPU) CyclesPerSecond() float64 {
	return math.Float64frombits(c.cps.Load())
}

func (c *CPU) SecondElapsed(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	n := c.cycles.Swap(0)
	c.cps.Store(math.Float64bits(float64(n) / elapsed.Seconds()))
}

// GPU signals the start of vertical blanking once per frame.
type GPU struct {
	Unit

	mu     sync.Mutex
	subs   map[int]func()
	nextID int

	cycles int // within the current frame
	frames atomic.Uint64
}

func NewGPU() *GPU {
	return &GPU{
		Unit: Unit{Name: "graphics", mod: log.ModPPU},
		subs: make(map[int]func()),
	}
}

func (g *GPU) Reset() {
	g.Unit.Reset()
	g.cycles = 0
	g.frames.Store(0)
}

func (g *GPU) FrameCycles() int { return hwdefs.FrameCycles }

// Frames returns the number of frames since the last reset.
func (g *GPU) Frames() uint64 { return g.frames.Load() }

func (g *GPU) SubscribeVBlank(fn func()) (cancel func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *GPU) Tick(cycles int) {
	g.cycles += cycles
	for g.cycles >= hwdefs.FrameCycles {
		g.cycles -= hwdefs.FrameCycles
		g.vblank()
	}
}

func (g *GPU) vblank() {
	g.frames.Add(1)

	g.mu.Lock()
	subs := make([]func(), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Units is a full set of stub units, built around a memory controller.
type Units struct {
	Mem   *Memory
	CPU   *CPU
	GPU   *GPU
	Input *Unit
	Timer *Unit
}

// NewUnits returns a set of stub units. The processor clocks the graphics
// unit and the provided units.
func NewUnits(clocked ...Clocked) *Units {
	u := &Units{
		Mem:   NewMemory(),
		GPU:   NewGPU(),
		Input: NewUnit("input", log.ModInput),
		Timer: NewUnit("timer", log.ModTimer),
	}
	u.CPU = NewCPU(u.Mem, append([]Clocked{u.GPU}, clocked...)...)
	return u
}
