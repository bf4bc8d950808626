package emu

import (
	"fmt"
	"slices"
	"sync"

	"gbcore/hw"
)

// A Condition is evaluated against the processor state each time execution
// reaches a breakpoint address. It is called on the emulation goroutine.
type Condition func(cpu hw.Processor) bool

// A Breakpoint halts execution when the processor is about to execute the
// instruction at Addr and Cond holds. A nil Cond always holds.
type Breakpoint struct {
	Addr uint16
	Cond Condition
}

func (bp *Breakpoint) String() string {
	if bp.Cond != nil {
		return fmt.Sprintf("$%04X (conditional)", bp.Addr)
	}
	return fmt.Sprintf("$%04X", bp.Addr)
}

func (bp *Breakpoint) holds(cpu hw.Processor) bool {
	return bp.Cond == nil || bp.Cond(cpu)
}

// Breakpoints is a set of breakpoints, keyed by address. It's safe for
// concurrent use: controllers may modify it while the emulation goroutine
// consults it, modifications are seen at the next executed instruction.
type Breakpoints struct {
	mu  sync.RWMutex
	bps map[uint16]*Breakpoint
}

// Set adds a breakpoint at addr. If there is already one at that address, it
// is returned unmodified and cond is ignored.
func (b *Breakpoints) Set(addr uint16, cond Condition) *Breakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bp, ok := b.bps[addr]; ok {
		return bp
	}
	if b.bps == nil {
		b.bps = make(map[uint16]*Breakpoint)
	}
	bp := &Breakpoint{Addr: addr, Cond: cond}
	b.bps[addr] = bp
	return bp
}

// Remove removes the breakpoint at addr, reporting whether there was one.
func (b *Breakpoints) Remove(addr uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.bps[addr]
	delete(b.bps, addr)
	return ok
}

func (b *Breakpoints) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.bps)
}

// At returns the breakpoint at addr, if any.
func (b *Breakpoints) At(addr uint16) (*Breakpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bp, ok := b.bps[addr]
	return bp, ok
}

// All returns all breakpoints, sorted by address.
func (b *Breakpoints) All() []*Breakpoint {
	b.mu.RLock()
	all := make([]*Breakpoint, 0, len(b.bps))
	for _, bp := range b.bps {
		all = append(all, bp)
	}
	b.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Breakpoint) int { return int(a.Addr) - int(b.Addr) })
	return all
}

func (b *Breakpoints) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bps)
}

// match returns the breakpoint at the current program counter, if there's one
// and its condition holds. The condition is evaluated outside of the lock, so
// that it can itself modify breakpoints.
func (b *Breakpoints) match(cpu hw.Processor) (*Breakpoint, bool) {
	bp, ok := b.At(cpu.PC())
	if !ok || !bp.holds(cpu) {
		return nil, false
	}
	return bp, true
}
