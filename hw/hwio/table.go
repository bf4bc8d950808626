// Package hwio maps I/O registers into an address space. Register banks are
// structures whose fields carry a "hwio" struct tag giving their offset within
// the bank.
package hwio

import (
	"fmt"
	"slices"

	"gbcore/emu/log"
)

// log unmapped accesses (useful for debugging but verbose, many programs
// probe unused registers)
const logUnmapped = false

type BankIO8 interface {
	Read8(addr uint16) uint8
	Write8(addr uint16, val uint8)
}

type mapping struct {
	begin, end uint16 // inclusive
	io         BankIO8
}

// Table is an address space made of mapped registers and devices. Accesses
// to unmapped addresses are forwarded to Unmapped if set, otherwise reads
// return $FF and writes are ignored.
type Table struct {
	Name     string
	Unmapped BankIO8

	maps []mapping // sorted, non overlapping
}

func NewTable(name string) *Table {
	return &Table{Name: name}
}

func (t *Table) Reset() {
	t.maps = nil
}

// MapBank maps all the registers of bank, a pointer to a structure, at addr.
// Registers must have been initialized with MustInitRegs.
func (t *Table) MapBank(addr uint16, bank any) {
	regs, err := bankGetRegs(bank)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.ptr.(type) {
		case *Reg8:
			t.MapReg8(addr+reg.offset, r)
		case *Device:
			t.MapDevice(addr+reg.offset, r)
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) UnmapBank(addr uint16, bank any) {
	regs, err := bankGetRegs(bank)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.ptr.(type) {
		case *Reg8:
			t.Unmap(addr+reg.offset, addr+reg.offset)
		case *Device:
			t.Unmap(addr+reg.offset, addr+reg.offset+uint16(r.Size)-1)
		}
	}
}

func (t *Table) MapReg8(addr uint16, io *Reg8) {
	t.mapBus8(addr, 1, io)
}

func (t *Table) MapDevice(addr uint16, io *Device) {
	log.ModHwIo.DebugZ("mapping device").
		Hex16("addr", addr).
		Hex16("size", uint16(io.Size)).
		String("area", io.Name).
		String("bus", t.Name).
		End()

	t.mapBus8(addr, uint16(io.Size), io)
}

func (t *Table) mapBus8(addr, size uint16, io BankIO8) {
	end := addr + size - 1
	if size == 0 || end < addr {
		panic(fmt.Errorf("%s: invalid mapping at $%04X, size %d", t.Name, addr, size))
	}
	t.Unmap(addr, end)

	i, _ := slices.BinarySearchFunc(t.maps, addr, func(m mapping, addr uint16) int {
		return int(m.begin) - int(addr)
	})
	t.maps = slices.Insert(t.maps, i, mapping{begin: addr, end: end, io: io})
}

// Unmap removes everything mapped between begin and end, inclusive. Mappings
// partially in the range are trimmed.
func (t *Table) Unmap(begin, end uint16) {
	maps := t.maps[:0:0]
	for _, m := range t.maps {
		if m.end < begin || m.begin > end {
			maps = append(maps, m)
			continue
		}
		if m.begin < begin {
			maps = append(maps, mapping{begin: m.begin, end: begin - 1, io: m.io})
		}
		if m.end > end {
			maps = append(maps, mapping{begin: end + 1, end: m.end, io: m.io})
		}
	}
	t.maps = maps
}

func (t *Table) search(addr uint16) BankIO8 {
	i, found := slices.BinarySearchFunc(t.maps, addr, func(m mapping, addr uint16) int {
		return int(m.begin) - int(addr)
	})
	if !found {
		if i == 0 {
			return nil
		}
		i--
	}
	if m := t.maps[i]; addr >= m.begin && addr <= m.end {
		return m.io
	}
	return nil
}

// Read8 searches in the table for the register mapped at the given address and
// forwards the read to it.
func (t *Table) Read8(addr uint16) uint8 {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Read8").
				String("name", t.Name).
				Hex16("addr", addr).
				End()
		}
		if t.Unmapped != nil {
			return t.Unmapped.Read8(addr)
		}
		return 0xFF
	}
	return io.Read8(addr)
}

func (t *Table) Write8(addr uint16, val uint8) {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write8").
				String("name", t.Name).
				Hex16("addr", addr).
				Hex8("val", val).
				End()
		}
		if t.Unmapped != nil {
			t.Unmapped.Write8(addr, val)
		}
		return
	}
	io.Write8(addr, val)
}
