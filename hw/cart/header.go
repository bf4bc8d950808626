package cart

import (
	"fmt"
	"strings"
)

// Header fields offsets.
const (
	offTitle    = 0x134
	offCGB      = 0x143
	offSGB      = 0x146
	offType     = 0x147
	offROMSize  = 0x148
	offRAMSize  = 0x149
	offDest     = 0x14A
	offVersion  = 0x14C
	offChecksum = 0x14D

	headerEnd = 0x150
)

type header struct {
	raw [headerEnd]byte

	romsz int
	ramsz int
}

func (hdr *header) decode(p []byte) error {
	if len(p) < headerEnd {
		return fmt.Errorf("too small, needs at least %d bytes", headerEnd)
	}
	copy(hdr.raw[:], p[:headerEnd])

	if sum := headerChecksum(p); sum != p[offChecksum] {
		return fmt.Errorf("header checksum mismatch: computed $%02X, header says $%02X", sum, p[offChecksum])
	}

	code := p[offROMSize]
	if code > 8 {
		return fmt.Errorf("unknown ROM size code $%02X", code)
	}
	hdr.romsz = (32 << 10) << code

	switch p[offRAMSize] {
	case 0, 1:
		hdr.ramsz = 0
	case 2:
		hdr.ramsz = 8 << 10
	case 3:
		hdr.ramsz = 32 << 10
	case 4:
		hdr.ramsz = 128 << 10
	case 5:
		hdr.ramsz = 64 << 10
	default:
		return fmt.Errorf("unknown RAM size code $%02X", p[offRAMSize])
	}
	if t := hdr.Type(); (t == MBC2 || t == MBC2Battery) && hdr.ramsz == 0 {
		// MBC2 has 512 half-bytes of built-in RAM.
		hdr.ramsz = 512
	}
	return nil
}

// headerChecksum computes the checksum of the header bytes from the title to
// the version number.
func headerChecksum(p []byte) uint8 {
	var sum uint8
	for _, b := range p[offTitle:offChecksum] {
		sum = sum - b - 1
	}
	return sum
}

// Title returns the game title, in upper case ASCII.
func (hdr *header) Title() string {
	title := hdr.raw[offTitle : offTitle+16]
	if hdr.raw[offCGB]&0x80 != 0 {
		// The last title byte is the CGB flag on color cartridges.
		title = title[:15]
	}
	if i := strings.IndexByte(string(title), 0); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(string(title))
}

// ColorSupport indicates whether the cartridge supports color mode.
func (hdr *header) ColorSupport() bool {
	return hdr.raw[offCGB]&0x80 != 0
}

// ColorOnly indicates whether the cartridge only works in color mode.
func (hdr *header) ColorOnly() bool {
	return hdr.raw[offCGB] == 0xC0
}

// SGBSupport indicates whether the cartridge supports Super Game Boy functions.
func (hdr *header) SGBSupport() bool {
	return hdr.raw[offSGB] == 0x03
}

func (hdr *header) Type() Type { return Type(hdr.raw[offType]) }

// ROMSize returns the size of the ROM, in bytes.
func (hdr *header) ROMSize() int { return hdr.romsz }

// RAMSize returns the size of the external RAM, in bytes.
func (hdr *header) RAMSize() int { return hdr.ramsz }

// Japanese reports whether the cartridge is sold in Japan only.
func (hdr *header) Japanese() bool { return hdr.raw[offDest] == 0 }

func (hdr *header) Version() uint8 { return hdr.raw[offVersion] }

// Type is the cartridge type, indicating which memory bank controller it
// uses and what hardware it embeds.
type Type uint8

const (
	ROMOnly          Type = 0x00
	MBC1             Type = 0x01
	MBC1RAM          Type = 0x02
	MBC1Battery      Type = 0x03
	MBC2             Type = 0x05
	MBC2Battery      Type = 0x06
	ROMRAM           Type = 0x08
	ROMRAMBattery    Type = 0x09
	MMM01            Type = 0x0B
	MMM01RAM         Type = 0x0C
	MMM01Battery     Type = 0x0D
	MBC3TimerBattery Type = 0x0F
	MBC3TimerRAMBat  Type = 0x10
	MBC3             Type = 0x11
	MBC3RAM          Type = 0x12
	MBC3Battery      Type = 0x13
	MBC5             Type = 0x19
	MBC5RAM          Type = 0x1A
	MBC5Battery      Type = 0x1B
	MBC5Rumble       Type = 0x1C
	MBC5RumbleRAM    Type = 0x1D
	MBC5RumbleBat    Type = 0x1E
	MBC6             Type = 0x20
	MBC7             Type = 0x22
	PocketCamera     Type = 0xFC
	BandaiTAMA5      Type = 0xFD
	HuC3             Type = 0xFE
	HuC1             Type = 0xFF
)

var typeNames = map[Type]string{
	ROMOnly:          "ROM ONLY",
	MBC1:             "MBC1",
	MBC1RAM:          "MBC1+RAM",
	MBC1Battery:      "MBC1+RAM+BATTERY",
	MBC2:             "MBC2",
	MBC2Battery:      "MBC2+BATTERY",
	ROMRAM:           "ROM+RAM",
	ROMRAMBattery:    "ROM+RAM+BATTERY",
	MMM01:            "MMM01",
	MMM01RAM:         "MMM01+RAM",
	MMM01Battery:     "MMM01+RAM+BATTERY",
	MBC3TimerBattery: "MBC3+TIMER+BATTERY",
	MBC3TimerRAMBat:  "MBC3+TIMER+RAM+BATTERY",
	MBC3:             "MBC3",
	MBC3RAM:          "MBC3+RAM",
	MBC3Battery:      "MBC3+RAM+BATTERY",
	MBC5:             "MBC5",
	MBC5RAM:          "MBC5+RAM",
	MBC5Battery:      "MBC5+RAM+BATTERY",
	MBC5Rumble:       "MBC5+RUMBLE",
	MBC5RumbleRAM:    "MBC5+RUMBLE+RAM",
	MBC5RumbleBat:    "MBC5+RUMBLE+RAM+BATTERY",
	MBC6:             "MBC6",
	MBC7:             "MBC7+SENSOR+RUMBLE+RAM+BATTERY",
	PocketCamera:     "POCKET CAMERA",
	BandaiTAMA5:      "BANDAI TAMA5",
	HuC3:             "HuC3",
	HuC1:             "HuC1+RAM+BATTERY",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown($%02X)", uint8(t))
}

// HasBattery reports whether the cartridge has battery-backed memory, which
// content persists across power cycles.
func (t Type) HasBattery() bool {
	switch t {
	case MBC1Battery, MBC2Battery, ROMRAMBattery, MMM01Battery,
		MBC3TimerBattery, MBC3TimerRAMBat, MBC3Battery,
		MBC5Battery, MBC5RumbleBat, MBC7, HuC1:
		return true
	}
	return false
}

// HasRAM reports whether the cartridge has external RAM.
func (t Type) HasRAM() bool {
	switch t {
	case MBC1RAM, MBC2Battery, ROMRAM, MMM01RAM, MBC3RAM, MBC5RAM, MBC5RumbleRAM:
		return true
	}
	return t.HasBattery() && t != MBC3TimerBattery
}
