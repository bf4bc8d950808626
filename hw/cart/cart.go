// Package cart implements a Reader for Game Boy cartridge images, and the
// battery-backed storage of their external RAM.
package cart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gbcore/emu/log"
)

type Cartridge struct {
	header
	ROM []byte // ROM is the whole cartridge image, header included.
	RAM []byte // RAM is the external RAM, allocated on Initialize.

	// SavePath is the path of the file backing the external RAM of
	// battery-backed cartridges. Empty when RAM doesn't persist.
	SavePath string
	sav      *os.File
}

// Open loads a cartridge from file. The save file of a battery-backed
// cartridge sits next to it, with the .sav extension.
func Open(path string) (*Cartridge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := new(Cartridge)
	if _, err := c.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if c.Type().HasBattery() && c.RAMSize() > 0 {
		c.SavePath = strings.TrimSuffix(path, filepath.Ext(path)) + ".sav"
	}
	return c, nil
}

// ReadFrom implements io.ReaderFrom interface
func (c *Cartridge) ReadFrom(r io.Reader) (int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	if err := c.decode(buf); err != nil {
		return 0, fmt.Errorf("failed to decode header: %w", err)
	}
	if len(buf) < c.romsz {
		return 0, fmt.Errorf("incomplete ROM: header says %d bytes, got %d", c.romsz, len(buf))
	}
	c.ROM = buf[:c.romsz]
	return int64(len(buf)), nil
}

// Initialize allocates external RAM and loads its content from the save file
// if there's one.
func (c *Cartridge) Initialize() error {
	c.RAM = make([]byte, c.RAMSize())
	if c.SavePath == "" {
		return nil
	}

	f, err := os.OpenFile(c.SavePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open save file: %w", err)
	}

	// A save file shorter than RAM (or a new one) leaves the rest zeroed.
	n, err := io.ReadFull(f, c.RAM)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return fmt.Errorf("failed to read save file: %w", err)
	}
	c.sav = f

	log.ModCart.InfoZ("Loaded save file").
		String("path", c.SavePath).
		Int("size", n).
		End()
	return nil
}

// Reset does nothing, external RAM content survives resets.
func (c *Cartridge) Reset() {}

// Shutdown flushes external RAM into the save file.
func (c *Cartridge) Shutdown() {
	if err := c.Flush(); err != nil {
		log.ModCart.ErrorZ("Failed to flush save file").
			String("path", c.SavePath).
			Error("err", err).
			End()
	}
}

// Flush writes external RAM into the save file, if any.
func (c *Cartridge) Flush() error {
	if c.sav == nil {
		return nil
	}
	if _, err := c.sav.WriteAt(c.RAM, 0); err != nil {
		return err
	}
	return c.sav.Sync()
}

// Close releases the save file.
func (c *Cartridge) Close() error {
	if c.sav == nil {
		return nil
	}
	err := c.sav.Close()
	c.sav = nil
	return err
}

// PrintInfos writes a human readable summary of the cartridge header.
func (c *Cartridge) PrintInfos(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Title:\t%s\n", c.Title())
	fmt.Fprintf(tw, "Type:\t%s\n", c.Type())
	fmt.Fprintf(tw, "ROM:\t%s\n", memSize(c.ROMSize()))
	fmt.Fprintf(tw, "RAM:\t%s\n", memSize(c.RAMSize()))
	fmt.Fprintf(tw, "Battery:\t%t\n", c.Type().HasBattery())
	fmt.Fprintf(tw, "Color:\t%s\n", colorSupport(c))
	fmt.Fprintf(tw, "SGB:\t%t\n", c.SGBSupport())
	fmt.Fprintf(tw, "Version:\t%d\n", c.Version())
	fmt.Fprintf(tw, "Japanese:\t%t\n", c.Japanese())
}

func colorSupport(c *Cartridge) string {
	switch {
	case c.ColorOnly():
		return "only"
	case c.ColorSupport():
		return "yes"
	}
	return "no"
}

func memSize(n int) string {
	switch {
	case n == 0:
		return "none"
	case n < 1<<10:
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%dKB", n>>10)
}

// ReadROM returns the ROM byte at addr, in the fixed bank area or the first
// switchable bank. Unmapped addresses read as $FF.
func (c *Cartridge) ReadROM(addr uint16) uint8 {
	if int(addr) >= len(c.ROM) || addr >= 0x8000 {
		return 0xFF
	}
	return c.ROM[addr]
}
