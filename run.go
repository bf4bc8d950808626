package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gbcore/emu"
	"gbcore/emu/clock"
	"gbcore/emu/debugger"
	"gbcore/emu/log"
	"gbcore/emu/rpc"
	"gbcore/hw/apu"
	"gbcore/hw/cart"
	"gbcore/hw/hwdefs"
	"gbcore/hw/stub"
)

// loadConfig loads the configuration file and applies the command line
// overrides.
func loadConfig(args Run) (emu.Config, error) {
	var cfg emu.Config
	if args.Config != "" {
		var err error
		if cfg, err = emu.LoadConfig(args.Config); err != nil {
			return cfg, err
		}
	} else {
		cfg = emu.LoadConfigOrDefault()
	}

	if args.NoFrameLimit {
		cfg.Emulation.FrameLimit = false
	}
	if args.Debugger != "" {
		cfg.Debugger.Addr = args.Debugger
	}
	if args.RPC != 0 {
		cfg.RPC.Port = args.RPC
	}
	cfg.Check()
	return cfg, nil
}

const statsPeriod = 5 * time.Second

// emuMain runs the emulator directly with the given rom, until it's terminated
// (by a remote controller or a signal) or crashes.
func emuMain(args Run, cfg emu.Config) error {
	c, err := cart.Open(args.RomPath)
	if err != nil {
		return fmt.Errorf("error reading ROM: %w", err)
	}

	var bps []uint16
	for _, s := range args.Breaks {
		addr, err := parseAddr(s)
		if err != nil {
			return err
		}
		bps = append(bps, addr)
	}

	audio := apu.New(cfg.Audio.SampleRate)
	if args.AudioOut != nil {
		defer args.AudioOut.Close()
		audio.SetSink(func(samples []int16) {
			if err := binary.Write(args.AudioOut, binary.LittleEndian, samples); err != nil {
				log.ModSound.WarnZ("failed to write audio samples").Error("err", err).End()
			}
		})
	}

	units := stub.NewUnits(audio)
	audio.MapIO(units.Mem.IO)
	m := emu.Machine{
		Cart:  c,
		Mem:   units.Mem,
		CPU:   units.CPU,
		GPU:   units.GPU,
		APU:   audio,
		Input: units.Input,
		Timer: units.Timer,
	}

	dev, err := emu.PowerUp(m, clock.NewTicker(hwdefs.FramePeriod), cfg.Emulation)
	if err != nil {
		return fmt.Errorf("failed to start emulator: %w", err)
	}
	defer dev.Close()
	defer log.AddContext(dev)()

	for _, addr := range bps {
		dev.Breakpoints().Set(addr, nil)
	}

	if args.CPUProfile != "" {
		f, err := os.Create(args.CPUProfile)
		checkf(err, "failed to create cpu profile file")
		checkf(pprof.StartCPUProfile(f), "failed to start cpu profile")
		defer func() {
			pprof.StopCPUProfile()
			f.Close()
			fmt.Println("CPU profile written to", args.CPUProfile)
		}()
	}

	if cfg.Debugger.Addr != "" {
		dbg := debugger.New(dev)
		if err := dbg.Listen(cfg.Debugger.Addr); err != nil {
			return err
		}
		defer dbg.Close()
	}

	if cfg.RPC.Port != 0 {
		server, err := rpc.NewServer(cfg.RPC.Port, dev)
		if err != nil {
			return fmt.Errorf("RPC error: %w", err)
		}
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(dev.Wait)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			log.ModEmu.InfoZ("Stopping emulation").End()
			return dev.Terminate()
		case <-dev.Done():
			return nil
		}
	})
	g.Go(func() error {
		reportStats(ctx, dev, units.CPU)
		return nil
	})

	if !args.Paused {
		if err := dev.Run(); err != nil {
			return err
		}
	}

	err = g.Wait()
	var ce *emu.CrashError
	if errors.As(err, &ce) && ce.Stack != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ce.Stack)
	}
	return err
}

// reportStats periodically logs emulation speed, until ctx is canceled or the
// device is terminated.
func reportStats(ctx context.Context, dev *emu.Device, cpu *stub.CPU) {
	ticker := time.NewTicker(statsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dev.Done():
			return
		case <-ticker.C:
			log.ModEmu.InfoZ("Stats").
				String("state", dev.State().String()).
				Float("speed", dev.SpeedFactor()).
				Duration("frame", dev.FrameDelta()).
				Uint("cycles", cpu.Cycles()).
				End()
		}
	}
}
