package emu

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"gbcore/emu/log"
)

type Config struct {
	Emulation EmulationConfig `toml:"emulation"`
	Audio     AudioConfig     `toml:"audio"`
	Debugger  DebuggerConfig  `toml:"debugger"`
	RPC       RPCConfig       `toml:"rpc"`
}

type EmulationConfig struct {
	// FrameLimit paces the emulation to the real hardware frame rate.
	FrameLimit bool `toml:"frame_limit"`

	// ForceDMG disables color mode, even for color cartridges.
	ForceDMG bool `toml:"force_dmg"`
}

type AudioConfig struct {
	SampleRate int `toml:"sample_rate"`
}

type DebuggerConfig struct {
	// Addr is the address the debugger server listens on. Empty disables the
	// debugger.
	Addr string `toml:"addr"`
}

type RPCConfig struct {
	// Port is the port of the remote control server, 0 disables it.
	Port int `toml:"port"`
}

const (
	DefaultSampleRate = 48000
	minSampleRate     = 8000
	maxSampleRate     = 192000
)

var DefaultConfig = Config{
	Emulation: EmulationConfig{FrameLimit: true},
	Audio:     AudioConfig{SampleRate: DefaultSampleRate},
}

// Check fixes invalid configuration values, falling back to defaults.
func (cfg *Config) Check() {
	if sr := cfg.Audio.SampleRate; sr < minSampleRate || sr > maxSampleRate {
		log.ModEmu.WarnZ("Invalid sample rate, using default").
			Int("rate", sr).
			Int("default", DefaultSampleRate).
			End()
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 0xFFFF {
		log.ModEmu.WarnZ("Invalid rpc port, disabling rpc").Int("port", cfg.RPC.Port).End()
		cfg.RPC.Port = 0
	}
}

const DefaultFileMode = os.FileMode(0755)

var ConfigDir = sync.OnceValue(func() string {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		log.ModEmu.Fatalf("failed to get user config directory: %v", err)
	}

	dir := filepath.Join(cfgdir, "gbcore")
	if err := os.MkdirAll(dir, DefaultFileMode); err != nil {
		log.ModEmu.Fatalf("failed to create directory %s: %v", dir, err)
	}
	return dir
})

const cfgFilename = "config.toml"

// LoadConfig loads the configuration file at path. Values missing from the
// file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return DefaultConfig, err
	}
	cfg.Check()
	return cfg, nil
}

// LoadConfigOrDefault loads the configuration from the config directory, or
// provides the default one.
func LoadConfigOrDefault() Config {
	path := filepath.Join(ConfigDir(), cfgFilename)
	cfg, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.ModEmu.WarnZ("Failed to load config, using default").
				String("path", path).
				Error("err", err).
				End()
		}
		return DefaultConfig
	}
	return cfg
}

// SaveConfig saves cfg into the config directory.
func SaveConfig(cfg Config) error {
	return SaveConfigTo(filepath.Join(ConfigDir(), cfgFilename), cfg)
}

func SaveConfigTo(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}
