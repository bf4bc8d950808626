package log

import "sync/atomic"

type ModuleMask uint64
type Module uint

const (
	ModuleMaskAll ModuleMask = 0xFFFFFFFFFFFFFFFF
)

// Predefined modules, one per hardware unit plus the emulation core. Packages
// outside of the hardware layer (debugger, rpc) register theirs with
// NewModule().
const (
	ModEmu Module = iota + 1
	ModCPU
	ModMem
	ModPPU
	ModSound
	ModInput
	ModTimer
	ModCart
	ModClock
	ModHwIo

	endStandardMods
)

var modCount = endStandardMods

var modDebugMask atomic.Uint64

var modNames = []string{
	"<error>", "emu", "cpu", "mem", "ppu", "sound", "input", "timer", "cart", "clock", "hwio",
}

// NewModule registers a new logging module. It must be called during package
// initialization.
func NewModule(name string) Module {
	mod := modCount
	modCount++
	modNames = append(modNames, name)
	return mod
}

func ModuleByName(name string) (Module, bool) {
	for idx, s := range modNames {
		if idx != 0 && s == name {
			return Module(idx), true
		}
	}
	return Module(0xFFFFFFFF), false
}

// ModuleNames returns the names of all registered modules.
func ModuleNames() []string {
	return append([]string(nil), modNames[1:]...)
}

func EnableDebugModules(mask ModuleMask) {
	for {
		old := modDebugMask.Load()
		if modDebugMask.CompareAndSwap(old, old|uint64(mask)) {
			return
		}
	}
}

func DisableDebugModules(mask ModuleMask) {
	for {
		old := modDebugMask.Load()
		if modDebugMask.CompareAndSwap(old, old&^uint64(mask)) {
			return
		}
	}
}

func (mod Module) String() string {
	if int(mod) < len(modNames) {
		return modNames[mod]
	}
	return modNames[0]
}

func (mod Module) Mask() ModuleMask {
	return 1 << ModuleMask(mod)
}

// Enabled reports whether mod logs at the given level. Warnings and errors are
// always logged, unless logging has been disabled altogether.
func (mod Module) Enabled(level Level) bool {
	if disabled.Load() {
		return false
	}
	return level <= WarnLevel || ModuleMask(modDebugMask.Load())&mod.Mask() != 0
}

func (mod Module) WithFields(fields Fields) Entry {
	return Entry{mod: mod}.WithFields(fields)
}

func (mod Module) WithField(key string, value any) Entry {
	return Entry{mod: mod}.WithField(key, value)
}

// printf-like family

func (mod Module) Debugf(format string, args ...any) {
	Entry{mod: mod}.Debugf(format, args...)
}

func (mod Module) Infof(format string, args ...any) {
	Entry{mod: mod}.Infof(format, args...)
}

func (mod Module) Warnf(format string, args ...any) {
	Entry{mod: mod}.Warnf(format, args...)
}

func (mod Module) Errorf(format string, args ...any) {
	Entry{mod: mod}.Errorf(format, args...)
}

func (mod Module) Fatalf(format string, args ...any) {
	Entry{mod: mod}.Fatalf(format, args...)
}

// Structured builders. They return nil when the level is disabled for this
// module, EntryZ methods are all no-ops on a nil receiver.

func (mod Module) logz(lvl Level, msg string) *EntryZ {
	// Fatal and panic entries are always built, they must stop the program
	// even when logging is disabled.
	if lvl <= FatalLevel || mod.Enabled(lvl) {
		e := NewEntryZ()
		e.lvl = lvl
		e.msg = msg
		e.mod = mod
		return e
	}
	return nil
}

func (mod Module) DebugZ(msg string) *EntryZ { return mod.logz(DebugLevel, msg) }
func (mod Module) InfoZ(msg string) *EntryZ  { return mod.logz(InfoLevel, msg) }
func (mod Module) WarnZ(msg string) *EntryZ  { return mod.logz(WarnLevel, msg) }
func (mod Module) ErrorZ(msg string) *EntryZ { return mod.logz(ErrorLevel, msg) }
func (mod Module) FatalZ(msg string) *EntryZ { return mod.logz(FatalLevel, msg) }
func (mod Module) PanicZ(msg string) *EntryZ { return mod.logz(PanicLevel, msg) }
