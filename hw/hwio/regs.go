package hwio

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// bankReg is a register found in a bank, with its offset.
type bankReg struct {
	offset uint16
	ptr    any // *Reg8 or *Device
}

var (
	reg8Type   = reflect.TypeFor[Reg8]()
	deviceType = reflect.TypeFor[Device]()
)

func bankStruct(bank any) (reflect.Value, error) {
	v := reflect.ValueOf(bank)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("hwio: bank must be a pointer to struct, got %T", bank)
	}
	return v.Elem(), nil
}

type regTag struct {
	offset    uint16
	hasOffset bool
	reset     uint8
	rwmask    uint8
	size      int
	flags     RWFlags
	rcb, wcb  string
}

func parseTag(field, tag string) (regTag, error) {
	rt := regTag{rwmask: 0xFF}
	for _, opt := range strings.Split(tag, ",") {
		key, val, hasval := strings.Cut(opt, "=")
		num := func(bits int) (uint64, error) {
			n, err := strconv.ParseUint(val, 0, bits)
			if err != nil {
				return 0, fmt.Errorf("hwio: field %s: invalid %s: %w", field, key, err)
			}
			return n, nil
		}

		switch key {
		case "offset":
			n, err := num(16)
			if err != nil {
				return rt, err
			}
			rt.offset, rt.hasOffset = uint16(n), true
		case "reset":
			n, err := num(8)
			if err != nil {
				return rt, err
			}
			rt.reset = uint8(n)
		case "rwmask":
			n, err := num(8)
			if err != nil {
				return rt, err
			}
			rt.rwmask = uint8(n)
		case "size":
			n, err := num(16)
			if err != nil {
				return rt, err
			}
			rt.size = int(n)
		case "readonly":
			rt.flags |= ReadOnlyFlag
		case "writeonly":
			rt.flags |= WriteOnlyFlag
		case "rcb":
			rt.rcb = "Read" + strings.ToUpper(field)
			if hasval {
				rt.rcb = val
			}
		case "wcb":
			rt.wcb = "Write" + strings.ToUpper(field)
			if hasval {
				rt.wcb = val
			}
		default:
			return rt, fmt.Errorf("hwio: field %s: unknown option %q", field, key)
		}
	}
	if !rt.hasOffset {
		return rt, fmt.Errorf("hwio: field %s: missing offset", field)
	}
	return rt, nil
}

// callback returns the method of bank with the given name, which must be a
// function of type T.
func callback[T any](bank reflect.Value, name string) (T, error) {
	var zero T
	m := bank.MethodByName(name)
	if !m.IsValid() {
		return zero, fmt.Errorf("hwio: missing method %s on %s", name, bank.Type())
	}
	fn, ok := m.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("hwio: method %s has type %s, want %T", name, m.Type(), zero)
	}
	return fn, nil
}

// InitRegs initializes all the registers of bank from their "hwio" struct
// tag. Recognized options are:
//
//	offset=0x12     byte offset of the register within its bank (required).
//	reset=0x80      initial register value.
//	rwmask=0x3F     bits that can be written, all by default.
//	size=0x10       size of a Device area.
//	readonly        writes are rejected.
//	writeonly       reads are rejected.
//	rcb[=Name]      read callback, the bank method ReadFIELD by default.
//	wcb[=Name]      write callback, the bank method WriteFIELD by default.
func InitRegs(bank any) error {
	v, err := bankStruct(bank)
	if err != nil {
		return err
	}
	ptr := reflect.ValueOf(bank)

	var errs []error
	for i := range v.NumField() {
		sf := v.Type().Field(i)
		tag, ok := sf.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		rt, err := parseTag(sf.Name, tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		switch sf.Type {
		case reg8Type:
			reg := v.Field(i).Addr().Interface().(*Reg8)
			*reg = Reg8{Name: sf.Name, Value: rt.reset, RoMask: ^rt.rwmask, Flags: rt.flags}
			if rt.rcb != "" {
				reg.ReadCb, err = callback[func(uint8) uint8](ptr, rt.rcb)
				errs = append(errs, err)
			}
			if rt.wcb != "" {
				reg.WriteCb, err = callback[func(uint8, uint8)](ptr, rt.wcb)
				errs = append(errs, err)
			}
		case deviceType:
			if rt.size == 0 {
				errs = append(errs, fmt.Errorf("hwio: field %s: missing size", sf.Name))
				continue
			}
			dev := v.Field(i).Addr().Interface().(*Device)
			*dev = Device{Name: sf.Name, Size: rt.size, Flags: rt.flags}
			if rt.rcb != "" {
				dev.ReadCb, err = callback[func(uint16) uint8](ptr, rt.rcb)
				errs = append(errs, err)
			}
			if rt.wcb != "" {
				dev.WriteCb, err = callback[func(uint16, uint8)](ptr, rt.wcb)
				errs = append(errs, err)
			}
		default:
			errs = append(errs, fmt.Errorf("hwio: field %s: unsupported type %s", sf.Name, sf.Type))
		}
	}
	return errors.Join(errs...)
}

// MustInitRegs is like InitRegs but panics on error.
func MustInitRegs(bank any) {
	if err := InitRegs(bank); err != nil {
		panic(err)
	}
}

func bankGetRegs(bank any) ([]bankReg, error) {
	v, err := bankStruct(bank)
	if err != nil {
		return nil, err
	}

	var regs []bankReg
	for i := range v.NumField() {
		sf := v.Type().Field(i)
		tag, ok := sf.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		rt, err := parseTag(sf.Name, tag)
		if err != nil {
			return nil, err
		}
		regs = append(regs, bankReg{offset: rt.offset, ptr: v.Field(i).Addr().Interface()})
	}
	return regs, nil
}
