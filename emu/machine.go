package emu

import (
	"errors"

	"gbcore/hw"
)

// Machine groups the hardware units scheduled by a Device.
type Machine struct {
	Cart  hw.Cartridge
	Mem   hw.Memory
	CPU   hw.Processor
	GPU   hw.Graphics
	APU   hw.Audio
	Input hw.Component
	Timer hw.Component
}

type unit struct {
	name string
	hw.Component
}

// units returns the machine components, in initialization order. Reset and
// shutdown follow that same order.
func (m *Machine) units() ([]unit, error) {
	units := []unit{
		{"cartridge", m.Cart},
		{"memory", m.Mem},
		{"processor", m.CPU},
		{"graphics", m.GPU},
		{"audio", m.APU},
		{"input", m.Input},
		{"timer", m.Timer},
	}

	var errs []error
	for _, u := range units {
		if u.Component == nil {
			errs = append(errs, errors.New("missing "+u.name))
		}
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}
	return units, nil
}
