package hwdefs

import (
	"strconv"
	"time"
)

const (
	// CPUClockRate is the processor clock rate, in cycles per second, in
	// normal speed mode.
	CPUClockRate = 4194304

	// FrameCycles is the number of processor cycles (normal speed) per video
	// frame, that is 154 scanlines of 456 cycles each.
	FrameCycles = 70224

	// FrameRate is the number of video frames per second.
	FrameRate = float64(CPUClockRate) / FrameCycles

	// FramePeriod is the wall-clock duration of a single video frame.
	FramePeriod = time.Second * FrameCycles / CPUClockRate
)

// SpeedMode is the processor speed multiplier. Color models can switch to
// double speed, in which case twice as many cycles fit in a frame.
type SpeedMode int

const (
	NormalSpeed SpeedMode = 1
	DoubleSpeed SpeedMode = 2
)

func (s SpeedMode) String() string {
	switch s {
	case NormalSpeed:
		return "normal"
	case DoubleSpeed:
		return "double"
	}
	return "speed(" + strconv.Itoa(int(s)) + ")"
}
