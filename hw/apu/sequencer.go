package apu

// Cycles between 2 frame sequencer steps, the sequencer runs at 512Hz.
const sequencerPeriod = 8192

// sequencer is the frame sequencer, it clocks the length counters, the
// sweep unit and the volume envelopes of the channels at fixed rates.
//
//	Step   Length Ctr  Vol Env     Sweep
//	---------------------------------------
//	0      Clock       -           -
//	1      -           -           -
//	2      Clock       -           Clock
//	3      -           -           -
//	4      Clock       -           -
//	5      -           -           -
//	6      Clock       -           Clock
//	7      -           Clock       -
type sequencer struct {
	next uint32 // clock of the next step, within the frame
	step uint8
}

func (s *sequencer) reset() {
	s.next = sequencerPeriod
	s.step = 0
}

// clock performs the current step and schedules the next one.
func (s *sequencer) clock(pulses ...*pulse) {
	switch s.step {
	case 2, 6:
		for _, p := range pulses {
			if p.hasSweep {
				p.tickSweep()
			}
		}
		fallthrough
	case 0, 4:
		for _, p := range pulses {
			p.env.lenCounter.tick()
		}
	case 7:
		for _, p := range pulses {
			p.env.tick()
		}
	}

	for _, p := range pulses {
		p.timer.addOutput(p.output())
	}

	s.step = (s.step + 1) & 7
	s.next += sequencerPeriod
}

func (s *sequencer) endFrame(frameCycles uint32) {
	if s.next > frameCycles {
		s.next -= frameCycles
	} else {
		s.next = 0
	}
}
