package apu

// Channel identifies a sound channel.
type Channel uint8

const (
	Pulse1 Channel = iota
	Pulse2
	Wave
	Noise

	NumChannels = 4
)

var channelNames = [NumChannels]string{"pulse1", "pulse2", "wave", "noise"}

func (ch Channel) String() string {
	if int(ch) < len(channelNames) {
		return channelNames[ch]
	}
	return "unknown"
}
