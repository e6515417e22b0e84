package midi

// Channel message status nibbles
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyPressure    uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
)

// Controller numbers used by the player and console
const (
	ControllerVolume      uint8 = 7
	ControllerAllSoundOff uint8 = 120
	ControllerResetAll    uint8 = 121
	ControllerAllNotesOff uint8 = 123
)

// NumChannels is the number of MIDI channels addressed by Silence
const NumChannels = 16

const maxData uint8 = 0x7F

// Status returns the status nibble of a channel message (0 if msg is not one)
func Status(msg []byte) uint8 {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return 0
	}
	return msg[0] & 0xF0
}

// Channel returns the 0-based channel of a channel message
func Channel(msg []byte) uint8 {
	if len(msg) == 0 {
		return 0
	}
	return msg[0] & 0x0F
}

// DataLen is the number of data bytes that follow a channel status byte.
func DataLen(status uint8) int {
	switch status & 0xF0 {
	case ProgramChange, ChannelPressure:
		return 1
	case NoteOff, NoteOn, PolyPressure, CC, PitchBend:
		return 2
	}
	return -1
}

// IsChannelMessage reports whether msg is a complete channel voice or mode
// message: a status byte in 0x80-0xEF followed by exactly the right number
// of 7-bit data bytes.
func IsChannelMessage(msg []byte) bool {
	st := Status(msg)
	if st == 0 {
		return false
	}
	if len(msg) != 1+DataLen(st) {
		return false
	}
	for _, b := range msg[1:] {
		if b > maxData {
			return false
		}
	}
	return true
}
