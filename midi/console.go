package midi

// Builders for the manual channel console. Channels are 0-based and
// clamped to 0-15, data bytes to 0-127.

func status(kind, ch uint8) byte {
	if ch > NumChannels-1 {
		ch = NumChannels - 1
	}
	return kind | ch
}

func data(v uint8) byte {
	if v > maxData {
		return maxData
	}
	return v
}

// ControlChange builds Bn cc vv
func ControlChange(ch, controller, value uint8) []byte {
	return []byte{status(CC, ch), data(controller), data(value)}
}

// Program builds Cn pp
func Program(ch, program uint8) []byte {
	return []byte{status(ProgramChange, ch), data(program)}
}

// Note builds a note-on, or a note-off when velocity is 0
func Note(ch, key, velocity uint8) []byte {
	if velocity == 0 {
		return []byte{status(NoteOff, ch), data(key), 0}
	}
	return []byte{status(NoteOn, ch), data(key), data(velocity)}
}

// ChannelVolume builds a CC#7 message
func ChannelVolume(ch, value uint8) []byte {
	return ControlChange(ch, ControllerVolume, value)
}

// AllSoundOff builds CC#120 for one channel
func AllSoundOff(ch uint8) []byte {
	return ControlChange(ch, ControllerAllSoundOff, 0)
}

// ResetAllControllers builds CC#121 for one channel
func ResetAllControllers(ch uint8) []byte {
	return ControlChange(ch, ControllerResetAll, 0)
}

// Silence returns an all-sound-off message for each of the 16 channels.
func Silence() [][]byte {
	out := make([][]byte, NumChannels)
	for ch := range out {
		out[ch] = AllSoundOff(uint8(ch))
	}
	return out
}
