package midi

import "math"

// ScaleVolume rewrites a channel volume message (Bn 07 vv) so its value is
// round(vv*gain), clamped to 0-127. Rounding is half away from zero, so 127
// at gain 0.5 becomes 64. Any other message is returned unchanged. The input
// slice is never modified.
func ScaleVolume(msg []byte, gain float64) []byte {
	if len(msg) != 3 || Status(msg) != CC || msg[1] != ControllerVolume {
		return msg
	}
	switch {
	case gain < 0 || math.IsNaN(gain):
		gain = 0
	case gain > 1:
		gain = 1
	}
	v := math.Round(float64(msg[2]) * gain)
	if v < 0 {
		v = 0
	}
	if v > float64(maxData) {
		v = float64(maxData)
	}
	return []byte{msg[0], msg[1], byte(v)}
}
