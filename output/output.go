package output

import (
	"errors"
	"fmt"

	"go-midiplay/midi"
)

// Conn is an open byte destination for MIDI messages
type Conn interface {
	Send(msg []byte) error
	Silence() error
	Close() error
	String() string
}

// Kinds of output accepted by Open
const (
	KindPort   = "port"
	KindSerial = "serial"
)

// DefaultBaud is the MIDI DIN/serial rate
const DefaultBaud = 31250

// ErrNoTarget is returned by Open when no port/device name was given
var ErrNoTarget = errors.New("no output selected")

// Target describes what Open should connect to
type Target struct {
	Kind string
	Name string
	Baud int
}

// Open connects to a MIDI out port or a serial device
func Open(t Target) (Conn, error) {
	if t.Name == "" {
		return nil, ErrNoTarget
	}
	switch t.Kind {
	case KindSerial:
		return OpenSerial(t.Name, t.Baud)
	case KindPort, "":
		return OpenPort(t.Name)
	}
	return nil, fmt.Errorf("unknown output kind %q", t.Kind)
}

// silence sends all-sound-off on every channel, stopping at the first error.
// Callers hold their own lock so the burst is contiguous.
func silence(send func([]byte) error) error {
	for _, msg := range midi.Silence() {
		if err := send(msg); err != nil {
			return err
		}
	}
	return nil
}
