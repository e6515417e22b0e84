package output

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// Serial writes raw MIDI bytes to a serial device (USB CDC boards, DIN
// adapters).
type Serial struct {
	name string
	port serial.Port
	mu   sync.Mutex
}

// OpenSerial opens name at baud (DefaultBaud when 0)
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return &Serial{name: name, port: port}, nil
}

func (s *Serial) write(msg []byte) error {
	_, err := s.port.Write(msg)
	return err
}

func (s *Serial) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(msg)
}

func (s *Serial) Silence() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return silence(s.write)
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

func (s *Serial) String() string {
	return "serial:" + s.name
}

// SerialNames lists serial devices
func SerialNames() ([]string, error) {
	return serial.GetPortsList()
}
