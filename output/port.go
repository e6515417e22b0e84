package output

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Port writes to a MIDI out port through the registered gomidi driver.
// The binary must import a driver (e.g. drivers/rtmididrv).
type Port struct {
	name string
	out  drivers.Out
	send func(msg gomidi.Message) error
	mu   sync.Mutex
}

// OpenPort finds an out port by name and opens it
func OpenPort(name string) (*Port, error) {
	out, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find port %q: %w", name, err)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &Port{name: out.String(), out: out, send: send}, nil
}

func (p *Port) Send(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(gomidi.Message(msg))
}

func (p *Port) Silence() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return silence(func(msg []byte) error { return p.send(gomidi.Message(msg)) })
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Close()
}

func (p *Port) String() string {
	return "port:" + p.name
}

// PortNames lists the MIDI out ports of the registered driver
func PortNames() []string {
	var names []string
	for _, out := range gomidi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}
