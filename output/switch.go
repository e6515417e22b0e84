package output

import (
	"sync"

	"go-midiplay/debug"
)

// Switch forwards to whichever Conn is connected. With nothing connected,
// sends are dropped without error so playback timing carries on.
type Switch struct {
	mu   sync.RWMutex
	conn Conn
}

// NewSwitch returns a switch connected to conn (which may be nil)
func NewSwitch(conn Conn) *Switch {
	return &Switch{conn: conn}
}

// Connect replaces the current connection, closing the old one
func (s *Switch) Connect(conn Conn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Silence()
		if err := old.Close(); err != nil {
			debug.Log("output", "close %s: %v", old, err)
		}
	}
	if conn != nil {
		debug.Log("output", "connected %s", conn)
	}
}

// Disconnect closes the current connection
func (s *Switch) Disconnect() {
	s.Connect(nil)
}

// Connected reports the current target name, or "" when disconnected
func (s *Switch) Connected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.String()
}

func (s *Switch) current() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Switch) Send(msg []byte) error {
	if c := s.current(); c != nil {
		return c.Send(msg)
	}
	return nil
}

func (s *Switch) Silence() error {
	if c := s.current(); c != nil {
		return c.Silence()
	}
	return nil
}

// Close disconnects; the switch stays usable
func (s *Switch) Close() error {
	s.Disconnect()
	return nil
}

func (s *Switch) String() string {
	if name := s.Connected(); name != "" {
		return name
	}
	return "disconnected"
}

// Follow reconciles the switch with a port snapshot: it disconnects when t
// vanishes and reopens t when it comes back. It reports what changed, or ""
// when nothing did.
func (s *Switch) Follow(t Target, p Ports, open func(Target) (Conn, error)) string {
	if t.Name == "" {
		return ""
	}
	present := p.Has(t)
	connected := s.Connected() != ""

	switch {
	case connected && !present:
		s.Disconnect()
		return "lost " + t.Name
	case !connected && present:
		conn, err := open(t)
		if err != nil {
			debug.Log("output", "reconnect %s: %v", t.Name, err)
			return ""
		}
		s.Connect(conn)
		return "connected " + conn.String()
	}
	return ""
}
