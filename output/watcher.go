package output

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go-midiplay/debug"
)

// Ports is a snapshot of available outputs
type Ports struct {
	MIDI   []string
	Serial []string
}

// Equal compares two snapshots
func (p Ports) Equal(o Ports) bool {
	return slices.Equal(p.MIDI, o.MIDI) && slices.Equal(p.Serial, o.Serial)
}

// Has reports whether t is in the snapshot. Port names match by substring
// like the driver lookup; serial devices match exactly.
func (p Ports) Has(t Target) bool {
	if t.Kind == KindSerial {
		return slices.Contains(p.Serial, t.Name)
	}
	return slices.ContainsFunc(p.MIDI, func(name string) bool {
		return strings.Contains(name, t.Name)
	})
}

// Watcher polls for MIDI out ports and serial devices and reports changes
type Watcher struct {
	ports    Ports
	mu       sync.RWMutex
	events   chan Ports
	pollRate time.Duration
	timeout  time.Duration
	list     func() Ports
}

// NewWatcher creates a watcher using the registered gomidi driver and the
// serial enumerator
func NewWatcher() *Watcher {
	return &Watcher{
		events:   make(chan Ports, 4),
		pollRate: time.Second,
		timeout:  3 * time.Second,
		list:     listPorts,
	}
}

func listPorts() Ports {
	serials, err := SerialNames()
	if err != nil {
		debug.LogEvery(30, "output", "list serial: %v", err)
	}
	return Ports{MIDI: PortNames(), Serial: serials}
}

// Events delivers a snapshot every time the set of ports changes
func (w *Watcher) Events() <-chan Ports {
	return w.events
}

// Ports returns the last snapshot
func (w *Watcher) Ports() Ports {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ports
}

// Run polls until ctx is done (blocking - run in goroutine)
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()

	w.scan()

	for {
		select {
		case <-ctx.Done():
			close(w.events)
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *Watcher) scan() {
	// Enumeration goes through the OS MIDI service which can hang
	ch := make(chan Ports, 1)
	go func() {
		ch <- w.list()
	}()

	var now Ports
	select {
	case now = <-ch:
	case <-time.After(w.timeout):
		debug.Log("output", "port scan timed out")
		return
	}

	w.mu.Lock()
	changed := !now.Equal(w.ports)
	w.ports = now
	w.mu.Unlock()

	if changed {
		select {
		case w.events <- now:
		default:
		}
	}
}
