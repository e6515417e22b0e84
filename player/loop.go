package player

import (
	"runtime"
	"sync"
	"time"

	"go-midiplay/debug"
	"go-midiplay/midi"
)

// loop is the handle of one pacing goroutine
type loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newLoop() *loop {
	return &loop{stop: make(chan struct{}), done: make(chan struct{})}
}

func (l *loop) signal() {
	l.once.Do(func() { close(l.stop) })
}

func (l *loop) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// check is what the loop reads from shared state at each check point
type check struct {
	gate     <-chan struct{} // non-nil while paused
	pausedAt time.Time
	seek     bool
	seekTo   time.Duration
	gain     float64
}

func (t *Transport) checkpoint() check {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := check{gain: t.gain}
	if t.state == Paused {
		c.gate = t.resume
		c.pausedAt = t.pausedAt
		return c
	}
	if t.seeking {
		c.seek = true
		c.seekTo = t.seekTo
		t.seeking = false
	}
	return c
}

type ending int

const (
	endRetry ending = iota
	endStopped
	endFinished
)

// finish runs when every event has been sent. A pause or seek that arrived
// after the last check point sends the loop back around.
func (t *Transport) finish(l *loop) ending {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l.stopped() {
		return endStopped
	}
	if t.state == Paused || t.seeking {
		return endRetry
	}
	t.state = Stopped
	t.position = 0
	l.signal()
	return endFinished
}

// spawn runs the pacing loop, then reports completion. done is closed before
// OnFinished so the callback may start the next song.
func (t *Transport) spawn(l *loop) {
	finished := t.guard(l)
	close(l.done)

	if !finished {
		return
	}
	t.mu.Lock()
	cb := t.onFinished
	t.mu.Unlock()

	debug.Log("player", "finished")
	if cb != nil {
		cb()
	}
}

// guard turns a panic in the loop (or the sink) into a stop
func (t *Transport) guard(l *loop) (finished bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		debug.Log("player", "pacing loop panic: %v", r)

		t.mu.Lock()
		if t.loop == l && !l.stopped() {
			t.halt()
		}
		l.signal()
		t.mu.Unlock()

		func() {
			defer func() { recover() }()
			t.silence()
		}()
		finished = false
	}()

	return t.run(l)
}

// run emits events at their scheduled times. Timing is anchored to a
// monotonic reference (ref = now - position) so sleep overshoot never
// accumulates. Every wait is capped at one quantum, which bounds how late
// stop, pause and seek are noticed.
func (t *Transport) run(l *loop) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.mu.Lock()
	seq := t.song.Events
	dur := t.song.Duration
	pos := t.position
	t.mu.Unlock()

	idx := seq.Index(pos)
	ref := time.Now().Add(-pos)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if l.stopped() {
			t.silence()
			return false
		}

		c := t.checkpoint()

		if c.gate != nil {
			held := c.pausedAt.Sub(ref)
			select {
			case <-c.gate:
			case <-l.stop:
				t.silence()
				return false
			}
			ref = time.Now().Add(-held)
			continue
		}

		if c.seek {
			idx = seq.Index(c.seekTo)
			ref = time.Now().Add(-c.seekTo)
			t.silence()
			debug.Log("player", "seek applied: %v -> event %d", c.seekTo, idx)
			continue
		}

		if idx >= len(seq) {
			switch t.finish(l) {
			case endFinished:
				t.silence()
				return true
			case endStopped:
				t.silence()
				return false
			}
			continue
		}

		ev := seq[idx]
		if wait := ev.At - time.Since(ref); wait > 0 {
			timer.Reset(min(wait, t.quantum))
			select {
			case <-l.stop:
				t.silence()
				return false
			case <-timer.C:
			}
			continue
		}

		if l.stopped() {
			continue
		}
		t.send(midi.ScaleVolume(ev.Msg, c.gain))

		t.mu.Lock()
		if !l.stopped() {
			t.position = ev.At
		}
		cb := t.onPosition
		t.mu.Unlock()

		if cb != nil {
			cb(ev.At, dur)
		}
		idx++
	}
}
