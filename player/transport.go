package player

import (
	"sync"
	"time"

	"go-midiplay/debug"
	"go-midiplay/song"
)

// State of the transport
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

// Sink receives outgoing MIDI bytes. Implementations serialize their own
// sends; errors are logged by the transport and otherwise ignored.
type Sink interface {
	Send(msg []byte) error
	Silence() error
}

// DefaultQuantum bounds how long the pacing loop sleeps between checks of
// stop, pause and seek.
const DefaultQuantum = 5 * time.Millisecond

// Transport plays one song at a time to a sink.
//
// Control methods may be called from any goroutine. Callbacks run on the
// pacing goroutine: OnPosition must not block and must not call Play after
// Stop (Play waits for the old loop to exit). OnFinished runs after the loop
// has exited, so it may Load and Play the next song directly.
type Transport struct {
	sink    Sink
	quantum time.Duration

	mu       sync.Mutex
	song     *song.Song
	position time.Duration
	state    State
	seekTo   time.Duration
	seeking  bool
	gain     float64
	pausedAt time.Time
	resume   chan struct{} // open while paused
	loop     *loop

	onPosition func(pos, dur time.Duration)
	onFinished func()
}

// Option configures a Transport
type Option func(*Transport)

// WithQuantum sets the pacing loop's check interval
func WithQuantum(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.quantum = d
		}
	}
}

// WithOnPosition sets the callback invoked after every sent event
func WithOnPosition(fn func(pos, dur time.Duration)) Option {
	return func(t *Transport) { t.onPosition = fn }
}

// WithOnFinished sets the callback invoked when a song plays to the end
func WithOnFinished(fn func()) Option {
	return func(t *Transport) { t.onFinished = fn }
}

// New creates a stopped transport with nothing loaded and full volume
func New(sink Sink, opts ...Option) *Transport {
	t := &Transport{
		sink:    sink,
		quantum: DefaultQuantum,
		song:    &song.Song{},
		gain:    1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetOnPosition replaces the position callback
func (t *Transport) SetOnPosition(fn func(pos, dur time.Duration)) {
	t.mu.Lock()
	t.onPosition = fn
	t.mu.Unlock()
}

// SetOnFinished replaces the finished callback
func (t *Transport) SetOnFinished(fn func()) {
	t.mu.Lock()
	t.onFinished = fn
	t.mu.Unlock()
}

// Load reads and flattens a file, then replaces the current song. On error
// the current song stays loaded and the error is a *song.LoadError.
func (t *Transport) Load(path string) (time.Duration, error) {
	s, err := song.ReadFile(path)
	if err != nil {
		debug.Log("player", "load failed: %v", err)
		return 0, err
	}
	return t.LoadSong(s), nil
}

// LoadSong stops playback and installs s at position 0. It does not start
// playback.
func (t *Transport) LoadSong(s *song.Song) time.Duration {
	if s == nil {
		s = &song.Song{}
	}
	t.mu.Lock()
	wasActive := t.halt()
	t.song = s
	t.mu.Unlock()

	if wasActive {
		t.silence()
	}
	debug.Log("player", "loaded %s (%d events, %v)", s.Path, len(s.Events), s.Duration)
	return s.Duration
}

// halt signals the loop, clears pending seeks and resets to Stopped at 0.
// It reports whether playback was active. Expects mu to be held.
func (t *Transport) halt() bool {
	active := t.state != Stopped
	if t.loop != nil {
		t.loop.signal()
	}
	t.state = Stopped
	t.position = 0
	t.seeking = false
	t.resume = nil
	return active
}

// Play starts from the current position, or resumes when paused
func (t *Transport) Play() {
	for {
		t.mu.Lock()
		switch t.state {
		case Playing:
			t.mu.Unlock()
			return
		case Paused:
			t.state = Playing
			close(t.resume)
			t.resume = nil
			t.mu.Unlock()
			debug.Log("player", "resume")
			return
		}

		// At most one loop: let a stopping loop finish before starting anew
		if prev := t.loop; prev != nil && !prev.exited() {
			t.mu.Unlock()
			<-prev.done
			continue
		}

		l := newLoop()
		t.loop = l
		t.state = Playing
		t.mu.Unlock()

		debug.Log("player", "play")
		go t.spawn(l)
		return
	}
}

// Pause holds the playhead; Play resumes from the first unsent event
func (t *Transport) Pause() {
	t.mu.Lock()
	if t.state != Playing {
		t.mu.Unlock()
		return
	}
	t.state = Paused
	t.pausedAt = time.Now()
	t.resume = make(chan struct{})
	t.mu.Unlock()

	debug.Log("player", "pause")
	t.silence()
}

// Stop ends playback and rewinds to 0. Safe to call repeatedly.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.halt()
	t.mu.Unlock()

	t.silence()
}

// Skip ends playback like Stop without firing OnFinished, so the caller can
// start the next song right away. The exiting loop emits silence.
func (t *Transport) Skip() {
	t.mu.Lock()
	active := t.halt()
	t.mu.Unlock()

	debug.Log("player", "skip")
	if !active {
		t.silence()
	}
}

// Seek moves the playhead, clamped to the song. A running loop picks it up
// within one quantum.
func (t *Transport) Seek(d time.Duration) {
	t.mu.Lock()
	if d < 0 {
		d = 0
	}
	if d > t.song.Duration {
		d = t.song.Duration
	}
	t.seekTo = d
	t.seeking = true
	if t.state != Playing {
		t.position = d
	}
	t.mu.Unlock()
	debug.Log("player", "seek %v", d)
}

// Rewind seeks to the start
func (t *Transport) Rewind() {
	t.Seek(0)
}

// SetVolume sets the gain applied to channel volume messages, clamped to
// [0,1]. Takes effect from the next event sent.
func (t *Transport) SetVolume(g float64) {
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	t.mu.Lock()
	t.gain = g
	t.mu.Unlock()
}

func (t *Transport) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gain
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *Transport) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.song.Duration
}

// Song returns the loaded song (never nil)
func (t *Transport) Song() *song.Song {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.song
}

// Silence sends all-sound-off on every channel
func (t *Transport) Silence() {
	t.silence()
}

func (t *Transport) silence() {
	if err := t.sink.Silence(); err != nil {
		debug.LogEvery(50, "player", "silence: %v", err)
	}
}

func (t *Transport) send(msg []byte) {
	if err := t.sink.Send(msg); err != nil {
		debug.LogEvery(50, "player", "send % X: %v", msg, err)
	}
}
