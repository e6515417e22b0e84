package player

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-midiplay/song"
)

type recordSink struct {
	mu       sync.Mutex
	sent     [][]byte
	silences int
	panicOn  int // panic on the n-th send (1-based), 0 = never
}

func (r *recordSink) Send(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	if r.panicOn > 0 && len(r.sent) == r.panicOn {
		panic("sink exploded")
	}
	return nil
}

func (r *recordSink) Silence() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silences++
	return nil
}

func (r *recordSink) keys() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, m := range r.sent {
		out = append(out, m[1])
	}
	return out
}

func (r *recordSink) silenceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silences
}

// evenly spaced note-ons; key i is scheduled at i*step
func testSong(n int, step time.Duration) *song.Song {
	seq := make(song.Sequence, n)
	for i := range seq {
		seq[i] = song.Event{At: time.Duration(i) * step, Msg: []byte{0x90, byte(i), 100}}
	}
	return &song.Song{Path: "test.mid", Events: seq, Duration: seq.Duration()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayToCompletion(t *testing.T) {
	sink := &recordSink{}
	type tick struct {
		pos time.Duration
		at  time.Duration
	}
	var (
		mu       sync.Mutex
		ticks    []tick
		finished int
	)
	start := time.Now()
	tr := New(sink,
		WithQuantum(time.Millisecond),
		WithOnPosition(func(pos, dur time.Duration) {
			mu.Lock()
			ticks = append(ticks, tick{pos, time.Since(start)})
			mu.Unlock()
			if dur != time.Second {
				t.Errorf("duration %v, want 1s", dur)
			}
		}),
		WithOnFinished(func() {
			mu.Lock()
			finished++
			mu.Unlock()
		}),
	)
	if d := tr.LoadSong(testSong(3, 500*time.Millisecond)); d != time.Second {
		t.Fatalf("LoadSong duration %v", d)
	}
	start = time.Now()
	tr.Play()

	waitFor(t, "finish", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return finished == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 {
		t.Fatalf("got %d position callbacks, want 3", len(ticks))
	}
	for i, tk := range ticks {
		want := time.Duration(i) * 500 * time.Millisecond
		if tk.pos != want {
			t.Errorf("callback %d position %v, want %v", i, tk.pos, want)
		}
		if late := tk.at - want; late < 0 || late > 60*time.Millisecond {
			t.Errorf("callback %d fired at %v, scheduled %v", i, tk.at, want)
		}
	}
	if tr.State() != Stopped || tr.Position() != 0 {
		t.Errorf("state %v position %v after finish", tr.State(), tr.Position())
	}
	if sink.silenceCount() == 0 {
		t.Error("no silence at end of song")
	}
}

func TestFinishedFiresOnce(t *testing.T) {
	sink := &recordSink{}
	var mu sync.Mutex
	finished := 0
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() {
		mu.Lock()
		finished++
		mu.Unlock()
	}))
	tr.LoadSong(testSong(3, 100*time.Millisecond))
	tr.Play()

	waitFor(t, "stopped", func() bool { return tr.State() == Stopped && len(sink.keys()) == 3 })
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if finished != 1 {
		t.Errorf("finished fired %d times", finished)
	}
}

func TestStopDoesNotFireFinished(t *testing.T) {
	sink := &recordSink{}
	fired := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { fired <- struct{}{} }))
	tr.LoadSong(testSong(3, 100*time.Millisecond))
	tr.Play()

	waitFor(t, "first event", func() bool { return len(sink.keys()) >= 1 })
	tr.Stop()

	select {
	case <-fired:
		t.Fatal("finished fired after Stop")
	case <-time.After(300 * time.Millisecond):
	}
	if n := len(sink.keys()); n != 1 {
		t.Errorf("sent %d events after stop, want 1", n)
	}
}

func TestSkipDoesNotFireFinished(t *testing.T) {
	sink := &recordSink{}
	fired := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { fired <- struct{}{} }))
	tr.LoadSong(testSong(3, 100*time.Millisecond))
	tr.Play()

	waitFor(t, "first event", func() bool { return len(sink.keys()) >= 1 })
	before := sink.silenceCount()
	tr.Skip()

	select {
	case <-fired:
		t.Fatal("finished fired after Skip")
	case <-time.After(300 * time.Millisecond):
	}
	if tr.State() != Stopped || tr.Position() != 0 {
		t.Errorf("state %v position %v after skip", tr.State(), tr.Position())
	}
	if sink.silenceCount() <= before {
		t.Error("exiting loop did not emit silence")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := New(&recordSink{}, WithQuantum(time.Millisecond))
	tr.LoadSong(testSong(5, 50*time.Millisecond))
	tr.Play()
	tr.Stop()
	tr.Stop()
	if tr.State() != Stopped || tr.Position() != 0 {
		t.Errorf("state %v position %v", tr.State(), tr.Position())
	}
}

func TestPauseResumeKeepsPosition(t *testing.T) {
	sink := &recordSink{}
	finished := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { finished <- struct{}{} }))
	tr.LoadSong(testSong(10, 30*time.Millisecond))
	tr.Play()

	waitFor(t, "three events", func() bool { return len(sink.keys()) >= 3 })
	tr.Pause()
	tr.Pause()
	if tr.State() != Paused {
		t.Fatalf("state %v, want paused", tr.State())
	}
	time.Sleep(20 * time.Millisecond)
	held := len(sink.keys())
	pos := tr.Position()
	time.Sleep(150 * time.Millisecond)
	if n := len(sink.keys()); n != held {
		t.Fatalf("sent %d events while paused", n-held)
	}
	if tr.Position() != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, tr.Position())
	}

	tr.Play()
	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("did not finish after resume")
	}

	keys := sink.keys()
	if len(keys) != 10 {
		t.Fatalf("sent %d events, want 10: %v", len(keys), keys)
	}
	for i, k := range keys {
		if int(k) != i {
			t.Fatalf("event order %v", keys)
		}
	}
}

func TestPauseEmitsSilence(t *testing.T) {
	sink := &recordSink{}
	tr := New(sink, WithQuantum(time.Millisecond))
	tr.LoadSong(testSong(5, 100*time.Millisecond))
	tr.Play()
	waitFor(t, "first event", func() bool { return len(sink.keys()) >= 1 })

	before := sink.silenceCount()
	tr.Pause()
	if sink.silenceCount() != before+1 {
		t.Errorf("pause sent %d silences", sink.silenceCount()-before)
	}
	tr.Stop()
}

func TestSeekDuringPlayback(t *testing.T) {
	sink := &recordSink{}
	first := make(chan struct{}, 1)
	finished := make(chan struct{}, 1)
	tr := New(sink,
		WithQuantum(time.Millisecond),
		WithOnPosition(func(pos, dur time.Duration) {
			if pos == 0 {
				first <- struct{}{}
			}
		}),
		WithOnFinished(func() { finished <- struct{}{} }),
	)
	tr.LoadSong(testSong(10, 100*time.Millisecond))
	tr.Play()

	<-first
	tr.Seek(450 * time.Millisecond)

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("did not finish")
	}

	keys := sink.keys()
	want := []byte{0, 5, 6, 7, 8, 9}
	if string(keys) != string(want) {
		t.Errorf("sent %v, want %v", keys, want)
	}
}

func TestSeekClamps(t *testing.T) {
	tr := New(&recordSink{})
	tr.LoadSong(testSong(3, 500*time.Millisecond))

	tr.Seek(-time.Second)
	if tr.Position() != 0 {
		t.Errorf("Seek(-1s) position %v", tr.Position())
	}
	tr.Seek(10 * time.Second)
	if tr.Position() != time.Second {
		t.Errorf("Seek(10s) position %v, want duration", tr.Position())
	}
	tr.Rewind()
	if tr.Position() != 0 {
		t.Errorf("Rewind position %v", tr.Position())
	}
}

func TestSeekWhileStoppedStartsThere(t *testing.T) {
	sink := &recordSink{}
	finished := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { finished <- struct{}{} }))
	tr.LoadSong(testSong(6, 40*time.Millisecond))
	tr.Seek(120 * time.Millisecond)
	tr.Play()

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("did not finish")
	}
	if keys := sink.keys(); string(keys) != string([]byte{3, 4, 5}) {
		t.Errorf("sent %v, want [3 4 5]", keys)
	}
}

func TestVolumeAppliedAtSendTime(t *testing.T) {
	sink := &recordSink{}
	finished := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { finished <- struct{}{} }))
	seq := song.Sequence{
		{At: 0, Msg: []byte{0xB0, 7, 100}},
		{At: 10 * time.Millisecond, Msg: []byte{0xB1, 7, 127}},
	}
	s := &song.Song{Events: seq, Duration: seq.Duration()}
	tr.LoadSong(s)
	tr.SetVolume(0.5)
	tr.Play()
	<-finished

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.sent[0][2] != 50 || sink.sent[1][2] != 64 {
		t.Errorf("scaled values %d, %d; want 50, 64", sink.sent[0][2], sink.sent[1][2])
	}
	if seq[0].Msg[2] != 100 || seq[1].Msg[2] != 127 {
		t.Error("volume scaling mutated the loaded sequence")
	}
}

func TestLoadErrorKeepsSession(t *testing.T) {
	tr := New(&recordSink{})
	tr.LoadSong(testSong(3, 500*time.Millisecond))

	_, err := tr.Load(filepath.Join(t.TempDir(), "nope.mid"))
	var le *song.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *song.LoadError", err)
	}
	if tr.Duration() != time.Second || tr.Song().Path != "test.mid" {
		t.Errorf("session replaced after failed load: %v %q", tr.Duration(), tr.Song().Path)
	}
}

func TestLoadStopsPlayback(t *testing.T) {
	sink := &recordSink{}
	tr := New(sink, WithQuantum(time.Millisecond))
	tr.LoadSong(testSong(5, 100*time.Millisecond))
	tr.Play()
	waitFor(t, "first event", func() bool { return len(sink.keys()) >= 1 })

	tr.LoadSong(testSong(2, 10*time.Millisecond))
	if tr.State() != Stopped || tr.Position() != 0 {
		t.Errorf("state %v position %v after load", tr.State(), tr.Position())
	}
	time.Sleep(150 * time.Millisecond)
	if n := len(sink.keys()); n != 1 {
		t.Errorf("old song kept playing: %d events", n)
	}
}

func TestPanicInSinkStopsTransport(t *testing.T) {
	sink := &recordSink{panicOn: 2}
	fired := make(chan struct{}, 1)
	tr := New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() { fired <- struct{}{} }))
	tr.LoadSong(testSong(4, 10*time.Millisecond))
	tr.Play()

	waitFor(t, "stopped after panic", func() bool { return tr.State() == Stopped && sink.silenceCount() > 0 })
	select {
	case <-fired:
		t.Fatal("finished fired after a fault")
	case <-time.After(50 * time.Millisecond):
	}

	// transport is still usable
	sink.mu.Lock()
	sink.panicOn = 0
	sink.mu.Unlock()
	tr.Play()
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("replay after fault did not finish")
	}
}

func TestReplayFromFinishedCallback(t *testing.T) {
	sink := &recordSink{}
	var tr *Transport
	var mu sync.Mutex
	rounds := 0
	done := make(chan struct{})
	tr = New(sink, WithQuantum(time.Millisecond), WithOnFinished(func() {
		mu.Lock()
		rounds++
		n := rounds
		mu.Unlock()
		if n < 2 {
			tr.LoadSong(testSong(2, 10*time.Millisecond))
			tr.Play()
			return
		}
		close(done)
	}))
	tr.LoadSong(testSong(2, 10*time.Millisecond))
	tr.Play()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("second round never finished")
	}
	if n := len(sink.keys()); n != 4 {
		t.Errorf("sent %d events over two rounds, want 4", n)
	}
}

func TestPlayEmptySong(t *testing.T) {
	finished := make(chan struct{}, 1)
	tr := New(&recordSink{}, WithOnFinished(func() { finished <- struct{}{} }))
	tr.Play()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("empty song did not finish")
	}
}
