package song

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempoMsg(us uint32) []byte {
	return []byte{0xFF, 0x51, 0x03, byte(us >> 16), byte(us >> 8), byte(us)}
}

func noteOn(key byte) []byte { return []byte{0x90, key, 100} }

func TestFlattenTempoChange(t *testing.T) {
	tracks := []Track{{
		{Delta: 480, Msg: tempoMsg(1000000)},
		{Delta: 480, Msg: noteOn(60)},
	}}
	seq, err := Flatten(tracks, 480)
	if err != nil {
		t.Fatal(err)
	}
	if len(seq) != 1 {
		t.Fatalf("got %d events, want 1", len(seq))
	}
	// one beat at 120 BPM (0.5s) then one beat at 60 BPM (1s)
	if seq[0].At != 1500*time.Millisecond {
		t.Errorf("note at %v, want 1.5s", seq[0].At)
	}
}

func TestFlattenTempoFromStart(t *testing.T) {
	tracks := []Track{{
		{Delta: 0, Msg: tempoMsg(1000000)},
		{Delta: 480, Msg: noteOn(60)},
		{Delta: 480, Msg: noteOn(62)},
	}}
	seq, err := Flatten(tracks, 480)
	if err != nil {
		t.Fatal(err)
	}
	if seq[0].At != time.Second || seq[1].At != 2*time.Second {
		t.Errorf("got %v, %v; want 1s, 2s", seq[0].At, seq[1].At)
	}
}

func TestFlattenMergesTracksStably(t *testing.T) {
	tracks := []Track{
		{{Delta: 0, Msg: tempoMsg(500000)}, {Delta: 240, Msg: noteOn(1)}, {Delta: 240, Msg: noteOn(2)}},
		{{Delta: 240, Msg: noteOn(3)}, {Delta: 0, Msg: noteOn(4)}},
		{{Delta: 0, Msg: noteOn(5)}, {Delta: 480, Msg: noteOn(6)}},
	}
	seq, err := Flatten(tracks, 480)
	if err != nil {
		t.Fatal(err)
	}
	var keys []byte
	for i, ev := range seq {
		keys = append(keys, ev.Msg[1])
		if i > 0 && ev.At < seq[i-1].At {
			t.Errorf("event %d at %v before %v", i, ev.At, seq[i-1].At)
		}
	}
	want := []byte{5, 1, 3, 4, 2, 6}
	if !bytes.Equal(keys, want) {
		t.Errorf("order %v, want %v", keys, want)
	}
	if seq.Duration() != 500*time.Millisecond {
		t.Errorf("duration %v, want 500ms", seq.Duration())
	}

	again, _ := Flatten(tracks, 480)
	for i := range seq {
		if seq[i].At != again[i].At || !bytes.Equal(seq[i].Msg, again[i].Msg) {
			t.Fatalf("flatten not deterministic at %d", i)
		}
	}
}

func TestFlattenTempoOnLaterTrackAppliesToFollowingTicks(t *testing.T) {
	tracks := []Track{
		{{Delta: 480, Msg: noteOn(1)}, {Delta: 480, Msg: noteOn(2)}},
		{{Delta: 480, Msg: tempoMsg(250000)}},
	}
	seq, err := Flatten(tracks, 480)
	if err != nil {
		t.Fatal(err)
	}
	if seq[0].At != 500*time.Millisecond {
		t.Errorf("first note %v, want 500ms", seq[0].At)
	}
	if seq[1].At != 750*time.Millisecond {
		t.Errorf("second note %v, want 750ms", seq[1].At)
	}
}

func TestFlattenDropsMetaAndSysEx(t *testing.T) {
	tracks := []Track{{
		{Delta: 0, Msg: []byte{0xFF, 0x03, 0x04, 'l', 'e', 'a', 'd'}},
		{Delta: 0, Msg: []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7}},
		{Delta: 0, Msg: nil},
		{Delta: 0, Msg: []byte{0xC0, 5}},
		{Delta: 10, Msg: []byte{0xFF, 0x2F, 0x00}},
	}}
	seq, err := Flatten(tracks, 96)
	if err != nil {
		t.Fatal(err)
	}
	if len(seq) != 1 || !bytes.Equal(seq[0].Msg, []byte{0xC0, 5}) {
		t.Errorf("got %v, want only the program change", seq)
	}
}

func TestFlattenEmpty(t *testing.T) {
	seq, err := Flatten(nil, 480)
	if err != nil {
		t.Fatal(err)
	}
	if len(seq) != 0 || seq.Duration() != 0 {
		t.Errorf("got %d events, duration %v", len(seq), seq.Duration())
	}
	if _, err := Flatten(nil, 0); !errors.Is(err, ErrTicksPerBeat) {
		t.Errorf("err = %v, want ErrTicksPerBeat", err)
	}
}

func TestSequenceIndex(t *testing.T) {
	seq := Sequence{
		{At: 0}, {At: 100 * time.Millisecond}, {At: 100 * time.Millisecond}, {At: 300 * time.Millisecond},
	}
	cases := []struct {
		at   time.Duration
		want int
	}{
		{0, 0},
		{50 * time.Millisecond, 1},
		{100 * time.Millisecond, 1},
		{200 * time.Millisecond, 3},
		{300 * time.Millisecond, 3},
		{time.Second, 4},
	}
	for _, c := range cases {
		if got := seq.Index(c.at); got != c.want {
			t.Errorf("Index(%v) = %d, want %d", c.at, got, c.want)
		}
	}
}

// format 0, 480 tpb: tempo 500000 at 0, tempo 1000000 at 480, note-on at 960
var tempoFile = []byte{
	'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0x01, 0xE0,
	'M', 'T', 'r', 'k', 0, 0, 0, 0x18,
	0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
	0x83, 0x60, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40,
	0x83, 0x60, 0x90, 0x3C, 0x64,
	0x00, 0xFF, 0x2F, 0x00,
}

func TestReadSMF(t *testing.T) {
	s, err := Read("tempo.mid", bytes.NewReader(tempoFile))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.TicksPerBeat != 480 || s.Tracks != 1 {
		t.Errorf("tpb=%d tracks=%d", s.TicksPerBeat, s.Tracks)
	}
	if len(s.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(s.Events))
	}
	if s.Events[0].At != 1500*time.Millisecond || s.Duration != 1500*time.Millisecond {
		t.Errorf("note at %v duration %v, want 1.5s", s.Events[0].At, s.Duration)
	}
	if !bytes.Equal(s.Events[0].Msg, []byte{0x90, 0x3C, 0x64}) {
		t.Errorf("msg % X", s.Events[0].Msg)
	}
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.mid"))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "junk.mid")
	if err := os.WriteFile(path, []byte("not a midi file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.As(err, &le) || le.Path != path {
		t.Errorf("err = %v, want *LoadError for %s", err, path)
	}
}
