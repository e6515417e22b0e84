package song

import (
	"errors"
	"sort"
	"time"

	"go-midiplay/debug"
	"go-midiplay/midi"
)

// DefaultTempo is 120 BPM in microseconds per beat
const DefaultTempo uint32 = 500000

// ErrTicksPerBeat is returned for a zero tick resolution
var ErrTicksPerBeat = errors.New("ticks per beat must be positive")

// Entry is one decoded track event: a tick delta and its raw message
// (channel message, SysEx or meta, as stored in the file).
type Entry struct {
	Delta uint32
	Msg   []byte
}

// Track is an ordered list of entries
type Track []Entry

// Event is a message scheduled at an absolute time from the start of the song.
// Msg is shared with the sequence and must not be modified.
type Event struct {
	At  time.Duration
	Msg []byte
}

// Sequence is ordered by At, ties in merge order.
type Sequence []Event

// Duration is the time of the last event, or 0 for an empty sequence
func (s Sequence) Duration() time.Duration {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].At
}

// Index returns the first index whose event is at or after at, or len(s).
func (s Sequence) Index(at time.Duration) int {
	return sort.Search(len(s), func(i int) bool { return s[i].At >= at })
}

// Song is a flattened file ready for the transport
type Song struct {
	Path         string
	Tracks       int
	TicksPerBeat uint16
	Events       Sequence
	Duration     time.Duration
}

type placed struct {
	tick  uint64
	track int
	msg   []byte
}

// Flatten merges tracks into one time-ordered sequence. Deltas become
// absolute ticks per track, all tracks are stable-sorted by tick (earlier
// tracks first on ties), then ticks are converted to time with one running
// tempo shared by every track. Tempo meta events change the tempo for all
// later ticks and are not emitted; only channel messages are kept.
func Flatten(tracks []Track, ticksPerBeat uint16) (Sequence, error) {
	if ticksPerBeat == 0 {
		return nil, ErrTicksPerBeat
	}

	var merged []placed
	for i, tr := range tracks {
		var tick uint64
		for _, e := range tr {
			tick += uint64(e.Delta)
			merged = append(merged, placed{tick: tick, track: i, msg: e.Msg})
		}
	}
	sort.SliceStable(merged, func(a, b int) bool { return merged[a].tick < merged[b].tick })

	tempo := DefaultTempo
	tempoTracks := make(map[int]bool)
	var (
		lastTick  uint64
		elapsedUS float64
		out       Sequence
	)
	for _, p := range merged {
		elapsedUS += float64(p.tick-lastTick) * float64(tempo) / float64(ticksPerBeat)
		lastTick = p.tick

		if t, ok := tempoOf(p.msg); ok {
			tempo = t
			tempoTracks[p.track] = true
			continue
		}
		if !midi.IsChannelMessage(p.msg) {
			continue
		}
		out = append(out, Event{At: usToDuration(elapsedUS), Msg: p.msg})
	}

	if len(tempoTracks) > 1 {
		debug.Log("song", "tempo events on %d tracks, merge order decides ties", len(tempoTracks))
	}
	return out, nil
}

// tempoOf decodes a set-tempo meta message: FF 51 03 tt tt tt
func tempoOf(msg []byte) (uint32, bool) {
	if len(msg) != 6 || msg[0] != 0xFF || msg[1] != 0x51 || msg[2] != 3 {
		return 0, false
	}
	t := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
	if t == 0 {
		return 0, false
	}
	return t, true
}

func usToDuration(us float64) time.Duration {
	return time.Duration(us*float64(time.Microsecond) + 0.5)
}
