package song

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"

	"go-midiplay/debug"
)

// ErrTimeFormat is returned for SMPTE-timed files
var ErrTimeFormat = errors.New("unsupported time format (only metric ticks)")

// LoadError reports a file that could not be read or decoded
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load: %v", e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// FromSMF converts a decoded file into tracks and its tick resolution
func FromSMF(s *smf.SMF) ([]Track, uint16, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, 0, ErrTimeFormat
	}
	tracks := make([]Track, 0, len(s.Tracks))
	for _, tr := range s.Tracks {
		out := make(Track, 0, len(tr))
		for _, ev := range tr {
			out = append(out, Entry{Delta: ev.Delta, Msg: []byte(ev.Message)})
		}
		tracks = append(tracks, out)
	}
	return tracks, uint16(mt), nil
}

// Decode flattens an already parsed file
func Decode(path string, s *smf.SMF) (*Song, error) {
	tracks, tpb, err := FromSMF(s)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	seq, err := Flatten(tracks, tpb)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	debug.Log("song", "decoded %s: tracks=%d tpb=%d events=%d duration=%v", path, len(tracks), tpb, len(seq), seq.Duration())
	return &Song{
		Path:         path,
		Tracks:       len(tracks),
		TicksPerBeat: tpb,
		Events:       seq,
		Duration:     seq.Duration(),
	}, nil
}

// Read decodes a Standard MIDI File from r; path is only used in errors.
func Read(path string, r io.Reader) (*Song, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Decode(path, s)
}

// ReadFile loads and flattens a .mid file
func ReadFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Read(path, bytes.NewReader(data))
}
