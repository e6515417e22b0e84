// Package playlist is the play queue in front of the transport.
package playlist

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go-midiplay/debug"
	"go-midiplay/player"
)

var (
	ErrEmpty      = errors.New("queue is empty")
	ErrEndOfQueue = errors.New("end of queue")
	ErrIndex      = errors.New("queue index out of range")
)

// Player is the part of the transport the queue drives
type Player interface {
	Load(path string) (time.Duration, error)
	Play()
	Pause()
	Stop()
	State() player.State
}

// Playlist holds file paths and tracks which one is loaded.
// Methods are safe for concurrent use; Finished is meant to be wired to the
// transport's finished callback.
type Playlist struct {
	p Player

	mu      sync.Mutex
	items   []string
	current int
}

func New(p Player) *Playlist {
	return &Playlist{p: p, current: -1}
}

// Add appends paths to the end of the queue
func (pl *Playlist) Add(paths ...string) {
	pl.mu.Lock()
	pl.items = append(pl.items, paths...)
	pl.mu.Unlock()
	debug.Log("playlist", "added %d file(s)", len(paths))
}

// Remove drops item i. Removing the current item stops playback.
func (pl *Playlist) Remove(i int) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if i < 0 || i >= len(pl.items) {
		return fmt.Errorf("remove %d: %w", i, ErrIndex)
	}
	pl.items = slices.Delete(pl.items, i, i+1)
	switch {
	case i == pl.current:
		pl.p.Stop()
		pl.current = -1
	case i < pl.current:
		pl.current--
	}
	return nil
}

// Clear stops playback and empties the queue
func (pl *Playlist) Clear() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.p.Stop()
	pl.items = nil
	pl.current = -1
}

// Items returns a copy of the queue
func (pl *Playlist) Items() []string {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return slices.Clone(pl.items)
}

// Current is the index of the loaded item, or -1 when idle
func (pl *Playlist) Current() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.current
}

// Title is the base name of the loaded item, empty when idle
func (pl *Playlist) Title() string {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.current < 0 {
		return ""
	}
	return filepath.Base(pl.items[pl.current])
}

// PlayIndex stops, loads item i and plays it. A load error leaves the
// current index where it was.
func (pl *Playlist) PlayIndex(i int) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.playLocked(i)
}

func (pl *Playlist) playLocked(i int) error {
	if i < 0 || i >= len(pl.items) {
		return fmt.Errorf("play %d: %w", i, ErrIndex)
	}
	path := pl.items[i]

	pl.p.Stop()
	if _, err := pl.p.Load(path); err != nil {
		return err
	}
	pl.current = i
	pl.p.Play()
	debug.Log("playlist", "playing %d: %s", i, path)
	return nil
}

// Toggle pauses, resumes, or starts the current (or first) item
func (pl *Playlist) Toggle() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	switch pl.p.State() {
	case player.Playing:
		pl.p.Pause()
		return nil
	case player.Paused:
		pl.p.Play()
		return nil
	}
	if len(pl.items) == 0 {
		return ErrEmpty
	}
	return pl.playLocked(max(pl.current, 0))
}

// Next plays the following item. Past the end it stops, goes idle and
// returns ErrEndOfQueue.
func (pl *Playlist) Next() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(pl.items) == 0 {
		return ErrEmpty
	}
	if next := pl.current + 1; next < len(pl.items) {
		return pl.playLocked(next)
	}
	pl.p.Stop()
	pl.current = -1
	return ErrEndOfQueue
}

// Prev plays the previous item, or restarts the first one
func (pl *Playlist) Prev() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(pl.items) == 0 {
		return ErrEmpty
	}
	return pl.playLocked(max(pl.current-1, 0))
}

// Finished advances after a song plays to its end, or goes idle after the
// last one
func (pl *Playlist) Finished() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	next := pl.current + 1
	if pl.current >= 0 && next < len(pl.items) {
		if err := pl.playLocked(next); err != nil {
			debug.Log("playlist", "auto-advance: %v", err)
			pl.current = -1
		}
		return
	}
	pl.current = -1
	debug.Log("playlist", "queue finished")
}
