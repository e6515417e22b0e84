package remote

import (
	"errors"
	"fmt"
	"time"

	"go-midiplay/player"
	"go-midiplay/playlist"
)

var ErrUnknownAction = errors.New("unknown action")

// Status is what clients see of the player
type Status struct {
	State      string `json:"state"`
	PositionMs int64  `json:"position_ms"`
	DurationMs int64  `json:"duration_ms"`
	Volume     int    `json:"volume"` // 0-127
	Track      string `json:"track,omitempty"`
	Index      int    `json:"index"` // -1 when idle
}

// Command is a client request. Value is milliseconds for seek and 0-127 for
// volume.
type Command struct {
	Action string  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

// Controller is what the server drives
type Controller interface {
	Status() Status
	Apply(Command) error
}

// Deck binds a transport and its queue into a Controller
type Deck struct {
	T *player.Transport
	Q *playlist.Playlist

	// OnVolume, if set, sees every volume change (the app persists it)
	OnVolume func(gain float64)
}

func (d *Deck) Status() Status {
	return Status{
		State:      d.T.State().String(),
		PositionMs: d.T.Position().Milliseconds(),
		DurationMs: d.T.Duration().Milliseconds(),
		Volume:     int(d.T.Volume()*127 + 0.5),
		Track:      d.Q.Title(),
		Index:      d.Q.Current(),
	}
}

func (d *Deck) Apply(c Command) error {
	switch c.Action {
	case "play":
		if d.T.State() == player.Playing {
			return nil
		}
		return d.Q.Toggle()
	case "pause":
		d.T.Pause()
	case "stop":
		d.T.Stop()
	case "rewind":
		d.T.Rewind()
	case "next":
		return d.Q.Next()
	case "prev":
		return d.Q.Prev()
	case "seek":
		d.T.Seek(time.Duration(c.Value * float64(time.Millisecond)))
	case "volume":
		g := min(max(c.Value, 0), 127) / 127
		d.T.SetVolume(g)
		if d.OnVolume != nil {
			d.OnVolume(g)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
	return nil
}
