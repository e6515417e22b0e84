package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
)

// OutputKind identifies how MIDI bytes leave the process
type OutputKind string

const (
	OutputPort   OutputKind = "port"
	OutputSerial OutputKind = "serial"
)

// OutputConfig selects the device to open at startup
type OutputConfig struct {
	Kind   OutputKind `json:"kind,omitempty"`
	Port   string     `json:"port,omitempty"`
	Serial string     `json:"serial,omitempty"`
	Baud   int        `json:"baud,omitempty"`
}

// PlaybackConfig stores transport preferences
type PlaybackConfig struct {
	Volume    int `json:"volume"`              // 0-127
	QuantumMs int `json:"quantumMs,omitempty"` // pacing loop check interval
}

// RemoteConfig controls the websocket remote
type RemoteConfig struct {
	Addr      string `json:"addr,omitempty"` // empty disables the remote
	Advertise bool   `json:"advertise,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // path to a .gpl file
}

// Config is the main configuration structure
type Config struct {
	Output   OutputConfig   `json:"output"`
	Playback PlaybackConfig `json:"playback"`
	Remote   RemoteConfig   `json:"remote,omitempty"`
	UI       UIConfig       `json:"ui,omitempty"`
	Queue    []string       `json:"queue,omitempty"` // files queued last session
}

const (
	DefaultBaud      = 31250
	DefaultVolume    = 127
	DefaultQuantumMs = 5
	maxQueue         = 200
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Kind: OutputPort,
			Baud: DefaultBaud,
		},
		Playback: PlaybackConfig{
			Volume:    DefaultVolume,
			QuantumMs: DefaultQuantumMs,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiplay"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Start from defaults so missing sections keep them
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) normalize() {
	c.Playback.Volume = min(max(c.Playback.Volume, 0), 127)
	if c.Playback.QuantumMs <= 0 {
		c.Playback.QuantumMs = DefaultQuantumMs
	}
	if c.Output.Baud <= 0 {
		c.Output.Baud = DefaultBaud
	}
	if c.Output.Kind != OutputSerial {
		c.Output.Kind = OutputPort
	}
}

// Gain returns the stored volume as a transport gain in [0,1]
func (c *Config) Gain() float64 {
	return float64(min(max(c.Playback.Volume, 0), 127)) / 127
}

// SetGain stores a transport gain as a 0-127 volume
func (c *Config) SetGain(g float64) {
	c.Playback.Volume = min(max(int(g*127+0.5), 0), 127)
}

// RememberQueue stores the queue for the next session, dropping duplicates
func (c *Config) RememberQueue(paths []string) {
	var q []string
	for _, p := range paths {
		if !slices.Contains(q, p) {
			q = append(q, p)
		}
	}
	if len(q) > maxQueue {
		q = q[len(q)-maxQueue:]
	}
	c.Queue = q
}
