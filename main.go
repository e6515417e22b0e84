package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midiplay/config"
	"go-midiplay/debug"
	"go-midiplay/output"
	"go-midiplay/player"
	"go-midiplay/playlist"
	"go-midiplay/remote"
	"go-midiplay/theme"
	"go-midiplay/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error (using defaults): %v\n", err)
		cfg = config.DefaultConfig()
	}

	port := flag.String("port", cfg.Output.Port, "MIDI out port name (substring match)")
	dev := flag.String("serial", cfg.Output.Serial, "serial MIDI device, e.g. /dev/ttyACM0")
	baud := flag.Int("baud", cfg.Output.Baud, "serial baud rate")
	volume := flag.Int("volume", cfg.Playback.Volume, "playback volume 0-127")
	listen := flag.String("listen", cfg.Remote.Addr, "websocket remote address, e.g. :7890")
	advertise := flag.Bool("advertise", cfg.Remote.Advertise, "advertise the remote with mDNS")
	logFile := flag.Bool("debug", false, "write a debug log to "+debug.DefaultPath())
	flag.Parse()

	if *logFile {
		if err := debug.Enable(debug.DefaultPath()); err != nil {
			fmt.Printf("Debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	cfg.Output.Port, cfg.Output.Serial, cfg.Output.Baud = *port, *dev, *baud
	cfg.Output.Kind = config.OutputPort
	if *dev != "" {
		cfg.Output.Kind = config.OutputSerial
	}
	cfg.Playback.Volume = min(max(*volume, 0), 127)
	cfg.Remote.Addr, cfg.Remote.Advertise = *listen, *advertise

	var palette *theme.Palette
	if cfg.UI.Palette != "" {
		if palette, err = theme.LoadGPL(cfg.UI.Palette); err != nil {
			fmt.Printf("Palette: %v\n", err)
		}
	}
	th := theme.New(palette)

	// Output starts disconnected; the watcher reconnects when the target shows up
	target := outputTarget(cfg.Output)
	out := output.NewSwitch(nil)
	if target.Name != "" {
		if conn, err := output.Open(target); err != nil {
			fmt.Printf("Output %s not available yet: %v\n", target.Name, err)
		} else {
			out.Connect(conn)
		}
	}
	defer out.Close()

	// cfg is shared by the TUI and the remote from here on
	var cfgMu sync.Mutex
	saveGain := func(g float64) {
		cfgMu.Lock()
		cfg.SetGain(g)
		cfgMu.Unlock()
	}

	tr := player.New(out, player.WithQuantum(time.Duration(cfg.Playback.QuantumMs)*time.Millisecond))
	tr.SetVolume(cfg.Gain())

	queue := playlist.New(tr)
	files := flag.Args()
	if len(files) == 0 {
		files = cfg.Queue
	}
	queue.Add(files...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := output.NewWatcher()
	go watcher.Run(ctx)

	m := tui.NewModel(tr, queue, out, watcher, th)
	m.OnVolume = saveGain
	m.OnPorts = func(p output.Ports) string {
		return out.Follow(target, p, output.Open)
	}

	var srv *remote.Server
	if cfg.Remote.Addr != "" {
		host, _ := os.Hostname()
		deck := &remote.Deck{T: tr, Q: queue, OnVolume: saveGain}
		srv = remote.New(deck, remote.Config{
			Addr:      cfg.Remote.Addr,
			Name:      "midiplay on " + host,
			Advertise: cfg.Remote.Advertise,
		})
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				debug.Log("main", "remote: %v", err)
			}
		}()
	}

	tr.SetOnPosition(func(pos, dur time.Duration) {
		m.Notify()
	})
	tr.SetOnFinished(func() {
		queue.Finished()
		m.Notify()
		if srv != nil {
			srv.Publish()
		}
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	tr.Stop()

	cfgMu.Lock()
	cfg.RememberQueue(queue.Items())
	err = cfg.Save()
	cfgMu.Unlock()
	if err != nil {
		fmt.Printf("Saving config: %v\n", err)
	}
}

func outputTarget(c config.OutputConfig) output.Target {
	if c.Kind == config.OutputSerial {
		return output.Target{Kind: output.KindSerial, Name: c.Serial, Baud: c.Baud}
	}
	return output.Target{Kind: output.KindPort, Name: c.Port}
}
