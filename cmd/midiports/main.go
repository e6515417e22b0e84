package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midiplay/midi"
	"go-midiplay/output"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "list":
		listPorts()
		return
	case "poll":
		pollPorts()
		return
	case "help", "-h", "--help":
		usage()
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	port := fs.String("port", "", "MIDI out port name (substring match)")
	dev := fs.String("serial", "", "serial device, e.g. /dev/ttyACM0")
	baud := fs.Int("baud", output.DefaultBaud, "serial baud rate")
	fs.Parse(args)

	msgs, err := build(cmd, fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	target := output.Target{Kind: output.KindPort, Name: *port}
	if *dev != "" {
		target = output.Target{Kind: output.KindSerial, Name: *dev, Baud: *baud}
	}
	conn, err := output.Open(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Using output: %s\n", conn)
	for _, m := range msgs {
		if m.wait > 0 {
			time.Sleep(m.wait)
		}
		if err := conn.Send(m.data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  sent % X\n", m.data)
	}
}

func usage() {
	fmt.Println("MIDI output console")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                         - List MIDI out ports and serial devices")
	fmt.Println("  poll                         - Watch for port changes")
	fmt.Println("  program <ch> <prog>          - Program change (ch 1-16, prog 0-127)")
	fmt.Println("  cc <ch> <cc> <value>         - Control change")
	fmt.Println("  volume <ch> <value>          - Channel volume (CC 7)")
	fmt.Println("  note <ch> <key> <vel> [ms]   - Note on, then off after ms (default 500)")
	fmt.Println("  silence                      - All sound off on every channel")
	fmt.Println("  reset                        - Reset all controllers on every channel")
	fmt.Println("")
	fmt.Println("Output flags (after the command): -port NAME | -serial DEV [-baud N]")
}

type timed struct {
	data []byte
	wait time.Duration
}

// build turns a command line into the messages to send
func build(cmd string, args []string) ([]timed, error) {
	nums, err := parseArgs(args)
	if err != nil {
		return nil, err
	}
	need := func(n int) error {
		if len(nums) < n {
			return fmt.Errorf("%s: need %d arguments, got %d", cmd, n, len(nums))
		}
		return nil
	}

	once := func(b []byte) []timed { return []timed{{data: b}} }

	switch cmd {
	case "program":
		if err := need(2); err != nil {
			return nil, err
		}
		return once(midi.Program(channel(nums[0]), data(nums[1]))), nil

	case "cc":
		if err := need(3); err != nil {
			return nil, err
		}
		return once(midi.ControlChange(channel(nums[0]), data(nums[1]), data(nums[2]))), nil

	case "volume":
		if err := need(2); err != nil {
			return nil, err
		}
		return once(midi.ChannelVolume(channel(nums[0]), data(nums[1]))), nil

	case "note":
		if err := need(3); err != nil {
			return nil, err
		}
		hold := 500 * time.Millisecond
		if len(nums) > 3 {
			hold = time.Duration(nums[3]) * time.Millisecond
		}
		ch, key := channel(nums[0]), data(nums[1])
		return []timed{
			{data: midi.Note(ch, key, data(nums[2]))},
			{data: midi.Note(ch, key, 0), wait: hold},
		}, nil

	case "silence":
		var out []timed
		for _, m := range midi.Silence() {
			out = append(out, timed{data: m})
		}
		return out, nil

	case "reset":
		var out []timed
		for ch := range midi.NumChannels {
			out = append(out, timed{data: midi.ResetAllControllers(uint8(ch))})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func parseArgs(args []string) ([]int, error) {
	nums := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		nums[i] = n
	}
	return nums, nil
}

// channel maps a 1-16 channel number to its 0-15 wire value
func channel(n int) uint8 {
	return uint8(min(max(n-1, 0), midi.NumChannels-1))
}

func data(n int) uint8 {
	return uint8(min(max(n, 0), 127))
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ch := make(chan []string, 1)
	go func() {
		ch <- output.PortNames()
	}()

	select {
	case names := <-ch:
		for i, name := range names {
			fmt.Printf("  %d: %s\n", i, name)
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI service is not responding.")
	}

	fmt.Println("\n=== Serial Devices ===")
	serials, err := output.SerialNames()
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	for i, name := range serials {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func pollPorts() {
	fmt.Println("Polling for port changes every second. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := output.NewWatcher()
	go w.Run(ctx)

	for p := range w.Events() {
		fmt.Printf("\n[%s] Port change detected!\n", time.Now().Format("15:04:05"))
		fmt.Printf("  MIDI:   %v\n", p.MIDI)
		fmt.Printf("  Serial: %v\n", p.Serial)
	}
}
