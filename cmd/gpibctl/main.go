// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gpibctl bridges a host-link byte stream (a serial port, or stdin/stdout)
// to the GPIB bus engine and line-oriented command interpreter implemented
// by this module's packages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"periph.io/x/periph/host"

	"github.com/nilsager/gpibctl/attn"
	"github.com/nilsager/gpibctl/bus"
	"github.com/nilsager/gpibctl/bus/pinio"
	"github.com/nilsager/gpibctl/bus/pinio/periphio"
	"github.com/nilsager/gpibctl/bus/pinio/sim"
	"github.com/nilsager/gpibctl/config"
	"github.com/nilsager/gpibctl/hostlink"
	"github.com/nilsager/gpibctl/lineproto"
)

// isrPeriod is how often the ATN/SRQ line-change-interrupt equivalent
// samples the control lines.
const isrPeriod = time.Millisecond

// statusAdapter adapts a *config.Record to attn.StatusProvider: Record
// already exposes RQS()/ClearRQS() but its status byte is a plain field,
// so this small wrapper supplies the StatusByte() method attn needs
// without colliding with the field name on Record itself.
type statusAdapter struct {
	rec *config.Record
}

func (s statusAdapter) StatusByte() byte { return s.rec.StatusByte }
func (s statusAdapter) ClearRQS()        { s.rec.ClearRQS() }

// stdioLink wraps stdin/stdout as a hostlink.Link, for bench-testing the
// bridge without a real serial adapter attached.
type stdioLink struct{}

func (stdioLink) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioLink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioLink) Close() error                { return nil }

// boardPins names the digital pins the periphio.Adapter binds to, for a
// board wired per this port's pinout. A real deployment would make this
// configurable; a pin-register adapter for a specific board replaces it
// wholesale.
var boardPins = periphio.PinNames{
	Data: [8]string{"GPIO2", "GPIO3", "GPIO4", "GPIO17", "GPIO27", "GPIO22", "GPIO10", "GPIO9"},
	Ctrl: [8]string{"GPIO11", "GPIO5", "GPIO6", "GPIO13", "GPIO19", "GPIO26", "GPIO14", "GPIO15"},
}

func openLink(port string, baud uint32) (hostlink.Link, error) {
	if port == "" {
		return stdioLink{}, nil
	}
	return hostlink.OpenSerial(port, baud)
}

func openAdapter(useSim bool) (pinio.Adapter, error) {
	if useSim {
		// A lone sim node has no peer wired to the opposite side of the
		// bus; it exists so -sim can exercise the line interpreter and
		// engine plumbing without real hardware attached.
		return sim.NewBus().Node("self"), nil
	}
	return periphio.New("GPIB", boardPins)
}

func listDiscovery() error {
	if usb, err := hostlink.DiscoverUSB(); err == nil {
		for _, d := range usb {
			fmt.Printf("usb  vid=%04x pid=%04x bus=%d addr=%d\n", d.VendorID, d.ProductID, d.Bus, d.Addr)
		}
	}
	if com, err := hostlink.DiscoverCOMPorts(); err == nil {
		for _, d := range com {
			fmt.Printf("com  %s  %s\n", d.DeviceID, d.Description)
		}
	}
	return nil
}

func mainImpl() error {
	verbose := flag.Bool("v", false, "verbose mode")
	port := flag.String("port", "", "serial device to bridge (e.g. /dev/ttyUSB0); empty uses stdin/stdout")
	baud := flag.Uint("baud", 115200, "serial baud rate")
	cfgPath := flag.String("config", "gpibctl.cfg", "persisted configuration file")
	useSim := flag.Bool("sim", false, "use the in-memory pin simulation instead of real hardware")
	list := flag.Bool("list", false, "list discoverable USB/COM candidates and exit")
	mon := flag.Bool("mon", false, "print a live bus-line monitor")

	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *list {
		return listDiscovery()
	}

	if _, err := host.Init(); err != nil {
		return err
	}

	store := config.FileStore{Path: *cfgPath}
	cfg, err := config.Load(store)
	if err != nil {
		log.Printf("config: %v, using defaults", err)
	}

	adapter, err := openAdapter(*useSim)
	if err != nil {
		return fmt.Errorf("gpibctl: pin adapter: %w", err)
	}

	var eng *bus.Engine
	if cfg.Mode == config.ModeController {
		eng = bus.NewController(adapter, cfg.ControllerAddress, cfg.ReadTimeoutMs)
	} else {
		eng = bus.NewDevice(adapter, cfg.PrimaryAddress, cfg.ReadTimeoutMs)
	}

	link, err := openLink(*port, uint32(*baud))
	if err != nil {
		return fmt.Errorf("gpibctl: host link: %w", err)
	}
	defer link.Close()

	ctx := lineproto.NewContext(link, eng, &cfg, store)
	ctx.Verbose = *verbose
	if *verbose {
		ctx.Log.SetOutput(os.Stderr)
	}
	// The attention service is wired regardless of the boot role so a
	// ++mode switch at runtime finds it ready.
	ctx.Attn = &attn.Service{Engine: eng, Status: statusAdapter{rec: &cfg}, Reset: func() {
		// SDC resets operating settings but leaves the role and addressing
		// alone; the controller clearing us does not make us a controller.
		mode, own, primary := cfg.Mode, cfg.ControllerAddress, cfg.PrimaryAddress
		cfg = config.Default()
		cfg.Mode, cfg.ControllerAddress, cfg.PrimaryAddress = mode, own, primary
	}}

	var monitor *lineproto.BusMonitor
	if *mon {
		monitor = lineproto.NewBusMonitor(eng)
	}

	isrCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.RunISR(isrCtx, adapter, eng.Flags, isrPeriod)

	return runBridge(ctx, link, eng, monitor)
}

// runBridge is the top-level cooperative loop: take one host-link byte at a
// time from the async reader, feed it to the line interpreter, and between
// bytes service whatever the ISR goroutine flagged (an ATN burst in device
// role, an SRQ poll in controller role) plus any device-role data phase.
// The ISR never touches engine state itself, so there is no locking here
// beyond the atomics inside Flags.
func runBridge(ctx *lineproto.Context, link hostlink.Link, eng *bus.Engine, monitor *lineproto.BusMonitor) error {
	reader := hostlink.NewAsyncReader(link)
	ctx.HostByte = reader.TryByte

	tick := time.NewTicker(isrPeriod)
	defer tick.Stop()
	for {
		if eng.Role == bus.Device {
			if eng.Flags.TakeATN() && ctx.Attn != nil {
				if burst, err := ctx.Attn.Run(); err != nil {
					ctx.Log.Printf("attn: % x: %v", burst, err)
				}
			}
			// An addressed listener (or listen-only mode) drains the data
			// phase between host bytes.
			ctx.DeviceListen()
		}
		if eng.Role == bus.Controller && ctx.SRQAuto && eng.Flags.TakeSRQ() {
			results, err := eng.SerialPollAll()
			if err != nil {
				ctx.Log.Printf("srq auto: %v", err)
			}
			for _, r := range results {
				fmt.Fprintln(ctx.Sink, r.String())
			}
		}
		if monitor != nil {
			monitor.Refresh()
		}

		select {
		case b, ok := <-reader.Bytes():
			if !ok {
				return reader.Err()
			}
			ctx.FeedByte(b)
			ctx.DrainPending()
		case <-tick.C:
		}
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "gpibctl: %s.\n", err)
		os.Exit(1)
	}
}
