// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/nilsager/gpibctl/bus/pinio"
	"github.com/nilsager/gpibctl/bus/pinio/sim"
)

func TestDataBusLoopbackThroughAdapter(t *testing.T) {
	b := sim.NewBus()
	n := b.Node("n")
	for _, v := range []byte{0x00, 0x01, 0x5A, 0xFF} {
		n.WriteDataBus(v)
		if got := n.ReadDataBus(); got != v {
			t.Fatalf("read(write(%#x)) = %#x", v, got)
		}
	}
}

// pair wires a controller in CTAS and a device in DLAS on one simulated
// bus, ready for a data byte handshake.
func pair(t *testing.T, rtmoMs int) (*Engine, *Engine) {
	t.Helper()
	b := sim.NewBus()
	ctl := NewController(b.Node("ctl"), 0, rtmoMs)
	dev := NewDevice(b.Node("dev"), 9, rtmoMs)
	if err := ctl.SetControls(CCMS); err != nil {
		t.Fatal(err)
	}
	if err := ctl.SetControls(CTAS); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	return ctl, dev
}

type readResult struct {
	b   byte
	eoi bool
	err error
}

func TestWriteReadByte(t *testing.T) {
	ctl, dev := pair(t, 500)

	got := make(chan readResult, 1)
	go func() {
		b, eoi, err := dev.ReadByte(true)
		got <- readResult{b, eoi, err}
	}()

	if err := ctl.WriteByte('Q', false, true); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	r := <-got
	if r.err != nil {
		t.Fatalf("ReadByte: %v", r.err)
	}
	if r.b != 'Q' {
		t.Fatalf("ReadByte = %#x, want %#x", r.b, 'Q')
	}
	if r.eoi {
		t.Fatal("EOI asserted on a non-final byte")
	}
}

func TestWriteReadByteWithEOI(t *testing.T) {
	ctl, dev := pair(t, 500)

	got := make(chan readResult, 1)
	go func() {
		b, eoi, err := dev.ReadByte(true)
		got <- readResult{b, eoi, err}
	}()

	if err := ctl.WriteByte('\n', true, true); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	r := <-got
	if r.err != nil {
		t.Fatalf("ReadByte: %v", r.err)
	}
	if r.b != '\n' || !r.eoi {
		t.Fatalf("ReadByte = %#x eoi=%t, want %#x eoi=true", r.b, r.eoi, '\n')
	}
	// EOI must be released again once the handshake completes.
	if got := dev.Adapter.ReadControl(pinio.EOI); got != pinio.High {
		t.Fatalf("EOI = %v after handshake, want High", got)
	}
}

func TestWriteByteSequence(t *testing.T) {
	ctl, dev := pair(t, 500)
	payload := []byte("*IDN?\r\n")

	got := make(chan []byte, 1)
	go func() {
		var out []byte
		for {
			b, eoi, err := dev.ReadByte(true)
			if err != nil {
				got <- out
				return
			}
			out = append(out, b)
			if eoi {
				got <- out
				return
			}
		}
	}()

	for i, b := range payload {
		if err := ctl.WriteByte(b, i == len(payload)-1, true); err != nil {
			t.Fatalf("WriteByte(%#x): %v", b, err)
		}
	}
	if out := <-got; string(out) != string(payload) {
		t.Fatalf("received %q, want %q", out, payload)
	}
}

func TestWriteTimeoutWithoutListener(t *testing.T) {
	b := sim.NewBus()
	ctl := NewController(b.Node("ctl"), 0, 25)
	if err := ctl.SetControls(CCMS); err != nil {
		t.Fatal(err)
	}
	err := ctl.WriteByte(0x3F, true, false)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("WriteByte = %v, want *HandshakeError", err)
	}
	if he.Phase != PhaseWriteWaitNDACLow || he.Aborted {
		t.Fatalf("Phase = %d Aborted = %t, want %d false", he.Phase, he.Aborted, PhaseWriteWaitNDACLow)
	}
}

func TestReadTimeoutWithoutTalker(t *testing.T) {
	b := sim.NewBus()
	dev := NewDevice(b.Node("dev"), 9, 25)
	if err := dev.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	_, _, err := dev.ReadByte(false)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("ReadByte = %v, want *HandshakeError", err)
	}
	if he.Phase != PhaseReadWaitDAVLow || he.Aborted {
		t.Fatalf("Phase = %d Aborted = %t, want %d false", he.Phase, he.Aborted, PhaseReadWaitDAVLow)
	}
}

func TestDeviceReadAbortsOnATN(t *testing.T) {
	b := sim.NewBus()
	dev := NewDevice(b.Node("dev"), 9, 500)
	if err := dev.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	peer := b.Node("ctl")
	go func() {
		time.Sleep(2 * time.Millisecond)
		peer.SetControl(pinio.ATN.Bit(), pinio.ATN.Bit(), pinio.ModeDirection)
		peer.SetControl(0, pinio.ATN.Bit(), pinio.ModeLevel)
	}()
	start := time.Now()
	_, _, err := dev.ReadByte(false)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("ReadByte = %v, want *HandshakeError", err)
	}
	if he.Phase != PhaseAbortATN || !he.Aborted {
		t.Fatalf("Phase = %d Aborted = %t, want %d true", he.Phase, he.Aborted, PhaseAbortATN)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("abort took %v, should interrupt well before the timeout", elapsed)
	}
}

func TestDeviceReadAbortsOnIFC(t *testing.T) {
	b := sim.NewBus()
	dev := NewDevice(b.Node("dev"), 9, 500)
	if err := dev.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	peer := b.Node("ctl")
	peer.SetControl(pinio.IFC.Bit(), pinio.IFC.Bit(), pinio.ModeDirection)
	peer.SetControl(0, pinio.IFC.Bit(), pinio.ModeLevel)
	_, _, err := dev.ReadByte(false)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("ReadByte = %v, want *HandshakeError", err)
	}
	if he.Phase != PhaseAbortIFC || !he.Aborted {
		t.Fatalf("Phase = %d Aborted = %t, want %d true", he.Phase, he.Aborted, PhaseAbortIFC)
	}
}

func TestControllerReadIgnoresATN(t *testing.T) {
	// Only the device role aborts on line changes; a controller read runs
	// to its timeout even when another node pulls ATN low mid-read.
	b := sim.NewBus()
	ctl := NewController(b.Node("ctl"), 0, 25)
	if err := ctl.SetControls(CCMS); err != nil {
		t.Fatal(err)
	}
	if err := ctl.SetControls(CLAS); err != nil {
		t.Fatal(err)
	}
	peer := b.Node("dev")
	go func() {
		time.Sleep(2 * time.Millisecond)
		peer.SetControl(pinio.ATN.Bit(), pinio.ATN.Bit(), pinio.ModeDirection)
		peer.SetControl(0, pinio.ATN.Bit(), pinio.ModeLevel)
	}()
	_, _, err := ctl.ReadByte(false)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("ReadByte = %v, want *HandshakeError", err)
	}
	if he.Aborted {
		t.Fatal("controller read reported an abort")
	}
}
