// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/nilsager/gpibctl/bus/pinio/sim"
)

// acceptor drains every byte a controller puts on the bus from a device in
// DLAS, retrying through the ATN-transition aborts that separate command
// bursts from data. Stop it by letting its ReadByte time out.
type acceptor struct {
	mu    sync.Mutex
	bytes []byte
	eois  []bool
	done  chan struct{}
}

func startAcceptor(t *testing.T, dev *Engine) *acceptor {
	t.Helper()
	if err := dev.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	a := &acceptor{done: make(chan struct{})}
	go func() {
		defer close(a.done)
		for {
			b, eoi, err := dev.ReadByte(true)
			if err != nil {
				var he *HandshakeError
				if errors.As(err, &he) && he.Aborted {
					continue
				}
				return
			}
			a.mu.Lock()
			a.bytes = append(a.bytes, b)
			a.eois = append(a.eois, eoi)
			a.mu.Unlock()
		}
	}()
	return a
}

func (a *acceptor) wait() ([]byte, []bool) {
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes, a.eois
}

func newPair(t *testing.T) (*Engine, *Engine) {
	t.Helper()
	b := sim.NewBus()
	ctl := NewController(b.Node("ctl"), 0, 100)
	dev := NewDevice(b.Node("dev"), 9, 100)
	return ctl, dev
}

func TestAddressToListen(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.AddressToListen(9); err != nil {
		t.Fatalf("AddressToListen: %v", err)
	}
	if ctl.State != CCMS {
		t.Fatalf("State = %s, want CCMS (ready to chain into CTAS)", ctl.State)
	}
	if !ctl.DeviceAddressed {
		t.Fatal("DeviceAddressed = false after addressing")
	}
	if err := ctl.SetControls(CIDS); err != nil {
		t.Fatal(err)
	}

	got, _ := a.wait()
	want := []byte{CmdUNL, TAD(0), LAD(9)}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestAddressToTalk(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.AddressToTalk(9); err != nil {
		t.Fatalf("AddressToTalk: %v", err)
	}
	if err := ctl.SetControls(CIDS); err != nil {
		t.Fatal(err)
	}

	got, _ := a.wait()
	want := []byte{CmdUNL, LAD(0), TAD(9)}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestUnaddress(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.AddressToListen(9); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Unaddress(); err != nil {
		t.Fatalf("Unaddress: %v", err)
	}
	if ctl.State != CIDS {
		t.Fatalf("State = %s, want CIDS", ctl.State)
	}
	if ctl.DeviceAddressed {
		t.Fatal("DeviceAddressed = true after Unaddress")
	}

	got, _ := a.wait()
	want := []byte{CmdUNL, TAD(0), LAD(9), CmdUNL, CmdUNT}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestSelectedDeviceClear(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.SelectedDeviceClear(9); err != nil {
		t.Fatalf("SelectedDeviceClear: %v", err)
	}
	if ctl.State != CIDS {
		t.Fatalf("State = %s, want CIDS", ctl.State)
	}

	got, _ := a.wait()
	want := []byte{CmdUNL, TAD(0), LAD(9), CmdSDC, CmdUNL, CmdUNT}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestGroupExecuteTrigger(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.GroupExecuteTrigger(9); err != nil {
		t.Fatalf("GroupExecuteTrigger: %v", err)
	}
	got, _ := a.wait()
	want := []byte{CmdUNL, TAD(0), LAD(9), CmdGET, CmdUNL, CmdUNT}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestDeviceClearAll(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.DeviceClearAll(); err != nil {
		t.Fatalf("DeviceClearAll: %v", err)
	}
	if ctl.State != CIDS {
		t.Fatalf("State = %s, want CIDS", ctl.State)
	}
	got, _ := a.wait()
	if len(got) != 1 || got[0] != CmdDCL {
		t.Fatalf("wire bytes = % x, want just DCL", got)
	}
}

func TestLocalLockoutOne(t *testing.T) {
	ctl, dev := newPair(t)
	a := startAcceptor(t, dev)

	if err := ctl.LocalLockoutOne(9); err != nil {
		t.Fatalf("LocalLockoutOne: %v", err)
	}
	got, _ := a.wait()
	want := []byte{CmdUNL, TAD(0), LAD(9), CmdLLO, CmdUNL, CmdUNT}
	if string(got) != string(want) {
		t.Fatalf("wire bytes = % x, want % x", got, want)
	}
}

func TestCommandFailureForcesIdle(t *testing.T) {
	// No listener on the bus at all: the command byte times out and the
	// engine must come back to CIDS on its own.
	b := sim.NewBus()
	ctl := NewController(b.Node("ctl"), 0, 25)
	if err := ctl.AddressToListen(9); err == nil {
		t.Fatal("AddressToListen succeeded with nobody on the bus")
	}
	if ctl.State != CIDS {
		t.Fatalf("State = %s after failed addressing, want CIDS", ctl.State)
	}
	if ctl.DeviceAddressed {
		t.Fatal("DeviceAddressed = true after failed addressing")
	}
}
