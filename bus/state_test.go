// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"testing"

	"github.com/nilsager/gpibctl/bus/pinio"
	"github.com/nilsager/gpibctl/bus/pinio/sim"
)

func TestControllerBootsIdle(t *testing.T) {
	b := sim.NewBus()
	e := NewController(b.Node("ctl"), 0, 50)
	if e.State != CIDS {
		t.Fatalf("State = %s, want CIDS", e.State)
	}
	peer := b.Node("peer")
	for _, l := range []pinio.Line{pinio.ATN, pinio.EOI, pinio.SRQ, pinio.IFC, pinio.REN} {
		if got := peer.ReadControl(l); got != pinio.High {
			t.Errorf("ReadControl(%s) = %v, want High in CIDS", l, got)
		}
	}
}

func TestDeviceBootsIdle(t *testing.T) {
	b := sim.NewBus()
	e := NewDevice(b.Node("dev"), 5, 50)
	if e.State != DIDS {
		t.Fatalf("State = %s, want DIDS", e.State)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{CINI, CIDS, true},
		{CIDS, CCMS, true},
		{CIDS, CTAS, false},
		{CIDS, CLAS, false},
		{CCMS, CTAS, true},
		{CCMS, CLAS, true},
		{CCMS, CIDS, true},
		{CTAS, CCMS, true},
		{CTAS, CIDS, false},
		{CLAS, CCMS, true},
		{DINI, DIDS, true},
		{DIDS, DLAS, true},
		{DIDS, DTAS, true},
		{DLAS, DIDS, true},
		{DLAS, DTAS, false},
		{DTAS, DIDS, true},
		{CIDS, DIDS, false},
		{DIDS, CIDS, false},
	}
	for _, tt := range tests {
		if got := legal(tt.from, tt.to); got != tt.ok {
			t.Errorf("legal(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestSetControlsRejectsIllegal(t *testing.T) {
	b := sim.NewBus()
	e := NewController(b.Node("ctl"), 0, 50)
	if err := e.SetControls(CTAS); err == nil {
		t.Fatal("SetControls(CTAS) from CIDS succeeded, want error")
	}
	if e.State != CIDS {
		t.Fatalf("State = %s after rejected transition, want CIDS", e.State)
	}
}

func TestCommandStateAssertsATN(t *testing.T) {
	b := sim.NewBus()
	e := NewController(b.Node("ctl"), 0, 50)
	if err := e.SetControls(CCMS); err != nil {
		t.Fatal(err)
	}
	peer := b.Node("peer")
	if got := peer.ReadControl(pinio.ATN); got != pinio.Low {
		t.Fatalf("ReadControl(ATN) = %v in CCMS, want Low", got)
	}
	if err := e.SetControls(CTAS); err != nil {
		t.Fatal(err)
	}
	if got := peer.ReadControl(pinio.ATN); got != pinio.High {
		t.Fatalf("ReadControl(ATN) = %v in CTAS, want High", got)
	}
}

func TestListenStatesHoldOffTalker(t *testing.T) {
	b := sim.NewBus()
	e := NewDevice(b.Node("dev"), 5, 50)
	if err := e.SetControls(DLAS); err != nil {
		t.Fatal(err)
	}
	peer := b.Node("peer")
	if got := peer.ReadControl(pinio.NRFD); got != pinio.Low {
		t.Errorf("ReadControl(NRFD) = %v in DLAS, want Low", got)
	}
	if got := peer.ReadControl(pinio.NDAC); got != pinio.Low {
		t.Errorf("ReadControl(NDAC) = %v in DLAS, want Low", got)
	}
}

func TestStopReleasesEverything(t *testing.T) {
	b := sim.NewBus()
	e := NewController(b.Node("ctl"), 0, 50)
	if err := e.SetControls(CCMS); err != nil {
		t.Fatal(err)
	}
	e.Stop()
	peer := b.Node("peer")
	for l := pinio.ATN; l <= pinio.IFC; l++ {
		if got := peer.ReadControl(l); got != pinio.High {
			t.Errorf("ReadControl(%s) = %v after Stop, want High", l, got)
		}
	}
	if e.State != CINI {
		t.Fatalf("State = %s after Stop, want CINI", e.State)
	}
}

func TestSwitchRole(t *testing.T) {
	b := sim.NewBus()
	e := NewController(b.Node("ctl"), 0, 50)
	e.DeviceAddressed = true
	e.Stop()
	e.SwitchRole(Device, 12)
	if e.Role != Device || e.State != DIDS {
		t.Fatalf("Role = %s State = %s, want Device DIDS", e.Role, e.State)
	}
	if e.OwnAddress != 12 {
		t.Fatalf("OwnAddress = %d, want 12", e.OwnAddress)
	}
	if e.DeviceAddressed {
		t.Fatal("DeviceAddressed survived a role switch")
	}
	e.Stop()
	e.SwitchRole(Controller, 0)
	if e.Role != Controller || e.State != CIDS {
		t.Fatalf("Role = %s State = %s, want Controller CIDS", e.Role, e.State)
	}
}
