// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bus implements the GPIB bus engine: the bus-role state machine,
// the byte-level three-wire handshake, the multiline command set with its
// addressing sequences, and the serial/parallel poll procedures.
package bus

import "github.com/nilsager/gpibctl/bus/pinio"

// Engine owns one pin adapter and the ephemeral bus-role state: the current
// State, the device-addressed flag, and the advisory attention/SRQ Flags.
// Nothing here is heap-allocated after construction beyond the Flags'
// internal atomics.
type Engine struct {
	Adapter pinio.Adapter
	Role    Role
	State   State

	// OwnAddress is this node's own primary GPIB address: the address used
	// in TAD+own/LAD+own when addressing a remote party (controller role),
	// or the address this node answers to (device role).
	OwnAddress byte

	// RTMOms is the per-handshake-phase timeout budget in milliseconds.
	RTMOms int

	// DeviceAddressed is true iff the last addressing command since boot or
	// Unaddress was LAD+n or TAD+n.
	DeviceAddressed bool

	Flags *Flags
}

// NewController returns an Engine in controller role. It pulses IFC to take
// charge of the bus, leaving the engine in CIDS.
func NewController(a pinio.Adapter, ownAddress byte, rtmoMs int) *Engine {
	e := &Engine{Adapter: a, Role: Controller, OwnAddress: ownAddress, RTMOms: rtmoMs, Flags: &Flags{}}
	e.enter(CINI)
	e.IFCPulse()
	e.enter(CIDS)
	return e
}

// NewDevice returns an Engine in device role, idle in DIDS with every line
// high-impedance, ready to honor ATN.
func NewDevice(a pinio.Adapter, ownAddress byte, rtmoMs int) *Engine {
	e := &Engine{Adapter: a, Role: Device, OwnAddress: ownAddress, RTMOms: rtmoMs, Flags: &Flags{}}
	e.enter(DINI)
	e.enter(DIDS)
	return e
}

// ReturnToIdle forces the engine back to its role's idle state (CIDS or
// DIDS). Every bus operation, successful or not, ends by coming back here.
func (e *Engine) ReturnToIdle() {
	e.enter(e.idle())
}

// SwitchRole changes the engine's role and walks it from the new role's
// init state into its idle state. Callers are expected to have already
// called Stop().
func (e *Engine) SwitchRole(role Role, ownAddress byte) {
	e.Role = role
	e.OwnAddress = ownAddress
	e.DeviceAddressed = false
	if role == Controller {
		e.enter(CINI)
		e.IFCPulse()
	} else {
		e.enter(DINI)
	}
	e.enter(e.idle())
}

// assertLine switches a single control line to output and pulls it low.
func (e *Engine) assertLine(line pinio.Line) {
	e.Adapter.SetControl(line.Bit(), line.Bit(), pinio.ModeDirection)
	e.Adapter.SetControl(0, line.Bit(), pinio.ModeLevel)
}

// releaseLine switches a single control line back to input-pullup.
func (e *Engine) releaseLine(line pinio.Line) {
	e.Adapter.SetControl(0, line.Bit(), pinio.ModeDirection)
}
