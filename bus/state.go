// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"fmt"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// Role is the bus role a node is configured for: controller-in-charge or
// addressable device. A role switch always goes through Stop() first, with
// every line returned to input-pullup.
type Role int

const (
	Device Role = iota
	Controller
)

func (r Role) String() string {
	if r == Controller {
		return "Controller"
	}
	return "Device"
}

// State is one of the nine bus-role states. There are no terminal states;
// every state but CINI/DINI can be re-entered.
type State int

const (
	CINI State = iota // controller power-on, not yet IFC'd
	CIDS              // controller idle
	CCMS              // controller sending a multiline command (ATN asserted)
	CTAS              // controller talking to an addressed listener
	CLAS              // controller listening to an addressed talker
	DINI              // device power-on, all lines high-impedance
	DIDS              // device idle, ready to honor ATN
	DTAS              // device actively talking
	DLAS              // device actively listening
)

func (s State) String() string {
	switch s {
	case CINI:
		return "CINI"
	case CIDS:
		return "CIDS"
	case CCMS:
		return "CCMS"
	case CTAS:
		return "CTAS"
	case CLAS:
		return "CLAS"
	case DINI:
		return "DINI"
	case DIDS:
		return "DIDS"
	case DTAS:
		return "DTAS"
	case DLAS:
		return "DLAS"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// legal reports whether from -> to is a permitted transition. Role switches
// are handled separately by Stop(); legal never allows crossing roles
// directly. CCMS is the hub on the controller side: data transfer states are
// entered from it and return to it, so addressing commands and payload
// transfers can chain without dropping ATN ownership.
func legal(from, to State) bool {
	switch from {
	case CINI:
		return to == CIDS
	case CIDS:
		return to == CCMS
	case CCMS:
		return to == CIDS || to == CTAS || to == CLAS
	case CTAS:
		return to == CCMS
	case CLAS:
		return to == CCMS
	case DINI:
		return to == DIDS
	case DIDS:
		return to == DLAS || to == DTAS
	case DLAS:
		return to == DIDS
	case DTAS:
		return to == DIDS
	default:
		return false
	}
}

// lineSetup describes the wire configuration a state establishes on entry.
// owned lines are driven as outputs; of those, asserted is the subset pulled
// low immediately, the rest held released (high) until the handshake
// routines drive them per-byte (NRFD/NDAC while listening, DAV/EOI while
// talking). Everything not owned is released to input-pullup.
type lineSetup struct {
	owned    pinio.Mask
	asserted pinio.Mask
}

var setups = map[State]lineSetup{
	// CINI: all controller lines driven to idle.
	CINI: {owned: pinio.AllControlLines},
	// CIDS: nothing asserted; the controller keeps ATN/EOI/SRQ/REN/IFC
	// driven high so no floating line can glitch the bus.
	CIDS: {owned: pinio.ATN.Bit() | pinio.EOI.Bit() | pinio.SRQ.Bit() | pinio.REN.Bit() | pinio.IFC.Bit()},
	// CCMS: ATN asserted; DAV owned for the upcoming command byte.
	CCMS: {owned: pinio.ATN.Bit() | pinio.EOI.Bit() | pinio.SRQ.Bit() | pinio.REN.Bit() | pinio.IFC.Bit() | pinio.DAV.Bit(), asserted: pinio.ATN.Bit()},
	// CTAS: ATN released; DAV/EOI owned for sending data.
	CTAS: {owned: pinio.ATN.Bit() | pinio.EOI.Bit() | pinio.SRQ.Bit() | pinio.REN.Bit() | pinio.IFC.Bit() | pinio.DAV.Bit()},
	// CLAS: listener side of the handshake; NRFD/NDAC asserted so the
	// addressed talker holds off until ReadByte is ready.
	CLAS: {owned: pinio.ATN.Bit() | pinio.EOI.Bit() | pinio.SRQ.Bit() | pinio.REN.Bit() | pinio.IFC.Bit() | pinio.NRFD.Bit() | pinio.NDAC.Bit(), asserted: pinio.NRFD.Bit() | pinio.NDAC.Bit()},
	// DINI: all device lines high-impedance.
	DINI: {},
	// DIDS: idle, ready to honor ATN; nothing driven.
	DIDS: {},
	// DLAS: actively listening; NRFD and NDAC asserted until the next
	// ReadByte walks them through the handshake.
	DLAS: {owned: pinio.NRFD.Bit() | pinio.NDAC.Bit(), asserted: pinio.NRFD.Bit() | pinio.NDAC.Bit()},
	// DTAS: actively talking; data plus DAV (and EOI when sending).
	DTAS: {owned: pinio.DAV.Bit() | pinio.EOI.Bit()},
}

// enter drives the lines for target and records the new state.
func (e *Engine) enter(target State) {
	s := setups[target]
	e.Adapter.SetControl(s.owned, pinio.AllControlLines, pinio.ModeDirection)
	e.Adapter.SetControl(s.owned&^s.asserted, s.owned, pinio.ModeLevel)
	e.State = target
}

// SetControls transitions the engine to target, the only way upper layers
// change bus state. It returns an error if the transition is not legal from
// the current state.
func (e *Engine) SetControls(target State) error {
	if !legal(e.State, target) {
		return fmt.Errorf("bus: illegal transition %s -> %s", e.State, target)
	}
	e.enter(target)
	return nil
}

// Stop releases every control line to input-pullup, as required before a
// role switch.
func (e *Engine) Stop() {
	e.Adapter.SetControl(0, pinio.AllControlLines, pinio.ModeDirection)
	e.State = DINI
	if e.Role == Controller {
		e.State = CINI
	}
}

// idle returns the quiescent state for the engine's current role.
func (e *Engine) idle() State {
	if e.Role == Controller {
		return CIDS
	}
	return DIDS
}
