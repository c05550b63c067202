// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"fmt"
	"time"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// IEEE-488 multiline command bytes.
const (
	CmdGTL byte = 0x01 // go to local
	CmdSDC byte = 0x04 // selected device clear
	CmdGET byte = 0x08 // group execute trigger
	CmdLLO byte = 0x11 // local lockout
	CmdDCL byte = 0x14 // universal device clear
	CmdPPU byte = 0x15 // parallel-poll unconfigure
	CmdSPE byte = 0x18 // serial poll enable
	CmdSPD byte = 0x19 // serial poll disable
	CmdUNL byte = 0x3F // unlisten
	CmdUNT byte = 0x5F // untalk

	ladBase byte = 0x20
	tadBase byte = 0x40
	msaBase byte = 0x60
)

// LAD returns the listen-address command byte for primary address addr (1..30).
func LAD(addr byte) byte { return ladBase + addr }

// TAD returns the talk-address command byte for primary address addr (1..30).
func TAD(addr byte) byte { return tadBase + addr }

// MSA returns the secondary-address command byte for addr (0..30, sent as 96..126).
func MSA(addr byte) byte { return msaBase + addr }

// sendCommand writes one multiline command byte while in, or entering,
// CCMS. It does not return to CIDS afterward: CCMS is the hub state from
// which a caller may chain further commands, start a data transfer
// (CTAS/CLAS), or explicitly return to CIDS.
func (e *Engine) sendCommand(b byte) error {
	if e.Role != Controller {
		return fmt.Errorf("bus: sendCommand requires controller role")
	}
	if e.State != CCMS {
		if err := e.SetControls(CCMS); err != nil {
			return err
		}
	}
	if err := e.WriteByte(b, true, false); err != nil {
		e.ReturnToIdle()
		return err
	}
	return nil
}

// SendRaw writes one multiline command byte directly, backing the raw
// mla/mta/msa/unl/unt host commands. The engine is left in CCMS; callers
// that want to return to idle call ReturnToIdle or SetControls(CIDS).
// DeviceAddressed follows the byte sent: set by LAD+n/TAD+n, cleared by
// UNL/UNT.
func (e *Engine) SendRaw(b byte) error {
	if err := e.sendCommand(b); err != nil {
		return err
	}
	switch {
	case b == CmdUNL || b == CmdUNT:
		e.DeviceAddressed = false
	case b >= ladBase && b < CmdUNL, b >= tadBase && b < CmdUNT:
		e.DeviceAddressed = true
	}
	return nil
}

// AddressToListen performs UNL, TAD+ownAddress (controller takes talk), then
// LAD+addr. The engine is left in CCMS so the caller can proceed directly
// into CTAS to send data.
func (e *Engine) AddressToListen(addr byte) error {
	if err := e.sendCommand(CmdUNL); err != nil {
		return err
	}
	if err := e.sendCommand(TAD(e.OwnAddress)); err != nil {
		return err
	}
	if err := e.sendCommand(LAD(addr)); err != nil {
		return err
	}
	e.DeviceAddressed = true
	return nil
}

// AddressToTalk performs UNL, LAD+ownAddress, then TAD+addr. The engine is
// left in CCMS so the caller can proceed directly into CLAS to read data.
func (e *Engine) AddressToTalk(addr byte) error {
	if err := e.sendCommand(CmdUNL); err != nil {
		return err
	}
	if err := e.sendCommand(LAD(e.OwnAddress)); err != nil {
		return err
	}
	if err := e.sendCommand(TAD(addr)); err != nil {
		return err
	}
	e.DeviceAddressed = true
	return nil
}

// Unaddress performs UNL, UNT, clears DeviceAddressed, and returns to CIDS.
func (e *Engine) Unaddress() error {
	if err := e.sendCommand(CmdUNL); err != nil {
		return err
	}
	if err := e.sendCommand(CmdUNT); err != nil {
		return err
	}
	e.DeviceAddressed = false
	return e.SetControls(CIDS)
}

// IFCPulse drives IFC low for 150µs then releases it, placing all devices
// in their idle state and making this node controller-in-charge.
func (e *Engine) IFCPulse() {
	const pulse = 150 * time.Microsecond
	e.assertLine(pinio.IFC)
	time.Sleep(pulse)
	e.releaseLine(pinio.IFC)
}

// SelectedDeviceClear addresses addr to listen, sends SDC, unaddresses, and
// returns to CIDS.
func (e *Engine) SelectedDeviceClear(addr byte) error {
	return e.addressSendUnaddress(addr, CmdSDC)
}

// GoToLocal addresses addr to listen, sends GTL, unaddresses.
func (e *Engine) GoToLocal(addr byte) error {
	return e.addressSendUnaddress(addr, CmdGTL)
}

// GroupExecuteTrigger addresses addr to listen, sends GET, unaddresses.
func (e *Engine) GroupExecuteTrigger(addr byte) error {
	return e.addressSendUnaddress(addr, CmdGET)
}

func (e *Engine) addressSendUnaddress(addr byte, cmd byte) error {
	if err := e.AddressToListen(addr); err != nil {
		return err
	}
	if err := e.sendCommand(cmd); err != nil {
		return err
	}
	return e.Unaddress()
}

// LocalLockoutOne addresses addr to listen, sends LLO, unaddresses.
func (e *Engine) LocalLockoutOne(addr byte) error {
	return e.addressSendUnaddress(addr, CmdLLO)
}

// LocalLockout sends LLO with no addressing change, returning to CIDS.
func (e *Engine) LocalLockout() error {
	if err := e.sendCommand(CmdLLO); err != nil {
		return err
	}
	return e.SetControls(CIDS)
}

// DeviceClearAll sends the universal DCL with no addressing, returning to
// CIDS.
func (e *Engine) DeviceClearAll() error {
	if err := e.sendCommand(CmdDCL); err != nil {
		return err
	}
	return e.SetControls(CIDS)
}
