// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"fmt"
	"time"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// Phase identifies which handshake wait timed out or aborted. Read and
// write share one numbering: 1-2 are the read-side waits, 3-4 are the
// device-role aborts that can interrupt either direction, 5-8 are the
// write-side waits, 9 is a generic abort.
type Phase int

const (
	PhaseReadWaitDAVLow Phase = iota + 1
	PhaseReadWaitDAVHigh
	PhaseAbortIFC
	PhaseAbortATN
	PhaseWriteWaitNDACLow
	PhaseWriteWaitNRFDHigh
	PhaseWriteWaitNRFDLow
	PhaseWriteWaitNDACHigh
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseReadWaitDAVLow:
		return "timeout waiting for talker"
	case PhaseReadWaitDAVHigh:
		return "timeout waiting for talker to release DAV"
	case PhaseAbortIFC:
		return "aborted: IFC asserted"
	case PhaseAbortATN:
		return "aborted: ATN transition"
	case PhaseWriteWaitNDACLow:
		return "timeout waiting for listener"
	case PhaseWriteWaitNRFDHigh:
		return "timeout waiting for listener ready"
	case PhaseWriteWaitNRFDLow:
		return "timeout waiting for handshake to start"
	case PhaseWriteWaitNDACHigh:
		return "timeout waiting for transfer to complete"
	default:
		return "aborted"
	}
}

// HandshakeError reports which Phase failed and whether it was a real
// timeout or a protocol-initiated abort (IFC or an ATN transition seen in
// device role).
type HandshakeError struct {
	Phase   Phase
	Aborted bool
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("gpib: %s (phase %d)", e.Phase, int(e.Phase))
}

// waitLine polls line until it equals want or the budget elapses. In device
// role it additionally aborts if IFC asserts or ATN changes from the level
// it had on entry, so the controller can interrupt the device at any time.
func (e *Engine) waitLine(line pinio.Line, want pinio.Level, budget time.Duration, onTimeout, onAbortIFC, onAbortATN Phase) error {
	tick := time.NewTicker(20 * time.Microsecond)
	defer tick.Stop()
	deadline := time.Now().Add(budget)
	startATN := e.Adapter.ReadControl(pinio.ATN)
	for {
		if e.Adapter.ReadControl(line) == want {
			return nil
		}
		if e.Role == Device {
			if e.Adapter.ReadControl(pinio.IFC) == pinio.Low {
				return &HandshakeError{Phase: onAbortIFC, Aborted: true}
			}
			if cur := e.Adapter.ReadControl(pinio.ATN); cur != startATN {
				return &HandshakeError{Phase: onAbortATN, Aborted: true}
			}
		}
		if time.Now().After(deadline) {
			return &HandshakeError{Phase: onTimeout}
		}
		<-tick.C
	}
}

// ReadByte performs one 3-wire handshake byte read, caller already in CLAS
// or DLAS with NRFD/NDAC asserted. wantEOI requests that EOI be sampled;
// the returned bool reports whether EOI was asserted with this byte.
func (e *Engine) ReadByte(wantEOI bool) (byte, bool, error) {
	rtmo := time.Duration(e.RTMOms) * time.Millisecond

	// 1. Release NRFD to announce readiness.
	e.Adapter.SetControl(pinio.Mask(pinio.NRFD.Bit()), pinio.NRFD.Bit(), pinio.ModeLevel)
	// 2. Wait for DAV low (talker signals data valid).
	if err := e.waitLine(pinio.DAV, pinio.Low, rtmo, PhaseReadWaitDAVLow, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return 0, false, err
	}
	// 3. Re-assert NRFD while the byte is being read.
	e.Adapter.SetControl(0, pinio.NRFD.Bit(), pinio.ModeLevel)
	// 4. Sample EOI and the data bus.
	var eoi bool
	if wantEOI {
		eoi = e.Adapter.ReadControl(pinio.EOI) == pinio.Low
	}
	b := e.Adapter.ReadDataBus()
	// 5. Release NDAC to signal acceptance.
	e.Adapter.SetControl(pinio.Mask(pinio.NDAC.Bit()), pinio.NDAC.Bit(), pinio.ModeLevel)
	// 6. Wait for DAV high (talker withdraws data).
	if err := e.waitLine(pinio.DAV, pinio.High, rtmo, PhaseReadWaitDAVHigh, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return 0, false, err
	}
	// 7. Re-assert NDAC to rearm for the next byte.
	e.Adapter.SetControl(0, pinio.NDAC.Bit(), pinio.ModeLevel)
	logf("gpib: rx %#02x eoi=%t", b, eoi)
	return b, eoi, nil
}

// WriteByte performs one 3-wire handshake byte write, caller already in
// CTAS, CCMS or DTAS. isLastByte together with eoiOnSend decides whether
// EOI is asserted alongside DAV.
func (e *Engine) WriteByte(b byte, isLastByte, eoiOnSend bool) error {
	rtmo := time.Duration(e.RTMOms) * time.Millisecond

	// 1. Wait for NDAC low (at least one listener attending).
	if err := e.waitLine(pinio.NDAC, pinio.Low, rtmo, PhaseWriteWaitNDACLow, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return err
	}
	// 2. Wait for NRFD high (all listeners ready for new data).
	if err := e.waitLine(pinio.NRFD, pinio.High, rtmo, PhaseWriteWaitNRFDHigh, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return err
	}
	// 3. Drive the data, then assert DAV (and EOI with the final byte).
	e.Adapter.WriteDataBus(b)
	assertEOI := isLastByte && eoiOnSend
	if assertEOI {
		e.Adapter.SetControl(0, pinio.EOI.Bit(), pinio.ModeLevel)
	}
	e.Adapter.SetControl(0, pinio.DAV.Bit(), pinio.ModeLevel)
	// 4. Wait for NRFD low (handshake started).
	if err := e.waitLine(pinio.NRFD, pinio.Low, rtmo, PhaseWriteWaitNRFDLow, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return err
	}
	// 5. Wait for NDAC high (data accepted).
	if err := e.waitLine(pinio.NDAC, pinio.High, rtmo, PhaseWriteWaitNDACHigh, PhaseAbortIFC, PhaseAbortATN); err != nil {
		return err
	}
	// 6. Release DAV (and EOI), clear the data bus.
	e.Adapter.SetControl(pinio.Mask(pinio.DAV.Bit()|pinio.EOI.Bit()), pinio.DAV.Bit()|pinio.EOI.Bit(), pinio.ModeLevel)
	e.Adapter.WriteDataBus(0)
	logf("gpib: tx %#02x eoi=%t", b, assertEOI)
	return nil
}
