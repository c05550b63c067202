// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// MinAddress and MaxAddress bound a valid GPIB primary address.
const (
	MinAddress = 1
	MaxAddress = 30
)

// SerialPollResult is one target's response to a serial poll.
type SerialPollResult struct {
	Address byte
	Status  byte
}

// RQS reports whether bit 6 (the service-request bit) is set.
func (r SerialPollResult) RQS() bool { return r.Status&0x40 != 0 }

// String formats a result as "SRQ:<address>,<decimal status>", the line
// printed on the host link for each requester found by "spoll all".
func (r SerialPollResult) String() string {
	return fmt.Sprintf("SRQ:%d,%d", r.Address, r.Status)
}

// serialPollSequence runs the shared serial-poll prologue and epilogue:
// UNL; LAD+own; SPE; <poll body>; SPD; UNT; UNL; CIDS.
func (e *Engine) serialPollSequence(body func() error) error {
	if e.Role != Controller {
		return fmt.Errorf("bus: serial poll requires controller role")
	}
	if err := e.sendCommand(CmdUNL); err != nil {
		return err
	}
	if err := e.sendCommand(LAD(e.OwnAddress)); err != nil {
		return err
	}
	if err := e.sendCommand(CmdSPE); err != nil {
		return err
	}
	bodyErr := body()
	if bodyErr != nil {
		e.ReturnToIdle()
		return bodyErr
	}
	if err := e.sendCommand(CmdSPD); err != nil {
		return err
	}
	if err := e.sendCommand(CmdUNT); err != nil {
		return err
	}
	if err := e.sendCommand(CmdUNL); err != nil {
		return err
	}
	e.DeviceAddressed = false
	return e.SetControls(CIDS)
}

// pollOne performs the TAD+addr / CLAS / read-one-status-byte / back-to-CCMS
// portion of a serial poll for a single target, assuming UNL/LAD+own/SPE
// have already been sent and the engine is currently in CCMS.
func (e *Engine) pollOne(addr byte) (byte, error) {
	if err := e.sendCommand(TAD(addr)); err != nil {
		return 0, err
	}
	if err := e.SetControls(CLAS); err != nil {
		return 0, err
	}
	b, _, err := e.ReadByte(false)
	if err != nil {
		return 0, err
	}
	if err := e.SetControls(CCMS); err != nil {
		return 0, err
	}
	return b, nil
}

// SerialPollOne polls a single address and returns its status byte.
func (e *Engine) SerialPollOne(addr byte) (SerialPollResult, error) {
	var r SerialPollResult
	err := e.serialPollSequence(func() error {
		b, err := e.pollOne(addr)
		r = SerialPollResult{Address: addr, Status: b}
		return err
	})
	return r, err
}

// SerialPollMany polls each address in addrs in order, returning one result
// per address regardless of RQS.
func (e *Engine) SerialPollMany(addrs []byte) ([]SerialPollResult, error) {
	var results []SerialPollResult
	err := e.serialPollSequence(func() error {
		for _, addr := range addrs {
			b, err := e.pollOne(addr)
			if err != nil {
				return err
			}
			results = append(results, SerialPollResult{Address: addr, Status: b})
		}
		return nil
	})
	return results, err
}

// SerialPollAll polls every address 1..30 and returns only the responses
// with RQS set, i.e. the devices actually requesting service.
func (e *Engine) SerialPollAll() ([]SerialPollResult, error) {
	var results []SerialPollResult
	err := e.serialPollSequence(func() error {
		for addr := byte(MinAddress); addr <= MaxAddress; addr++ {
			b, err := e.pollOne(addr)
			if err != nil {
				var he *HandshakeError
				// A target that is not present never answers; skip it and
				// keep polling the rest of the range.
				if errors.As(err, &he) && !he.Aborted {
					if err := e.SetControls(CCMS); err != nil {
						return err
					}
					continue
				}
				return err
			}
			if (SerialPollResult{Status: b}).RQS() {
				results = append(results, SerialPollResult{Address: addr, Status: b})
			}
		}
		return nil
	})
	return results, err
}

// ParallelPoll asserts ATN and EOI together from CIDS, holds them for at
// least 20µs, samples the data bus without a handshake, releases both, and
// returns the sampled byte.
func (e *Engine) ParallelPoll() (byte, error) {
	if e.Role != Controller {
		return 0, fmt.Errorf("bus: parallel poll requires controller role")
	}
	e.ReturnToIdle()
	e.Adapter.SetControl(0, pinio.ATN.Bit()|pinio.EOI.Bit(), pinio.ModeLevel)
	time.Sleep(20 * time.Microsecond)
	b := e.Adapter.ReadDataBus()
	e.Adapter.SetControl(pinio.ATN.Bit()|pinio.EOI.Bit(), pinio.ATN.Bit()|pinio.EOI.Bit(), pinio.ModeLevel)
	e.ReturnToIdle()
	return b, nil
}
