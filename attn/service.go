// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package attn implements the device-role attention service: the handler
// triggered by an ATN falling edge that reads and classifies the command
// bytes a controller sends, then honors addressing and queued commands once
// ATN releases. It is the device-role counterpart to the controller-role
// sequences in package bus.
package attn

import (
	"errors"

	"github.com/nilsager/gpibctl/bus"
	"github.com/nilsager/gpibctl/bus/pinio"
)

// bufferSize bounds one ATN-asserted command burst. Controllers send a
// handful of bytes per burst; 35 covers the longest chained addressing
// sequence seen in practice.
const bufferSize = 35

// StatusProvider supplies and updates the serial-poll status byte,
// decoupling attn from the config package's storage.
type StatusProvider interface {
	StatusByte() byte
	ClearRQS()
}

// ResetFunc performs a device's selected-device-clear soft reset (SDC),
// supplied by the caller since its shape is device-specific.
type ResetFunc func()

// Service runs the attention handler for one device-role Engine.
type Service struct {
	Engine *bus.Engine
	Status StatusProvider
	Reset  ResetFunc

	// Promiscuous makes the device listen regardless of addressing.
	Promiscuous bool

	addressedToListen bool
	addressedToTalk   bool

	// serialPollEnabled is armed by SPE and cleared by SPD. While armed, an
	// addressed talker answers with its status byte instead of data.
	serialPollEnabled bool
}

// AddressedToListen reports whether the last command burst left this device
// addressed as a listener.
func (s *Service) AddressedToListen() bool { return s.addressedToListen }

// AddressedToTalk reports whether the last command burst left this device
// addressed as a talker.
func (s *Service) AddressedToTalk() bool { return s.addressedToTalk }

// queuedCommand captures a primary command to execute once ATN releases.
type queuedCommand int

const (
	queueNone queuedCommand = iota
	queueSPE
	queueSPD
	queueSDC
	queueGTL
	queueLLO
	queueDCL
	queueGET
)

// burst summarizes one ATN-asserted command burst.
type burst struct {
	unlisten bool
	untalk   bool
	listen   bool // our own LAD appeared
	talk     bool // our own TAD appeared
	otherTAD bool // some other device's TAD appeared
	queued   queuedCommand
}

// Run handles one complete ATN assertion: reading command bytes while ATN
// is asserted, then acting once it releases. Callers invoke Run each time
// Flags.TakeATN() reports a fresh edge. It returns the bytes read, for
// callers that want to log the command burst.
func (s *Service) Run() ([]byte, error) {
	// An ATN edge can interrupt an in-progress data transfer, so force back
	// to DIDS first rather than assuming the prior state was already idle.
	s.Engine.ReturnToIdle()
	if err := s.Engine.SetControls(bus.DLAS); err != nil {
		return nil, err
	}

	var buf []byte
	var b burst

	for s.Engine.Adapter.ReadControl(pinio.ATN) == pinio.Low && len(buf) < bufferSize {
		db, _, err := s.Engine.ReadByte(false)
		if err != nil {
			// The controller releasing ATN while we wait for the next
			// command byte is the normal end of a burst, not a fault.
			var he *bus.HandshakeError
			if errors.As(err, &he) && he.Aborted && s.Engine.Adapter.ReadControl(pinio.ATN) == pinio.High {
				break
			}
			s.Engine.ReturnToIdle()
			return buf, err
		}
		buf = append(buf, db)
		s.classify(db, &b)
	}

	s.honor(b)
	return buf, nil
}

func (s *Service) classify(db byte, b *burst) {
	switch {
	case db == bus.CmdUNL:
		b.unlisten = true
		// A later UNL cancels our own LAD seen earlier in the same burst.
		b.listen = false
	case db == bus.CmdUNT:
		b.untalk = true
		b.talk = false
	case db == bus.LAD(s.Engine.OwnAddress):
		b.listen = true
	case db == bus.TAD(s.Engine.OwnAddress):
		b.talk = true
	case db >= 0x40 && db < 0x5F:
		// Another device's talk address: implicitly untalks us.
		b.otherTAD = true
	case db >= 0x60 && db <= 0x7F:
		// Secondary address command; recorded in the caller's buffer but
		// otherwise unhandled. Listen addresses in 0x20..0x3E for other
		// devices are ignored.
	case db < 0x20:
		if q := classifyPrimaryCommand(db); q != queueNone {
			b.queued = q
		}
	}
}

func classifyPrimaryCommand(db byte) queuedCommand {
	switch db {
	case bus.CmdSPE:
		return queueSPE
	case bus.CmdSPD:
		return queueSPD
	case bus.CmdSDC:
		return queueSDC
	case bus.CmdGTL:
		return queueGTL
	case bus.CmdLLO:
		return queueLLO
	case bus.CmdDCL:
		return queueDCL
	case bus.CmdGET:
		return queueGET
	default:
		return queueNone
	}
}

// honor applies the post-ATN-release ordering: promiscuous listen first,
// otherwise addressing, then the queued primary command, then the data (or
// status) phase handoff if we are still addressed. A burst's trailing
// LAD/TAD always wins over an UNL/UNT earlier in the same burst, since
// every controller addressing sequence starts with UNL before naming its
// actual target; an UNL/UNT that follows our LAD/TAD in the same burst
// cancels it.
func (s *Service) honor(b burst) {
	if s.Promiscuous {
		s.Engine.ReturnToIdle()
		s.Engine.SetControls(bus.DLAS)
		s.addressedToListen = true
		return
	}

	switch {
	case b.listen:
		s.addressedToListen = true
		s.addressedToTalk = false
	case b.talk:
		s.addressedToTalk = true
		s.addressedToListen = false
	default:
		if b.unlisten {
			s.addressedToListen = false
		}
		if b.untalk || b.otherTAD {
			s.addressedToTalk = false
		}
	}

	switch b.queued {
	case queueSPE:
		s.serialPollEnabled = true
	case queueSPD:
		s.serialPollEnabled = false
	case queueSDC:
		if s.Reset != nil {
			s.Reset()
		}
	case queueGTL, queueLLO, queueDCL, queueGET:
		// Acknowledged; nothing to run on this side beyond going idle if
		// no transfer follows.
	}

	if s.serialPollEnabled && s.addressedToTalk {
		// The poll response is the entire talk activity; afterwards the
		// device goes straight back to DIDS instead of staying a talker.
		s.sendStatus()
		return
	}

	switch {
	case s.addressedToListen && s.Engine.State != bus.DLAS:
		s.Engine.ReturnToIdle()
		s.Engine.SetControls(bus.DLAS)
	case s.addressedToTalk && s.Engine.State != bus.DTAS:
		s.Engine.ReturnToIdle()
		s.Engine.SetControls(bus.DTAS)
	case !s.addressedToListen && !s.addressedToTalk:
		s.Engine.ReturnToIdle()
	}
}

// sendStatus answers a serial poll: enter DTAS, write the status byte,
// return to DIDS, then clear RQS and de-assert SRQ. IEEE-488 requires the
// RQS bit to clear automatically on being polled.
func (s *Service) sendStatus() {
	s.Engine.ReturnToIdle()
	if err := s.Engine.SetControls(bus.DTAS); err != nil {
		return
	}
	status := s.Status.StatusByte()
	s.Engine.WriteByte(status, true, false)
	s.Engine.ReturnToIdle()
	s.Status.ClearRQS()
	s.Engine.ClearSRQLine()
}
