// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nilsager/gpibctl/attn"
	"github.com/nilsager/gpibctl/bus"
	"github.com/nilsager/gpibctl/bus/pinio"
	"github.com/nilsager/gpibctl/config"
)

// AutoMode selects the auto-read policy applied after each send.
type AutoMode int

const (
	// AutoManual requires an explicit ++read to receive.
	AutoManual AutoMode = iota
	// AutoAfterSend performs one receive after every send.
	AutoAfterSend
	// AutoAfterQuery receives only when the sent payload ends in '?'.
	AutoAfterQuery
	// AutoContinuous keeps receiving until interrupted once ++read is issued.
	AutoContinuous
)

// Context is the shared state one line interpreter instance threads through
// command handlers, the parse buffer, and the transfer logic. It collects
// what the firmware keeps in module-level mutables into one value.
type Context struct {
	Sink   io.Writer
	Log    *log.Logger
	Cfg    *config.Record
	Store  config.Store
	Engine *bus.Engine
	Attn   *attn.Service

	Controller bool // mirrors Cfg.Mode == config.ModeController

	Auto    AutoMode
	Verbose bool
	SRQAuto bool

	Macros [10]string

	// TonMode/LonMode hold the device-role talk-only/listen-only
	// pass-through settings.
	TonMode int
	LonMode bool

	// HostByte, when set, polls the host link for one pending byte without
	// blocking. Receive loops drain it between handshakes so a ++ line can
	// break a transfer in flight.
	HostByte func() (byte, bool)

	buf Buffer

	// inReceive marks that a receive loop is on the call stack: completed
	// lines are then queued on pending instead of dispatched reentrantly.
	inReceive bool
	pending   []Line

	// tranBrk is set when a ++ line or ++! arrives while a receive loop is
	// in flight, and checked by the loop after each byte.
	tranBrk bool
}

// NewContext builds a Context wired to eng/cfg/store, writing host-link
// output to w.
func NewContext(w io.Writer, eng *bus.Engine, cfg *config.Record, store config.Store) *Context {
	c := &Context{
		Sink:       w,
		Log:        log.New(io.Discard, "", log.Lmicroseconds),
		Cfg:        cfg,
		Store:      store,
		Engine:     eng,
		Controller: cfg.Mode == config.ModeController,
	}
	c.buf.SetIDNEnabled(cfg.IDNMode != config.IDNDisabled)
	return c
}

// FeedByte runs one host-link byte through the parse buffer and, once a
// line completes, classifies and dispatches it. Lines completing while a
// receive loop is in flight are queued and break the loop instead of being
// dispatched reentrantly; DrainPending runs them once the stack unwinds.
func (c *Context) FeedByte(b byte) {
	line, ok := c.buf.Feed(b)
	if !ok {
		return
	}
	if c.inReceive {
		switch line.Kind {
		case KindAbort, KindCommand:
			c.tranBrk = true
		}
		if line.Kind != KindAbort && line.Kind != KindEmpty {
			c.pending = append(c.pending, line)
		}
		return
	}
	c.handleLine(line)
}

// DrainPending dispatches any lines that completed while a receive loop was
// in flight. The bridge loop calls it after every FeedByte.
func (c *Context) DrainPending() {
	for len(c.pending) > 0 {
		line := c.pending[0]
		c.pending = c.pending[1:]
		c.handleLine(line)
	}
}

func (c *Context) handleLine(line Line) {
	switch line.Kind {
	case KindEmpty:
		if c.Verbose {
			fmt.Fprint(c.Sink, "> ")
		}
	case KindAbort:
		c.tranBrk = false
	case KindCommand:
		c.tranBrk = false
		c.Dispatch(line.Text)
	case KindIDN:
		c.writeIdentity()
	case KindData:
		c.sendAndMaybeReceive(line.Text)
	case KindOverflowData:
		// The message continues on the next line; keep the target addressed
		// and hold off the terminator and EOI until the line completes.
		c.sendPartial(line.Text)
	case KindOverflowDiscard:
		c.Errorf("Unrecognized command")
	}
}

// sendAndMaybeReceive sends one complete payload line, then applies the
// configured auto-read policy (controller role) or the talk-only gating
// (device role).
func (c *Context) sendAndMaybeReceive(payload []byte) {
	if !c.Controller {
		c.deviceSend(payload)
		return
	}
	if err := c.Send(payload); err != nil {
		c.Errorf("%s", err)
		return
	}
	switch c.Auto {
	case AutoAfterSend:
		c.receiveAndForward()
	case AutoAfterQuery:
		if endsWithQuery(payload) {
			c.receiveAndForward()
		}
	case AutoContinuous:
		c.tranBrk = false
		for !c.tranBrk {
			if !c.receiveAndForward() {
				return
			}
		}
	}
}

func endsWithQuery(payload []byte) bool {
	t := strings.TrimRight(string(payload), " \t\r\n")
	return strings.HasSuffix(t, "?")
}

// Send addresses Cfg.PrimaryAddress to listen (unless already addressed),
// enters CTAS, writes payload followed by the configured terminator with
// EOI on the final byte iff EOIOnSend, then unaddresses back to CIDS.
func (c *Context) Send(payload []byte) error {
	full := append(append([]byte{}, payload...), c.Cfg.EOS.Bytes()...)
	if err := c.sendBytes(full, true); err != nil {
		return err
	}
	return c.Engine.Unaddress()
}

// sendPartial writes an overflowed buffer's bytes without a terminator or
// EOI and leaves the device addressed in CTAS, so the rest of the message
// can continue on the following line.
func (c *Context) sendPartial(payload []byte) {
	if !c.Controller {
		c.deviceSend(payload)
		return
	}
	if err := c.sendBytes(payload, false); err != nil {
		c.Errorf("%s", err)
	}
}

func (c *Context) sendBytes(full []byte, isMessageEnd bool) error {
	if !c.Engine.DeviceAddressed {
		if err := c.Engine.AddressToListen(c.Cfg.PrimaryAddress); err != nil {
			return err
		}
	}
	if c.Engine.State != bus.CTAS {
		if err := c.Engine.SetControls(bus.CTAS); err != nil {
			return err
		}
	}
	for i, b := range full {
		last := isMessageEnd && i == len(full)-1
		if err := c.Engine.WriteByte(b, last, c.Cfg.EOIOnSend); err != nil {
			c.Engine.ReturnToIdle()
			c.Engine.DeviceAddressed = false
			return err
		}
	}
	return nil
}

// deviceSend writes one payload line in device role. Unaddressed data is
// dropped unless talk-only mode is on; this is what makes a stale host line
// harmless after a role switch, until the new controller addresses us.
func (c *Context) deviceSend(payload []byte) {
	if c.Engine.State != bus.DTAS {
		if c.TonMode == 0 {
			return
		}
		c.Engine.ReturnToIdle()
		if err := c.Engine.SetControls(bus.DTAS); err != nil {
			c.Errorf("%s", err)
			return
		}
	}
	full := append(append([]byte{}, payload...), c.Cfg.EOS.Bytes()...)
	for i, b := range full {
		last := i == len(full)-1
		if err := c.Engine.WriteByte(b, last, c.Cfg.EOIOnSend); err != nil {
			c.Engine.ReturnToIdle()
			return
		}
	}
	if c.TonMode != 0 {
		c.Engine.ReturnToIdle()
	}
}

// DeviceListen drains one message while this device is an addressed
// listener (or listen-only is on), forwarding each byte to the host link.
// It returns on any handshake error: a timeout simply means the talker has
// nothing more to say, an ATN abort means a command burst is starting.
func (c *Context) DeviceListen() {
	if c.Engine.State != bus.DLAS {
		if !c.LonMode || c.Engine.State != bus.DIDS {
			return
		}
		if err := c.Engine.SetControls(bus.DLAS); err != nil {
			return
		}
	}
	var one [1]byte
	for {
		// A burst already in progress belongs to the attention service;
		// a transition mid-read surfaces as an abort below.
		if c.Engine.Adapter.ReadControl(pinio.ATN) == pinio.Low {
			return
		}
		b, eoi, err := c.Engine.ReadByte(true)
		if err != nil {
			return
		}
		one[0] = b
		c.Sink.Write(one[:])
		if eoi {
			if c.Cfg.EOTEnabled {
				c.Sink.Write([]byte{c.Cfg.EOTChar})
			}
			return
		}
	}
}

// receiveAndForward runs one receive to completion (or cancellation) and
// writes whatever was read to the host link. It reports false if the caller
// should stop retrying, true to keep going (used by AutoContinuous).
func (c *Context) receiveAndForward() bool {
	data, err := c.Receive(wantEOR, 0)
	if len(data) > 0 {
		c.Sink.Write(data)
		if c.Cfg.EOTEnabled {
			c.Sink.Write([]byte{c.Cfg.EOTChar})
		}
	}
	if err != nil {
		c.Errorf("%s", err)
		return false
	}
	return !c.tranBrk
}

// terminationRule selects how Receive decides a message is complete.
type terminationRule int

const (
	// wantEOR terminates on the configured terminator sequence or EOI.
	wantEOR terminationRule = iota
	// wantEOI terminates on EOI alone.
	wantEOI
	// wantEndByte terminates on a caller-supplied end byte or EOI.
	wantEndByte
)

// Receive addresses Cfg.PrimaryAddress to talk (unless already addressed),
// enters CLAS, and reads bytes until the termination rule is met, a ++ line
// arrives on the host link, or a handshake times out. EOI always
// terminates; when the terminator is configured as EOI-only, or sends
// assert EOI, EOI is the sole terminator and the terminator bytes are
// ignored.
func (c *Context) Receive(rule terminationRule, endByte byte) ([]byte, error) {
	if !c.Engine.DeviceAddressed {
		if err := c.Engine.AddressToTalk(c.Cfg.PrimaryAddress); err != nil {
			return nil, err
		}
	}
	if c.Engine.State != bus.CLAS {
		if err := c.Engine.SetControls(bus.CLAS); err != nil {
			return nil, err
		}
	}

	c.inReceive = true
	defer func() { c.inReceive = false }()

	eoiIsSoleTerminator := rule == wantEOI || c.Cfg.EOR == config.EOREOIOnly || c.Cfg.EOIOnSend
	var out []byte
	for {
		c.pollHost()
		if c.tranBrk {
			break
		}
		b, eoi, err := c.Engine.ReadByte(true)
		if err != nil {
			c.Engine.ReturnToIdle()
			c.Engine.DeviceAddressed = false
			return out, err
		}
		out = append(out, b)

		if eoi {
			break
		}
		if rule == wantEndByte && b == endByte {
			break
		}
		if rule != wantEndByte && !eoiIsSoleTerminator {
			if seq := c.Cfg.EOR.Bytes(); len(seq) > 0 && bytes.HasSuffix(out, seq) {
				break
			}
		}
	}

	return out, c.Engine.Unaddress()
}

// pollHost drains any bytes already waiting on the host link so a ++ line
// can set tranBrk between handshakes.
func (c *Context) pollHost() {
	if c.HostByte == nil {
		return
	}
	for {
		b, ok := c.HostByte()
		if !ok {
			return
		}
		c.FeedByte(b)
	}
}

// BreakReceive cancels an in-flight receive loop.
func (c *Context) BreakReceive() { c.tranBrk = true }

// sleepMs backs ++repeat's DELAY parameter.
func sleepMs(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }
