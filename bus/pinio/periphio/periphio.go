// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package periphio is the generic digital-pin pinio.Adapter: it drives the
// GPIB wires through plain periph.io/x/periph gpio.PinIO pins rather than a
// board-specific register layout, so any host periph already supports can
// act as a GPIB interface without a dedicated port adapter.
package periphio

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/pin"
	"periph.io/x/periph/conn/pin/pinreg"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// PinNames names the sixteen physical pins an Adapter drives: eight data
// lines DIO1..DIO8 and eight control lines, keyed the same way as
// pinio.Line. Names are resolved through gpioreg.ByName.
type PinNames struct {
	Data [8]string
	Ctrl [8]string
}

// Adapter implements pinio.Adapter over periph.io/x/periph gpio.PinIO pins
// (sysfs, a SoC-specific host driver, an FTDI bitbang adapter, ...).
type Adapter struct {
	data [8]gpio.PinIO
	ctrl [8]gpio.PinIO
}

// New resolves names through gpioreg.ByName and registers the sixteen lines
// as one logical header under regName.
func New(regName string, names PinNames) (*Adapter, error) {
	a := &Adapter{}
	for i, n := range names.Data {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("periphio: unknown data pin %q", n)
		}
		a.data[i] = p
	}
	for i, n := range names.Ctrl {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("periphio: unknown control pin %q (%s)", n, pinio.Line(i))
		}
		a.ctrl[i] = p
	}
	if err := register(regName, a); err != nil {
		return nil, err
	}
	return a, nil
}

// register exposes the whole line set as one named header via pinreg so
// other periph tooling can locate it.
func register(regName string, a *Adapter) error {
	raw := make([]pin.Pin, 0, 16)
	for _, p := range a.data {
		raw = append(raw, p)
	}
	for _, p := range a.ctrl {
		raw = append(raw, p)
	}
	return pinreg.Register(regName, [][]pin.Pin{raw})
}

func toLevel(l gpio.Level) pinio.Level {
	return pinio.Level(bool(l))
}

func toGPIOLevel(l pinio.Level) gpio.Level {
	return gpio.Level(bool(l))
}

// ReadDataBus implements pinio.Adapter: sets DIO1..8 to input-pullup,
// samples them, and returns the logical (inverted) byte.
func (a *Adapter) ReadDataBus() byte {
	var b byte
	for i, p := range a.data {
		_ = p.In(gpio.PullUp, gpio.NoEdge)
		if p.Read() == gpio.Low {
			b |= 1 << uint(i)
		}
	}
	return b
}

// WriteDataBus implements pinio.Adapter: sets DIO1..8 to outputs, driving
// bit i low iff bit i of b is 1.
func (a *Adapter) WriteDataBus(b byte) {
	for i, p := range a.data {
		lvl := gpio.High
		if b&(1<<uint(i)) != 0 {
			lvl = gpio.Low
		}
		_ = p.Out(lvl)
	}
}

// SetControl implements pinio.Adapter. ModeDirection drives each selected
// line to input-pullup (bit 0) or output (bit 1, initially released high).
// ModeLevel drives each selected line's output level directly.
func (a *Adapter) SetControl(bits, mask pinio.Mask, mode pinio.Mode) {
	for line := pinio.ATN; line <= pinio.IFC; line++ {
		if !mask.Has(line) {
			continue
		}
		p := a.ctrl[line]
		bit := bits.Has(line)
		switch mode {
		case pinio.ModeDirection:
			if bit {
				_ = p.Out(gpio.High)
			} else {
				_ = p.In(gpio.PullUp, gpio.NoEdge)
			}
		case pinio.ModeLevel:
			_ = p.Out(toGPIOLevel(pinio.Level(bit)))
		}
	}
}

// ReadControl implements pinio.Adapter.
func (a *Adapter) ReadControl(line pinio.Line) pinio.Level {
	return toLevel(a.ctrl[line].Read())
}

var _ pinio.Adapter = (*Adapter)(nil)
