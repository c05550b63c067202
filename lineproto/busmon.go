// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/maruel/ansi256"

	"github.com/nilsager/gpibctl/bus"
	"github.com/nilsager/gpibctl/bus/pinio"
)

var (
	colorAsserted = color.NRGBA{R: 220, G: 40, B: 40, A: 255}
	colorReleased = color.NRGBA{R: 40, G: 160, B: 40, A: 255}
)

// BusMonitor renders a one-line snapshot of the eight GPIB control lines and
// the current bus-role state to a terminal, colorizing each control line by
// asserted/released. The data lines DIO1..8 are not shown. It is purely a diagnostic aid (`++xdiag`-adjacent
// tooling); nothing in the protocol depends on it running.
type BusMonitor struct {
	w      io.Writer
	color  bool
	buf    bytes.Buffer
	Engine *bus.Engine
}

// NewBusMonitor returns a monitor writing to stdout, colorized only when
// stdout is a terminal.
func NewBusMonitor(eng *bus.Engine) *BusMonitor {
	w := colorable.NewColorableStdout()
	return &BusMonitor{w: w, color: isatty.IsTerminal(os.Stdout.Fd()), Engine: eng}
}

// Refresh writes one updated status line reflecting the engine's current
// state and line levels.
func (m *BusMonitor) Refresh() {
	m.buf.Reset()
	fmt.Fprintf(&m.buf, "\r\033[0m%-4s ", m.Engine.State)
	for _, l := range []pinio.Line{pinio.ATN, pinio.EOI, pinio.DAV, pinio.NRFD, pinio.NDAC, pinio.IFC, pinio.SRQ, pinio.REN} {
		lvl := m.Engine.Adapter.ReadControl(l)
		m.writeLine(l.String(), lvl == pinio.Low)
	}
	fmt.Fprint(&m.buf, "\033[0m ")
	m.buf.WriteTo(m.w)
}

func (m *BusMonitor) writeLine(name string, asserted bool) {
	if !m.color {
		state := "H"
		if asserted {
			state = "L"
		}
		fmt.Fprintf(&m.buf, "%s:%s ", name, state)
		return
	}
	c := colorReleased
	if asserted {
		c = colorAsserted
	}
	fmt.Fprintf(&m.buf, "%s%s\033[0m ", ansi256.Default.Block(c), name)
}
