// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package hostlink

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// SerialLink is a Link backed by a termios-configured serial port: the
// concrete host link when the bridge talks to a USB-serial or UART
// connection.
type SerialLink struct {
	port *serial.Port
}

// OpenSerial opens name (e.g. "/dev/ttyUSB0") at baud, puts it in raw mode,
// and applies a short read timeout so the caller's read loop can interleave
// with other work.
func OpenSerial(name string, baud uint32) (*SerialLink, error) {
	opts := serial.NewOptions().SetReadTimeout(50 * time.Millisecond)
	p, err := serial.Open(name, opts)
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", name, err)
	}
	attrs, err := p.GetAttr2()
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("hostlink: get attrs: %w", err)
	}
	attrs.MakeRaw()
	attrs.SetCustomIOSpeed(baud, baud)
	if err := p.SetAttr2(serial.TCSANOW, attrs); err != nil {
		p.Close()
		return nil, fmt.Errorf("hostlink: set attrs: %w", err)
	}
	return &SerialLink{port: p}, nil
}

// Read implements Link.
func (s *SerialLink) Read(p []byte) (int, error) { return s.port.Read(p) }

// Write implements Link.
func (s *SerialLink) Write(p []byte) (int, error) { return s.port.Write(p) }

// Close implements Link.
func (s *SerialLink) Close() error { return s.port.Close() }

var _ Link = (*SerialLink)(nil)
