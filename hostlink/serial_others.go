// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package hostlink

import "errors"

// SerialLink is only implemented on linux, where the termios2 interface
// this port uses is available.
type SerialLink struct{}

// OpenSerial is not implemented on this build configuration.
func OpenSerial(name string, baud uint32) (*SerialLink, error) {
	return nil, errors.New("hostlink: serial ports require linux")
}

// Read implements Link.
func (s *SerialLink) Read(p []byte) (int, error) { return 0, errors.New("hostlink: not open") }

// Write implements Link.
func (s *SerialLink) Write(p []byte) (int, error) { return 0, errors.New("hostlink: not open") }

// Close implements Link.
func (s *SerialLink) Close() error { return nil }
