// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// +build !windows

package hostlink

import "errors"

// COMPortDescriptor is one discovered Windows serial port, for the -list
// discovery flag of cmd/gpibctl.
type COMPortDescriptor struct {
	DeviceID    string
	Description string
}

// DiscoverCOMPorts is only implemented on Windows.
func DiscoverCOMPorts() ([]COMPortDescriptor, error) {
	return nil, errors.New("hostlink: COM port discovery requires windows")
}
