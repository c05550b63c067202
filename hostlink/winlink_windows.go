// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hostlink

import "github.com/StackExchange/wmi"

// win32SerialPort is a trimmed WMI representation of Win32_SerialPort. A
// lot of members are not included here; only what discovery prints.
type win32SerialPort struct {
	DeviceID    string
	Description string
	PNPDeviceID string
}

// COMPortDescriptor is one discovered Windows serial port, for the `-list`
// discovery flag of cmd/gpibctl.
type COMPortDescriptor struct {
	DeviceID    string
	Description string
}

// DiscoverCOMPorts queries Win32_SerialPort over WMI for every COM port
// currently enumerated by Windows, the Windows counterpart of
// DiscoverUSB on unix.
func DiscoverCOMPorts() ([]COMPortDescriptor, error) {
	var ports []win32SerialPort
	if err := wmi.Query("SELECT DeviceID, Description, PNPDeviceID FROM Win32_SerialPort", &ports); err != nil {
		return nil, err
	}
	out := make([]COMPortDescriptor, len(ports))
	for i, p := range ports {
		out[i] = COMPortDescriptor{DeviceID: p.DeviceID, Description: p.Description}
	}
	return out, nil
}
