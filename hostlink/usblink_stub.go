// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// +build cgo windows

package hostlink

import "errors"

// USBDescriptor identifies one USB-serial GPIB-USB adapter candidate found
// on the bus, for the -list discovery flag of cmd/gpibctl.
type USBDescriptor struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Addr      int
}

// DiscoverUSB is not implemented on this build configuration.
func DiscoverUSB() ([]USBDescriptor, error) {
	return nil, errors.New("hostlink: usb discovery not available")
}
