// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// +build !cgo,!windows

package hostlink

import (
	"sort"

	"github.com/google/gousb"
)

// USBDescriptor identifies one USB-serial GPIB-USB adapter candidate found
// on the bus, for the -list discovery flag of cmd/gpibctl. Discovery only:
// these adapters present as a normal USB-serial chip, so actual I/O goes
// through SerialLink once the matching /dev node is known, not through a
// gousb bulk/control transfer.
type USBDescriptor struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Addr      int
}

type byBusAddr []USBDescriptor

func (d byBusAddr) Len() int      { return len(d) }
func (d byBusAddr) Swap(i, j int) { d[i], d[j] = d[j], d[i] }
func (d byBusAddr) Less(i, j int) bool {
	if d[i].Bus != d[j].Bus {
		return d[i].Bus < d[j].Bus
	}
	return d[i].Addr < d[j].Addr
}

func fromDesc(d *gousb.DeviceDesc) USBDescriptor {
	return USBDescriptor{VendorID: uint16(d.Vendor), ProductID: uint16(d.Product), Bus: d.Bus, Addr: d.Address}
}

// DiscoverUSB enumerates USB devices on the bus. It does not open anything;
// callers match a VendorID/ProductID pair against their adapter's known IDs
// and then open the corresponding /dev/ttyUSB* node through OpenSerial.
func DiscoverUSB() ([]USBDescriptor, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var all []USBDescriptor
	devs, err := ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		all = append(all, fromDesc(d))
		return false // never keep the device open; discovery only.
	})
	for _, d := range devs {
		d.Close()
	}
	sort.Sort(byBusAddr(all))
	return all, err
}
