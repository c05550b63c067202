// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sim is a host-side simulation of the GPIB wires: an in-memory
// open-collector bus that one or more Node adapters share, so the bus
// engine and attention service can be exercised without real hardware.
// Wiring a controller Engine and a device Engine to two Nodes of one Bus
// yields a complete two-party bus in a test process.
package sim

import (
	"sync"

	"github.com/nilsager/gpibctl/bus/pinio"
)

type drive struct {
	output bool
	level  pinio.Level
}

// Bus is a shared open-collector GPIB wire set. All lines default to
// input-pullup (released, reads High) until some Node drives them low.
type Bus struct {
	mu   sync.Mutex
	ctrl [8]map[int]*drive // one map per control line, keyed by node id
	data map[int]byte      // last byte each node drove; the "wire" value is
	// whichever node most recently wrote it, since only one party drives
	// DIO1..8 at a time in a valid GPIB exchange.
	dataWriter int
	nextID     int
}

// NewBus returns an empty bus with every control line released.
func NewBus() *Bus {
	b := &Bus{data: map[int]byte{}}
	for i := range b.ctrl {
		b.ctrl[i] = map[int]*drive{}
	}
	return b
}

// Node returns a new pinio.Adapter backed by this bus.
func (b *Bus) Node(name string) *Node {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.mu.Unlock()
	return &Node{bus: b, id: id, name: name}
}

func (b *Bus) level(line pinio.Line) pinio.Level {
	for _, d := range b.ctrl[line] {
		if d.output && d.level == pinio.Low {
			return pinio.Low
		}
	}
	return pinio.High
}

// Node is one party's view of a shared Bus. It implements pinio.Adapter.
type Node struct {
	name string
	bus  *Bus
	id   int
}

func (n *Node) String() string { return n.name }

// ReadDataBus implements pinio.Adapter.
func (n *Node) ReadDataBus() byte {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	return n.bus.data[n.bus.dataWriter]
}

// WriteDataBus implements pinio.Adapter.
func (n *Node) WriteDataBus(v byte) {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	n.bus.data[n.id] = v
	n.bus.dataWriter = n.id
}

// SetControl implements pinio.Adapter.
func (n *Node) SetControl(bits, mask pinio.Mask, mode pinio.Mode) {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	for line := pinio.ATN; line <= pinio.IFC; line++ {
		if !mask.Has(line) {
			continue
		}
		d, ok := n.bus.ctrl[line][n.id]
		if !ok {
			d = &drive{}
			n.bus.ctrl[line][n.id] = d
		}
		bit := bits.Has(line)
		switch mode {
		case pinio.ModeDirection:
			// 0 -> input-pullup (not driving), 1 -> output.
			d.output = bit
			if !d.output {
				d.level = pinio.High
			}
		case pinio.ModeLevel:
			d.level = pinio.Level(bit)
		}
	}
}

// ReadControl implements pinio.Adapter.
func (n *Node) ReadControl(line pinio.Line) pinio.Level {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	return n.bus.level(line)
}

var _ pinio.Adapter = (*Node)(nil)
