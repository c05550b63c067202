// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpibctl turns a host with spare digital pins into a bidirectional
// bridge between a serial link and an IEEE-488 (GPIB) instrument bus.
//
// The bus engine in package bus owns the nine wires through a small pin
// adapter interface (package bus/pinio) and implements the three-wire
// handshake, the controller and device role state machines, multiline
// commands and addressing, and the serial/parallel poll procedures. Package
// attn services the device-role attention bursts a controller sends with
// ATN asserted. Package lineproto parses the host link's line protocol,
// dispatching ++ interface commands and forwarding everything else to the
// instrument. Package config persists settings as a CRC-checked blob, and
// package hostlink provides the serial transport plus USB/COM discovery.
//
// cmd/gpibctl wires all of it into a running bridge; bus/pinio/sim provides
// an in-memory bus so everything above the wires can run in tests.
package gpibctl
