// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config holds the persisted configuration record and its
// CRC-checked byte-blob encoding.
package config

// Mode selects the node's bus role.
type Mode byte

const (
	ModeDevice     Mode = 0
	ModeController Mode = 1
)

// EOSTerminator selects the terminator appended on send.
type EOSTerminator byte

const (
	EOSCRLF EOSTerminator = 0
	EOSCR   EOSTerminator = 1
	EOSLF   EOSTerminator = 2
	EOSNone EOSTerminator = 3
)

// Bytes returns the literal terminator bytes for t.
func (t EOSTerminator) Bytes() []byte {
	switch t {
	case EOSCRLF:
		return []byte{'\r', '\n'}
	case EOSCR:
		return []byte{'\r'}
	case EOSLF:
		return []byte{'\n'}
	default:
		return nil
	}
}

// EORTerminator selects the terminator sequence expected on receive.
type EORTerminator byte

const (
	EORCRLF EORTerminator = iota
	EORCR
	EORLF
	EORNone
	EORLFCR
	EOREOF // ETX (0x03)
	EORCRLFEOF
	EOREOIOnly
)

// Bytes returns the literal terminator sequence for r, or nil if the
// terminator is not byte-sequence based (EORNone, EOREOIOnly).
func (r EORTerminator) Bytes() []byte {
	switch r {
	case EORCRLF:
		return []byte{'\r', '\n'}
	case EORCR:
		return []byte{'\r'}
	case EORLF:
		return []byte{'\n'}
	case EORLFCR:
		return []byte{'\n', '\r'}
	case EOREOF:
		return []byte{0x03}
	case EORCRLFEOF:
		return []byte{'\r', '\n', 0x03}
	default:
		return nil
	}
}

// IDNMode selects how much identity information *IDN? responses include.
type IDNMode byte

const (
	IDNDisabled IDNMode = 0
	IDNBasic    IDNMode = 1
	IDNFull     IDNMode = 2
)

// Bounds for the validated fields.
const (
	MinAddress       = 1
	MaxAddress       = 30
	MinReadTimeoutMs = 1
	MaxReadTimeoutMs = 32000
	MaxEOTChar       = 255
)

// Record is the configuration persisted across boots.
type Record struct {
	EOIOnSend bool

	EOTEnabled bool
	EOTChar    byte

	Mode Mode

	// ControllerAddress is this node's own primary GPIB address.
	ControllerAddress byte
	// PrimaryAddress is the remote device targeted in controller mode, or
	// this node's own address in device mode.
	PrimaryAddress byte

	EOS EOSTerminator
	EOR EORTerminator

	// StatusByte is returned when this node is serial-polled in device
	// mode; bit 6 is RQS.
	StatusByte byte

	ReadTimeoutMs int

	VersionString string
	ShortName     string
	SerialNumber  string
	IDNMode       IDNMode
}

// Default returns the factory-default configuration, used by `++default`
// and whenever the persisted blob fails its CRC check.
func Default() Record {
	return Record{
		EOIOnSend:         true,
		EOTEnabled:        false,
		EOTChar:           '\r',
		Mode:              ModeController,
		ControllerAddress: 0,
		PrimaryAddress:    1,
		EOS:               EOSCRLF,
		EOR:               EORCRLF,
		StatusByte:        0,
		ReadTimeoutMs:     1000,
		VersionString:     "",
		ShortName:         "gpibctl",
		SerialNumber:      "0",
		IDNMode:           IDNDisabled,
	}
}

// RQS reports whether the status byte's service-request bit is set.
func (r *Record) RQS() bool { return r.StatusByte&0x40 != 0 }

// ClearRQS clears the service-request bit. IEEE-488 requires RQS to clear
// automatically once the device has been polled.
func (r *Record) ClearRQS() { r.StatusByte &^= 0x40 }
