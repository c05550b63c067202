// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// blobMagic guards against reading a blob from a completely different
// firmware layout; blobVersion lets a future field addition detect and
// fall back to Default() instead of misreading old bytes.
const (
	blobMagic   uint16 = 0x47C8 // "GPIB config" tag
	blobVersion uint8  = 1

	maxStringLen = 32
	// blobSize is magic(2) + version(1) + 9 single-byte fields +
	// ReadTimeoutMs(2) + IDNMode(1) + 3 length-prefixed strings + CRC(4).
	blobSize = 2 + 1 + 9 + 2 + 1 + 3*(1+maxStringLen) + 4
)

// Store persists and restores a raw configuration blob. On a board this is
// an EEPROM page; a file-backed Store stands in for host runs.
type Store interface {
	Read() ([]byte, error)
	Write([]byte) error
}

// Load reads the persisted blob from s and decodes it. On any I/O error,
// CRC mismatch, bad magic, or unrecognized version it returns Default()
// together with the error: a corrupt blob costs the saved settings, never
// the boot.
func Load(s Store) (Record, error) {
	raw, err := s.Read()
	if err != nil {
		return Default(), err
	}
	rec, err := Decode(raw)
	if err != nil {
		return Default(), err
	}
	return rec, nil
}

// Save encodes rec and writes it to s.
func Save(s Store, rec Record) error {
	return s.Write(Encode(rec))
}

// Encode serializes rec into its persisted byte form: a magic/version
// header, the fixed fields in declaration order, length-prefixed strings
// padded to maxStringLen, and a trailing CRC-32 (IEEE) over everything
// before it.
func Encode(rec Record) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, blobMagic)
	buf.WriteByte(blobVersion)

	buf.WriteByte(boolByte(rec.EOIOnSend))
	buf.WriteByte(boolByte(rec.EOTEnabled))
	buf.WriteByte(rec.EOTChar)
	buf.WriteByte(byte(rec.Mode))
	buf.WriteByte(rec.ControllerAddress)
	buf.WriteByte(rec.PrimaryAddress)
	buf.WriteByte(byte(rec.EOS))
	buf.WriteByte(byte(rec.EOR))
	buf.WriteByte(rec.StatusByte)
	binary.Write(buf, binary.BigEndian, uint16(rec.ReadTimeoutMs))
	buf.WriteByte(byte(rec.IDNMode))

	writeString(buf, rec.VersionString)
	writeString(buf, rec.ShortName)
	writeString(buf, rec.SerialNumber)

	sum := crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.BigEndian, sum)
	return buf.Bytes()
}

// Decode parses a blob produced by Encode, validating magic, version, and
// checksum before trusting any field.
func Decode(raw []byte) (Record, error) {
	if len(raw) < blobSize {
		return Record{}, fmt.Errorf("config: blob too short: %d bytes", len(raw))
	}
	raw = raw[:blobSize]
	body, wantCRC := raw[:len(raw)-4], raw[len(raw)-4:]
	if got := crc32.ChecksumIEEE(body); got != binary.BigEndian.Uint32(wantCRC) {
		return Record{}, fmt.Errorf("config: CRC mismatch")
	}

	r := bytes.NewReader(body)
	var magic uint16
	binary.Read(r, binary.BigEndian, &magic)
	if magic != blobMagic {
		return Record{}, fmt.Errorf("config: bad magic %#x", magic)
	}
	version, _ := r.ReadByte()
	if version != blobVersion {
		return Record{}, fmt.Errorf("config: unsupported version %d", version)
	}

	rec := Default()
	readBool(r, &rec.EOIOnSend)
	readBool(r, &rec.EOTEnabled)
	readByte(r, &rec.EOTChar)
	var mode, eos, eor, idn byte
	readByte(r, &mode)
	rec.Mode = Mode(mode)
	readByte(r, &rec.ControllerAddress)
	readByte(r, &rec.PrimaryAddress)
	readByte(r, &eos)
	rec.EOS = EOSTerminator(eos)
	readByte(r, &eor)
	rec.EOR = EORTerminator(eor)
	readByte(r, &rec.StatusByte)
	var rtmo uint16
	binary.Read(r, binary.BigEndian, &rtmo)
	rec.ReadTimeoutMs = int(rtmo)
	readByte(r, &idn)
	rec.IDNMode = IDNMode(idn)

	rec.VersionString = readString(r)
	rec.ShortName = readString(r)
	rec.SerialNumber = readString(r)
	return rec, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func readBool(r *bytes.Reader, dst *bool) {
	b, _ := r.ReadByte()
	*dst = b != 0
}

func readByte(r *bytes.Reader, dst *byte) {
	b, _ := r.ReadByte()
	*dst = b
}

// writeString writes a one-byte length followed by maxStringLen bytes,
// truncating or zero-padding s so the record stays fixed-size.
func writeString(buf *bytes.Buffer, s string) {
	b := []byte(s)
	if len(b) > maxStringLen {
		b = b[:maxStringLen]
	}
	buf.WriteByte(byte(len(b)))
	padded := make([]byte, maxStringLen)
	copy(padded, b)
	buf.Write(padded)
}

func readString(r *bytes.Reader) string {
	n, _ := r.ReadByte()
	buf := make([]byte, maxStringLen)
	io.ReadFull(r, buf)
	if int(n) > maxStringLen {
		n = maxStringLen
	}
	return string(buf[:n])
}
