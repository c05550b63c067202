// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lineproto implements the host-link line interpreter: the parse
// buffer with its escape and overflow rules, the ++ command dispatch table,
// *IDN? synthesis, and the send/receive integration with the auto-read
// modes.
package lineproto

const (
	esc = 0x1B
	cr  = '\r'
	lf  = '\n'

	// maxBufferLen bounds one parsed line, matching the firmware's
	// fixed-size parse buffer.
	maxBufferLen = 256
)

// LineKind classifies a completed buffer.
type LineKind int

const (
	// KindEmpty is an ignored blank line.
	KindEmpty LineKind = iota
	// KindCommand is a ++ interface command.
	KindCommand
	// KindAbort is the ++! read-loop abort escape.
	KindAbort
	// KindIDN is a *IDN? identity query answered locally.
	KindIDN
	// KindData is instrument data to forward verbatim.
	KindData
	// KindOverflowData is a buffer that filled before any terminator but
	// was not a ++ prefix, delivered as a partial data line.
	KindOverflowData
	// KindOverflowDiscard is a buffer that filled before any terminator
	// while looking like a ++ prefix, discarded with an error.
	KindOverflowDiscard
)

// Line is one parsed unit handed to the dispatcher.
type Line struct {
	Kind LineKind
	Text []byte
}

// Buffer is the escape/overflow parse state machine fed one host-link byte
// at a time; Feed reports a completed Line whenever a terminator (or
// overflow) closes the buffer.
type Buffer struct {
	escapePending bool
	plusEscaped   bool
	pb            []byte
	idnEnabled    bool
}

// SetIDNEnabled controls whether a *IDN? line is classified KindIDN (true)
// or left as KindData to forward (false).
func (b *Buffer) SetIDNEnabled(on bool) { b.idnEnabled = on }

// Feed processes one byte read from the host link. ok is true iff a
// complete Line is ready in line.
func (b *Buffer) Feed(c byte) (line Line, ok bool) {
	switch {
	case c == esc:
		if b.escapePending {
			// Already pending: ESC is stored literally, flag clears.
			b.escapePending = false
			return b.store(c)
		}
		b.escapePending = true
		return Line{}, false

	case c == '+' && b.escapePending:
		b.escapePending = false
		if len(b.pb) < 2 {
			b.plusEscaped = true
		}
		return b.store(c)

	case (c == cr || c == lf) && b.escapePending:
		b.escapePending = false
		return b.store(c)

	case c == cr || c == lf:
		return b.terminate()

	default:
		b.escapePending = false
		return b.store(c)
	}
}

// store appends c to the parse buffer. If the buffer is already full, the
// current content is delivered as an overflow line and c becomes the first
// byte of the continuation, so nothing is lost.
func (b *Buffer) store(c byte) (line Line, overflowed bool) {
	if len(b.pb) >= maxBufferLen {
		line, overflowed = b.overflow()
		b.pb = append(b.pb, c)
		return line, overflowed
	}
	b.pb = append(b.pb, c)
	return Line{}, false
}

// overflow delivers a full buffer: a ++ prefix is discarded with an error,
// anything else is passed on as partial data.
func (b *Buffer) overflow() (Line, bool) {
	kind := KindOverflowData
	if b.isCommandPrefix() {
		kind = KindOverflowDiscard
	}
	text := b.pb
	b.reset()
	return Line{Kind: kind, Text: text}, true
}

func (b *Buffer) isCommandPrefix() bool {
	return !b.plusEscaped && len(b.pb) >= 2 && b.pb[0] == '+' && b.pb[1] == '+'
}

func (b *Buffer) terminate() (Line, bool) {
	text := b.pb
	plusEscaped := b.plusEscaped
	b.reset()

	if len(text) == 0 {
		return Line{Kind: KindEmpty}, true
	}
	if !plusEscaped && len(text) >= 2 && text[0] == '+' && text[1] == '+' {
		if len(text) >= 3 && text[2] == '!' {
			return Line{Kind: KindAbort, Text: text}, true
		}
		return Line{Kind: KindCommand, Text: text}, true
	}
	if b.idnEnabled && isIDNQuery(text) {
		return Line{Kind: KindIDN, Text: text}, true
	}
	return Line{Kind: KindData, Text: text}, true
}

func (b *Buffer) reset() {
	b.pb = nil
	b.escapePending = false
	b.plusEscaped = false
}

func isIDNQuery(text []byte) bool {
	const want = "*IDN?"
	if len(text) < len(want) {
		return false
	}
	for i := 0; i < len(want); i++ {
		c := text[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != want[i] {
			return false
		}
	}
	return true
}
