// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"bytes"
	"testing"
)

// feed pushes s through b and returns every completed line.
func feed(b *Buffer, s []byte) []Line {
	var lines []Line
	for _, c := range s {
		if line, ok := b.Feed(c); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func one(t *testing.T, b *Buffer, s string) Line {
	t.Helper()
	lines := feed(b, []byte(s))
	if len(lines) != 1 {
		t.Fatalf("feeding %q produced %d lines, want 1: %v", s, len(lines), lines)
	}
	return lines[0]
}

func TestEmptyLine(t *testing.T) {
	var b Buffer
	l := one(t, &b, "\n")
	if l.Kind != KindEmpty {
		t.Fatalf("Kind = %d, want KindEmpty", l.Kind)
	}
}

func TestCRAndLFBothTerminate(t *testing.T) {
	var b Buffer
	l := one(t, &b, "abc\r")
	if l.Kind != KindData || string(l.Text) != "abc" {
		t.Fatalf("got %d %q, want KindData \"abc\"", l.Kind, l.Text)
	}
	l = one(t, &b, "def\n")
	if l.Kind != KindData || string(l.Text) != "def" {
		t.Fatalf("got %d %q, want KindData \"def\"", l.Kind, l.Text)
	}
}

func TestCRLFYieldsOneLineAndOneEmpty(t *testing.T) {
	var b Buffer
	lines := feed(&b, []byte("abc\r\n"))
	if len(lines) != 2 || lines[0].Kind != KindData || lines[1].Kind != KindEmpty {
		t.Fatalf("got %v, want data + empty", lines)
	}
}

func TestCommandRecognition(t *testing.T) {
	var b Buffer
	l := one(t, &b, "++addr 9\n")
	if l.Kind != KindCommand || string(l.Text) != "++addr 9" {
		t.Fatalf("got %d %q, want KindCommand", l.Kind, l.Text)
	}
}

func TestAbortEscape(t *testing.T) {
	var b Buffer
	l := one(t, &b, "++!\n")
	if l.Kind != KindAbort {
		t.Fatalf("Kind = %d, want KindAbort", l.Kind)
	}
}

func TestEscapedPlusSuppressesCommand(t *testing.T) {
	var b Buffer
	l := one(t, &b, "\x1b++addr\n")
	if l.Kind != KindData || string(l.Text) != "++addr" {
		t.Fatalf("got %d %q, want KindData \"++addr\"", l.Kind, l.Text)
	}
}

func TestEscapedTerminatorStoredLiterally(t *testing.T) {
	var b Buffer
	l := one(t, &b, "a\x1b\rb\n")
	if string(l.Text) != "a\rb" {
		t.Fatalf("Text = %q, want \"a\\rb\"", l.Text)
	}
}

func TestDoubleEscapeStoresEscape(t *testing.T) {
	var b Buffer
	l := one(t, &b, "a\x1b\x1bb\n")
	if string(l.Text) != "a\x1bb" {
		t.Fatalf("Text = %q, want embedded ESC", l.Text)
	}
}

func TestEscapeBeforeOrdinaryByteIsDropped(t *testing.T) {
	var b Buffer
	l := one(t, &b, "a\x1bzb\n")
	if string(l.Text) != "azb" {
		t.Fatalf("Text = %q, want \"azb\" (lone ESC dropped)", l.Text)
	}
}

func TestPlusEscapeOnlyCountsEarly(t *testing.T) {
	// An escaped + beyond the second byte must not suppress a ++ prefix
	// typed at the start.
	var b Buffer
	l := one(t, &b, "++ab\x1b+\n")
	if l.Kind != KindCommand {
		t.Fatalf("Kind = %d, want KindCommand", l.Kind)
	}
}

func TestIDNQueryClassification(t *testing.T) {
	var b Buffer
	b.SetIDNEnabled(true)
	l := one(t, &b, "*idn?\n")
	if l.Kind != KindIDN {
		t.Fatalf("Kind = %d, want KindIDN", l.Kind)
	}
	b.SetIDNEnabled(false)
	l = one(t, &b, "*IDN?\n")
	if l.Kind != KindData {
		t.Fatalf("Kind = %d with IDN disabled, want KindData", l.Kind)
	}
}

func TestOverflowDeliversPartialData(t *testing.T) {
	var b Buffer
	long := bytes.Repeat([]byte{'x'}, maxBufferLen+1)
	lines := feed(&b, long)
	if len(lines) != 1 {
		t.Fatalf("got %d lines during overflow, want 1", len(lines))
	}
	if lines[0].Kind != KindOverflowData || len(lines[0].Text) != maxBufferLen {
		t.Fatalf("got %d with %d bytes, want KindOverflowData with %d", lines[0].Kind, len(lines[0].Text), maxBufferLen)
	}
	// The byte that tripped the overflow starts the continuation.
	l := one(t, &b, "\n")
	if l.Kind != KindData || string(l.Text) != "x" {
		t.Fatalf("continuation = %d %q, want KindData \"x\"", l.Kind, l.Text)
	}
}

func TestOverflowDiscardsOversizedCommand(t *testing.T) {
	var b Buffer
	long := append([]byte("++"), bytes.Repeat([]byte{'y'}, maxBufferLen)...)
	lines := feed(&b, long)
	if len(lines) != 1 || lines[0].Kind != KindOverflowDiscard {
		t.Fatalf("got %v, want one KindOverflowDiscard", lines)
	}
}

func TestBufferClearedAfterDelivery(t *testing.T) {
	var b Buffer
	one(t, &b, "++ver\n")
	// A fresh line must not inherit the previous ++ prefix.
	l := one(t, &b, "data\n")
	if l.Kind != KindData || string(l.Text) != "data" {
		t.Fatalf("got %d %q after a command line, want clean KindData", l.Kind, l.Text)
	}
}
