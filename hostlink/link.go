// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hostlink implements the host-link transports: one bidirectional
// line-oriented byte stream between this bridge and whatever the user types
// into. Package lineproto only ever touches a Link, never a transport
// directly.
package hostlink

import (
	"errors"
	"io"
	"os"
)

// Link is the bidirectional byte stream a lineproto.Context reads commands
// and instrument data from, and writes responses to.
type Link interface {
	io.Reader
	io.Writer
	io.Closer
}

// AsyncReader pumps a Link's read side into a buffered channel from its own
// goroutine, so the cooperative main loop can poll for host bytes without
// blocking mid-transfer. Like the ISR goroutine it is deliberately dumb: it
// moves bytes and nothing else.
type AsyncReader struct {
	ch   chan byte
	errc chan error
}

// NewAsyncReader starts the pump goroutine. Read-timeout errors from a
// deadline-configured serial port are treated as idle polls; any other
// error ends the pump, closes the byte channel, and is reported on Err.
func NewAsyncReader(l Link) *AsyncReader {
	r := &AsyncReader{ch: make(chan byte, 512), errc: make(chan error, 1)}
	go func() {
		defer close(r.ch)
		var buf [64]byte
		for {
			n, err := l.Read(buf[:])
			for _, b := range buf[:n] {
				r.ch <- b
			}
			if err != nil {
				if isTimeout(err) {
					continue
				}
				r.errc <- err
				return
			}
		}
	}()
	return r
}

// TryByte returns one pending host byte without blocking. ok is false when
// nothing is waiting or the link is closed.
func (r *AsyncReader) TryByte() (b byte, ok bool) {
	select {
	case b, ok = <-r.ch:
		return b, ok
	default:
		return 0, false
	}
}

// Bytes exposes the byte channel for blocking reads; it is closed when the
// link ends.
func (r *AsyncReader) Bytes() <-chan byte { return r.ch }

// Err reports the terminal read error, if any, once Bytes is closed.
func (r *AsyncReader) Err() error {
	select {
	case err := <-r.errc:
		return err
	default:
		return nil
	}
}

// isTimeout reports whether err is the expected read-timeout outcome of a
// port configured with a short read deadline, not a real failure.
func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
