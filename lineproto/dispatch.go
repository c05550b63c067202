// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Modes gates a command to the roles it's permitted in.
type Modes int

const (
	ModeController Modes = 1 << iota
	ModeDevice
	ModeBoth = ModeController | ModeDevice
)

// Handler executes one command's parameter substring (the remainder of the
// line after the token, already trimmed of leading whitespace). It returns
// no value; all output goes through the Context's host-link sink.
type Handler func(ctx *Context, params string)

// command is one row of the fixed dispatch table.
type command struct {
	token   string
	modes   Modes
	handler Handler
}

// table holds the full command surface, built in commands.go's init so the
// handlers can reference Context methods directly.
var table []command

func register(token string, modes Modes, h Handler) {
	table = append(table, command{token: strings.ToLower(token), modes: modes, handler: h})
}

// Dispatch looks up and runs the command in a `++...` line (text includes
// the leading `++`). Lookup is case-insensitive on the first
// whitespace-delimited token; unknown tokens or tokens not permitted in the
// current role emit "Unrecognized command".
func (c *Context) Dispatch(text []byte) {
	body := strings.TrimPrefix(string(text), "++")
	body = strings.TrimLeft(body, " \t")
	token, params := body, ""
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		token, params = body[:i], body[i+1:]
	}
	params = strings.TrimLeft(params, " \t")
	token = strings.ToLower(token)

	for _, cmd := range table {
		if cmd.token != token {
			continue
		}
		if cmd.modes&c.roleMode() == 0 {
			c.Errorf("Unrecognized command")
			return
		}
		cmd.handler(c, params)
		return
	}
	c.Errorf("Unrecognized command")
}

func (c *Context) roleMode() Modes {
	if c.Controller {
		return ModeController
	}
	return ModeDevice
}

// notInRange parses params as a decimal integer and emits the standard
// out-of-range error line if it falls outside [lo, hi]. ok is false if
// params did not parse or was out of range, in which case the caller must
// not act on v.
func notInRange(ctx *Context, params string, lo, hi int) (v int, ok bool) {
	params = strings.TrimSpace(params)
	n, err := strconv.Atoi(params)
	if err != nil {
		ctx.Errorf("Valid range is between %d and %d", lo, hi)
		return 0, false
	}
	if n < lo || n > hi {
		ctx.Errorf("Valid range is between %d and %d", lo, hi)
		return 0, false
	}
	return n, true
}

// Errorf writes a plain ASCII error line to the host link.
func (c *Context) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.Sink, format+"\n", args...)
}
