// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nilsager/gpibctl/bus/pinio"
)

// Flags holds the two advisory single-bit signals raised by the ATN/SRQ
// line-change interrupt and cleared by the consumer. They are strictly
// advisory: the consumer always re-samples the line before acting.
type Flags struct {
	isATN   atomic.Bool
	isSRQ   atomic.Bool
	prevATN atomic.Bool
	prevSRQ atomic.Bool
}

// TakeATN reports and clears the ATN edge flag.
func (f *Flags) TakeATN() bool {
	return f.isATN.Swap(false)
}

// TakeSRQ reports and clears the SRQ edge flag.
func (f *Flags) TakeSRQ() bool {
	return f.isSRQ.Swap(false)
}

// PeekATN reports the ATN edge flag without clearing it.
func (f *Flags) PeekATN() bool { return f.isATN.Load() }

// poll compares the current line levels against the previous snapshot and
// raises a flag on a falling edge. Like the pin-change interrupt handler it
// stands in for, it does nothing else: no bus I/O, no state changes. Both
// edges are recorded regardless of role; the consumer takes only the flag
// its current role cares about, which keeps a runtime role switch from
// needing to rearm anything here.
func (f *Flags) poll(a pinio.Adapter) {
	atn := a.ReadControl(pinio.ATN) == pinio.Low
	if atn && !f.prevATN.Load() {
		f.isATN.Store(true)
	}
	f.prevATN.Store(atn)

	srq := a.ReadControl(pinio.SRQ) == pinio.Low
	if srq && !f.prevSRQ.Load() {
		f.isSRQ.Store(true)
	}
	f.prevSRQ.Store(srq)
}

// RunISR starts the line-change-interrupt equivalent: a goroutine that
// repeatedly samples the control lines and raises Flags. It does no other
// I/O. Cancel ctx to stop it; the returned channel closes once the
// goroutine has exited.
func RunISR(ctx context.Context, a pinio.Adapter, flags *Flags, period time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				flags.poll(a)
			}
		}
	}()
	return done
}

// AssertAttention sets the ATN flag directly, the hook a test harness or
// host simulation uses in place of a real pin-change interrupt.
func (f *Flags) AssertAttention() {
	f.isATN.Store(true)
}

// AssertSRQ is the analogous hook for the SRQ flag.
func (f *Flags) AssertSRQ() {
	f.isSRQ.Store(true)
}
