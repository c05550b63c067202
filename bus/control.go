// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bus

import "github.com/nilsager/gpibctl/bus/pinio"

// SetREN drives REN low (remote enable) or releases it. Controller role
// only.
func (e *Engine) SetREN(on bool) {
	if on {
		e.assertLine(pinio.REN)
		return
	}
	e.releaseLine(pinio.REN)
}

// ReadSRQ samples the SRQ line's current level.
func (e *Engine) ReadSRQ() pinio.Level {
	return e.Adapter.ReadControl(pinio.SRQ)
}

// AssertSRQLine drives SRQ low as an output, requesting service from the
// controller. Device role only; called when the status byte's RQS bit is
// set.
func (e *Engine) AssertSRQLine() {
	e.assertLine(pinio.SRQ)
}

// ClearSRQLine returns SRQ to input-pullup.
func (e *Engine) ClearSRQLine() {
	e.releaseLine(pinio.SRQ)
}
