// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lineproto

import (
	"fmt"

	"github.com/nilsager/gpibctl/config"
)

// writeIdentity synthesizes the local *IDN? reply from the configured
// identity fields, gated by Cfg.IDNMode. IDNBasic omits the serial number
// and firmware version fields a full *IDN? reply carries.
func (c *Context) writeIdentity() {
	if c.Cfg.IDNMode == config.IDNDisabled {
		return
	}
	vendor := "gpibctl"
	model := c.Cfg.ShortName
	if model == "" {
		model = "gpibctl"
	}
	if c.Cfg.IDNMode == config.IDNBasic {
		fmt.Fprintf(c.Sink, "%s,%s\r\n", vendor, model)
		return
	}
	fmt.Fprintf(c.Sink, "%s,%s,%s,%s\r\n", vendor, model, c.Cfg.SerialNumber, c.Cfg.VersionString)
}
