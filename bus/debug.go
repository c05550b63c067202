// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build gpibctl_trace
// +build gpibctl_trace

package bus

import "log"

// logf is enabled when the build tag gpibctl_trace is specified.
func logf(fmt string, v ...interface{}) {
	log.Printf(fmt, v...)
}
