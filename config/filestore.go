// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import "os"

// FileStore is a Store backed by a flat file. A host process has no EEPROM,
// so a file plays its role.
type FileStore struct {
	Path string
}

// Read implements Store. A missing file is reported like any other read
// error; Load already falls back to Default() on error.
func (f FileStore) Read() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Write implements Store.
func (f FileStore) Write(b []byte) error {
	return os.WriteFile(f.Path, b, 0o600)
}

var _ Store = FileStore{}
