// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"fmt"
	"os"
)

// referenceKey is the 90-byte keystream shipped with the retail client.
var referenceKey = [...]byte{
	0x01, 0x05, 0x06, 0x02, 0x04, 0x03, 0x07, 0x08, 0x01, 0x05,
	0x06, 0x0F, 0x04, 0x03, 0x07, 0x0C, 0x31, 0x85, 0x76, 0x39,
	0x34, 0x3D, 0x30, 0xE8, 0x67, 0x36, 0x36, 0x32, 0x3E, 0x33,
	0x34, 0x3B, 0x11, 0x15, 0x16, 0x16, 0x14, 0x13, 0x1D, 0x18,
	0x11, 0x03, 0x06, 0x0C, 0x04, 0x03, 0x06, 0x08, 0x2E, 0x55,
	0x26, 0x23, 0x2A, 0x23, 0x2E, 0x28, 0x21, 0x21, 0x26, 0x27,
	0x2E, 0x00, 0x2D, 0x2D, 0xCF, 0xA5, 0x06, 0x02, 0x04, 0x0F,
	0x07, 0x18, 0xE1, 0x15, 0x36, 0x18, 0x60, 0x13, 0x1A, 0x19,
	0x11, 0x15, 0x16, 0x10, 0x12, 0x13, 0x17, 0x38, 0xF1, 0x25,
}

// ReferenceKey returns a copy of the retail client keystream.
func ReferenceKey() []byte {
	return append([]byte(nil), referenceKey[:]...)
}

// LoadKey reads a raw keystream file.
func LoadKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %q: %w", path, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyKey, path)
	}

	return key, nil
}
