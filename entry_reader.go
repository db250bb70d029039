// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bytes"
	"fmt"
	"io"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// OpenEntry opens the named entry for reading.
// The payload is inflated in full before the stream is returned.
func (r *Reader) OpenEntry(name string) (io.ReadCloser, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.OpenEntryInfo(e)
}

// OpenEntryInfo opens an entry stream by already resolved directory record.
func (r *Reader) OpenEntryInfo(e Entry) (io.ReadCloser, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	data, err := r.ReadEntryData(e)
	if err != nil {
		return nil, err
	}

	return nopCloser{Reader: bytes.NewReader(data)}, nil
}

// ReadEntry reads full (decompressed) content of the named entry.
// It is an alias of Extract kept for io-style call sites.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	return r.Extract(name)
}
