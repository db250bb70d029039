// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package backpatch

import (
	"errors"
	"io"
)

var errNegativePosition = errors.New("negative buffer position")

// Buffer is an in-memory io.ReadWriteSeeker for outputs that need backpatching
// before they reach a file or a network response. The zero value is an empty buffer.
type Buffer struct {
	data []byte
	pos  int64
}

// NewBuffer returns an empty Buffer with room for capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, max(0, capacity))}
}

// Bytes returns the buffer contents; the slice aliases internal storage.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer size.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Write writes p at the current position, growing the buffer and zero-filling any gap.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.pos == int64(len(b.data)) {
		b.data = append(b.data, p...)
		b.pos += int64(len(p))
		return len(p), nil
	}

	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		b.data = append(b.data, make([]byte, end-int64(len(b.data)))...)
	}

	n := copy(b.data[b.pos:], p)
	b.pos += int64(n)
	return n, nil
}

// Read reads from the current position.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}

	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

// ReadAt implements io.ReaderAt over the current contents.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativePosition
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}

	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// Seek sets the position; seeking past the end is allowed and a later Write fills the gap.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return b.pos, errors.New("invalid whence")
	}

	if pos < 0 {
		return b.pos, errNegativePosition
	}

	b.pos = pos
	return pos, nil
}
