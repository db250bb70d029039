// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"fmt"
	"io"
)

// XORKeystream XORs buf in place as if it was located at absolute stream offset pos.
// Bytes below KeystreamOffset are left untouched; every other byte at offset p
// is XORed with key[p mod len(key)]. Applying it twice at the same pos restores buf.
func XORKeystream(buf []byte, pos int64, key []byte) {
	if len(key) == 0 || len(buf) == 0 {
		return
	}

	start := 0
	if pos < KeystreamOffset {
		skip := KeystreamOffset - pos
		if skip >= int64(len(buf)) {
			return
		}

		start = int(skip)
	}

	k := int((pos + int64(start)) % int64(len(key)))
	for i := start; i < len(buf); i++ {
		buf[i] ^= key[k]
		k++
		if k == len(key) {
			k = 0
		}
	}
}

// KeystreamReader removes the archive keystream from bytes read from a seekable source.
// Its position always mirrors the wrapped stream: it is refreshed from every Seek result
// and advanced by the byte count of every Read.
type KeystreamReader struct {
	r   io.ReadSeeker
	key []byte
	pos int64
}

// NewKeystreamReader wraps r starting at its current position.
func NewKeystreamReader(r io.ReadSeeker, key []byte) (*KeystreamReader, error) {
	if r == nil {
		return nil, ErrNilReader
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("query stream position: %w", err)
	}

	return &KeystreamReader{
		r:   r,
		key: append([]byte(nil), key...),
		pos: pos,
	}, nil
}

// Read reads from the wrapped stream and deciphers the returned bytes.
func (k *KeystreamReader) Read(p []byte) (int, error) {
	n, err := k.r.Read(p)
	if n > 0 {
		XORKeystream(p[:n], k.pos, k.key)
		k.pos += int64(n)
	}

	return n, err
}

// Seek repositions the wrapped stream and adopts its resulting absolute offset.
func (k *KeystreamReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := k.r.Seek(offset, whence)
	if err != nil {
		k.resync()
		return pos, err
	}

	k.pos = pos
	return pos, nil
}

// Position returns the absolute offset used for the next keystream byte.
func (k *KeystreamReader) Position() int64 {
	return k.pos
}

// resync re-reads the wrapped stream offset after a failed seek.
func (k *KeystreamReader) resync() {
	if cur, err := k.r.Seek(0, io.SeekCurrent); err == nil {
		k.pos = cur
	}
}

// KeystreamWriter enciphers bytes on their way to a seekable sink.
type KeystreamWriter struct {
	w   io.WriteSeeker
	key []byte
	buf []byte
	pos int64
}

// NewKeystreamWriter wraps w starting at its current position.
func NewKeystreamWriter(w io.WriteSeeker, key []byte) (*KeystreamWriter, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("query stream position: %w", err)
	}

	return &KeystreamWriter{
		w:   w,
		key: append([]byte(nil), key...),
		pos: pos,
	}, nil
}

// Write enciphers p for the current position and writes it to the wrapped stream.
// p itself is not modified.
func (k *KeystreamWriter) Write(p []byte) (int, error) {
	if cap(k.buf) < len(p) {
		k.buf = make([]byte, len(p))
	}

	buf := k.buf[:len(p)]
	copy(buf, p)
	XORKeystream(buf, k.pos, k.key)

	n, err := k.w.Write(buf)
	if n > 0 {
		k.pos += int64(n)
	}

	return n, err
}

// Seek repositions the wrapped stream and adopts its resulting absolute offset.
func (k *KeystreamWriter) Seek(offset int64, whence int) (int64, error) {
	pos, err := k.w.Seek(offset, whence)
	if err != nil {
		if cur, qerr := k.w.Seek(0, io.SeekCurrent); qerr == nil {
			k.pos = cur
		}

		return pos, err
	}

	k.pos = pos
	return pos, nil
}

// Position returns the absolute offset used for the next keystream byte.
func (k *KeystreamWriter) Position() int64 {
	return k.pos
}

// KeystreamReaderAt deciphers random-access reads; ReadAt offsets are absolute archive offsets.
// It is safe for concurrent use when the wrapped io.ReaderAt is.
type KeystreamReaderAt struct {
	ra  io.ReaderAt
	key []byte
}

// NewKeystreamReaderAt wraps ra with the archive keystream.
func NewKeystreamReaderAt(ra io.ReaderAt, key []byte) (*KeystreamReaderAt, error) {
	if ra == nil {
		return nil, ErrNilReader
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	return &KeystreamReaderAt{ra: ra, key: append([]byte(nil), key...)}, nil
}

// ReadAt reads len(p) bytes at absolute offset off and deciphers them.
func (k *KeystreamReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := k.ra.ReadAt(p, off)
	if n > 0 {
		XORKeystream(p[:n], off, k.key)
	}

	return n, err
}
