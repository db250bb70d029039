// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/slidetown/agt/backpatch"
)

func TestXORKeystream_HeaderIsPlaintext(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 64)
	XORKeystream(buf, 0, testKey)

	for i := range HeaderSize {
		if buf[i] != 0 {
			t.Fatalf("byte %d=%#x, want 0", i, buf[i])
		}
	}
	for i := HeaderSize; i < len(buf); i++ {
		if want := testKey[i%len(testKey)]; buf[i] != want {
			t.Fatalf("byte %d=%#x, want %#x", i, buf[i], want)
		}
	}
}

func TestXORKeystream_SpanningBoundary(t *testing.T) {
	t.Parallel()

	whole := make([]byte, 80)
	XORKeystream(whole, 0, testKey)

	part := make([]byte, 20)
	XORKeystream(part, 20, testKey)

	if !bytes.Equal(part, whole[20:40]) {
		t.Fatalf("partial=% X, want % X", part, whole[20:40])
	}
}

func TestXORKeystream_Involution(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	plain := make([]byte, 300)
	rng.Read(plain)

	for _, pos := range []int64{0, 31, 32, 33, 1000, 1 << 31} {
		buf := append([]byte(nil), plain...)
		XORKeystream(buf, pos, ReferenceKey())
		XORKeystream(buf, pos, ReferenceKey())

		if !bytes.Equal(buf, plain) {
			t.Fatalf("pos %d: double XOR changed data", pos)
		}
	}
}

func TestXORKeystream_ShiftedOffsetDiffers(t *testing.T) {
	t.Parallel()

	plain := bytes.Repeat([]byte("NeoData"), 20)
	enc := append([]byte(nil), plain...)
	XORKeystream(enc, 100, testKey)

	shifted := append([]byte(nil), enc...)
	XORKeystream(shifted, 101, testKey)

	if bytes.Equal(shifted, plain) {
		t.Fatal("deciphering at a shifted offset must not recover plaintext")
	}
}

func TestKeystreamReaderWriter_RoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	plain := make([]byte, 5000)
	rng.Read(plain)

	buf := backpatch.NewBuffer(0)
	w, err := NewKeystreamWriter(buf, testKey)
	if err != nil {
		t.Fatalf("NewKeystreamWriter: %v", err)
	}

	for start := 0; start < len(plain); start += 333 {
		if _, err := w.Write(plain[start:min(start+333, len(plain))]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.Position() != int64(len(plain)) {
		t.Fatalf("Position=%d, want %d", w.Position(), len(plain))
	}

	raw := buf.Bytes()
	if !bytes.Equal(raw[:HeaderSize], plain[:HeaderSize]) {
		t.Fatal("first 32 bytes must be written as plaintext")
	}
	if bytes.Equal(raw[HeaderSize:], plain[HeaderSize:]) {
		t.Fatal("bytes past the header must be enciphered")
	}

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	r, err := NewKeystreamReader(buf, testKey)
	if err != nil {
		t.Fatalf("NewKeystreamReader: %v", err)
	}

	got := make([]byte, 0, len(plain))
	chunk := make([]byte, 7)
	for {
		n, err := r.Read(chunk)
		got = append(got, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	if !bytes.Equal(got, plain) {
		t.Fatal("round trip mismatch")
	}
}

func TestKeystreamReader_SeekResyncsOffset(t *testing.T) {
	t.Parallel()

	plain := make([]byte, 200)
	for i := range plain {
		plain[i] = byte(i)
	}
	enc := encipher(plain, testKey)

	r, err := NewKeystreamReader(bytes.NewReader(enc), testKey)
	if err != nil {
		t.Fatalf("NewKeystreamReader: %v", err)
	}

	read := func(off int64, whence int, n int) []byte {
		t.Helper()

		if _, err := r.Seek(off, whence); err != nil {
			t.Fatalf("Seek(%d, %d): %v", off, whence, err)
		}

		out := make([]byte, n)
		if _, err := io.ReadFull(r, out); err != nil {
			t.Fatalf("ReadFull: %v", err)
		}
		return out
	}

	first := read(90, io.SeekStart, 30)
	again := read(90, io.SeekStart, 30)
	if !bytes.Equal(first, plain[90:120]) || !bytes.Equal(again, first) {
		t.Fatalf("repeat read=% X, want % X", again, plain[90:120])
	}

	if got := read(-10, io.SeekEnd, 10); !bytes.Equal(got, plain[190:]) {
		t.Fatalf("tail=% X, want % X", got, plain[190:])
	}

	if got := read(16, io.SeekStart, 32); !bytes.Equal(got, plain[16:48]) {
		t.Fatalf("boundary read=% X, want % X", got, plain[16:48])
	}

	if _, err := r.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("negative seek must fail")
	}
	if r.Position() != 48 {
		t.Fatalf("Position after failed seek=%d, want 48", r.Position())
	}
}

func TestKeystreamReader_StartsAtCurrentPosition(t *testing.T) {
	t.Parallel()

	plain := bytes.Repeat([]byte{0x42}, 100)
	src := bytes.NewReader(encipher(plain, testKey))
	if _, err := src.Seek(50, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	r, err := NewKeystreamReader(src, testKey)
	if err != nil {
		t.Fatalf("NewKeystreamReader: %v", err)
	}
	if r.Position() != 50 {
		t.Fatalf("Position=%d, want 50", r.Position())
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain[50:]) {
		t.Fatalf("payload=% X, want % X", got, plain[50:])
	}
}

func TestKeystreamReaderAt(t *testing.T) {
	t.Parallel()

	plain := bytes.Repeat([]byte("abcdef"), 30)
	ra, err := NewKeystreamReaderAt(bytes.NewReader(encipher(plain, testKey)), testKey)
	if err != nil {
		t.Fatalf("NewKeystreamReaderAt: %v", err)
	}

	for _, off := range []int64{0, 10, 31, 32, 77} {
		got := make([]byte, 40)
		if _, err := ra.ReadAt(got, off); err != nil {
			t.Fatalf("ReadAt(%d): %v", off, err)
		}
		if !bytes.Equal(got, plain[off:off+40]) {
			t.Fatalf("ReadAt(%d)=% X, want % X", off, got, plain[off:off+40])
		}
	}
}

func TestKeystream_RejectsEmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := NewKeystreamReader(bytes.NewReader(nil), nil); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("reader: expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewKeystreamWriter(backpatch.NewBuffer(0), []byte{}); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("writer: expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewKeystreamReaderAt(bytes.NewReader(nil), nil); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("reader at: expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewKeystreamReader(nil, testKey); !errors.Is(err, ErrNilReader) {
		t.Fatalf("nil reader: expected ErrNilReader, got %v", err)
	}
}

func TestReferenceKey(t *testing.T) {
	t.Parallel()

	key := ReferenceKey()
	if len(key) != 90 {
		t.Fatalf("len(key)=%d, want 90", len(key))
	}

	key[0] ^= 0xFF
	if ReferenceKey()[0] == key[0] {
		t.Fatal("ReferenceKey must return a copy")
	}
}
