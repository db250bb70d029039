// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bytes"
	"errors"
	"testing"
)

// Headers captured from retail archives.
var (
	header0Files = []byte{
		0x4E, 0x61, 0x79, 0x61, 0x50, 0x61, 0x63, 0x6B,
		0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x07, 0x51, 0x35, 0x19,
		0x04, 0x06, 0x05, 0x02, 0x06, 0x47, 0x2B, 0x0F,
	}
	header7Files = []byte{
		0x4E, 0x61, 0x79, 0x61, 0x50, 0x61, 0x63, 0x6B,
		0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
		0x07, 0x00, 0x00, 0x00, 0xAA, 0x5E, 0xC0, 0x7A,
		0x04, 0x06, 0x05, 0x02, 0x06, 0x47, 0x2B, 0x0F,
	}
	entryPivot = append([]byte{
		0x1C, 0x82, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00,
		0xE1, 0x0C, 0x00, 0x00, 0x13, 0x00, 0x00, 0x00,
	}, `Data\blue-pivot.nif`...)
)

func TestReadHeader_Vectors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		raw       []byte
		fileCount uint32
	}{
		{name: "empty archive", raw: header0Files, fileCount: 0},
		{name: "seven files", raw: header7Files, fileCount: 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, err := ReadHeader(bytes.NewReader(tc.raw))
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}

			if h.FileCount != tc.fileCount {
				t.Fatalf("FileCount=%d, want %d", h.FileCount, tc.fileCount)
			}
			if h.VersionMajor != 1 || h.VersionMinor != 1 {
				t.Fatalf("version=%d.%d, want 1.1", h.VersionMajor, h.VersionMinor)
			}
			if h.Reserved != 0 {
				t.Fatalf("Reserved=%d, want 0", h.Reserved)
			}
			if !h.Supported() {
				t.Fatal("header must be supported")
			}
			if !bytes.Equal(h.Opaque[:], tc.raw[20:32]) {
				t.Fatalf("Opaque=% X, want % X", h.Opaque, tc.raw[20:32])
			}

			got, err := h.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary: %v", err)
			}
			if !bytes.Equal(got, tc.raw) {
				t.Fatalf("MarshalBinary=% X, want % X", got, tc.raw)
			}

			for n := range len(tc.raw) {
				_, err := ReadHeader(bytes.NewReader(tc.raw[:n]))
				if !errors.Is(err, ErrTruncated) {
					t.Fatalf("prefix %d: expected ErrTruncated, got %v", n, err)
				}
			}
		})
	}
}

func TestReadHeader_BadMagic(t *testing.T) {
	t.Parallel()

	raw := append([]byte(nil), header0Files...)
	raw[7] = 'X'

	_, err := ReadHeader(bytes.NewReader(raw))
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat class, got %v", err)
	}
}

func TestHeader_Supported(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		major, minor uint16
		want         bool
	}{
		{major: 1, minor: 1, want: true},
		{major: 1, minor: 0, want: false},
		{major: 2, minor: 1, want: false},
	}

	for _, tc := range testCases {
		h := Header{VersionMajor: tc.major, VersionMinor: tc.minor}
		if got := h.Supported(); got != tc.want {
			t.Fatalf("Supported(%d.%d)=%v, want %v", tc.major, tc.minor, got, tc.want)
		}
	}
}

func TestReadEntry_PivotVector(t *testing.T) {
	t.Parallel()

	e, err := ReadEntry(bytes.NewReader(entryPivot))
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}

	want := Entry{
		DataOffset:         164380,
		ChunkCount:         1,
		DecompressedLength: 3297,
		Path:               `Data\blue-pivot.nif`,
	}
	if e != want {
		t.Fatalf("entry=%+v, want %+v", e, want)
	}

	got, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(got, entryPivot) {
		t.Fatalf("MarshalBinary=% X, want % X", got, entryPivot)
	}

	for n := range len(entryPivot) {
		_, err := ReadEntry(bytes.NewReader(entryPivot[:n]))
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("prefix %d: expected ErrTruncated, got %v", n, err)
		}
	}
}

func TestReadEntries_ReportsFailingIndex(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteEntry(&buf, Entry{Path: "a.txt"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	buf.Write(entryPivot[:10])

	_, err := ReadEntries(bytes.NewReader(buf.Bytes()), 2)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if want := "entry 1:"; !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Fatalf("error %q must mention %q", err, want)
	}
}

func TestWriteEntry_RejectsInvalidPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		path string
		want error
	}{
		{name: "empty", path: "", want: ErrInvalidEntryPath},
		{name: "too long", path: string(bytes.Repeat([]byte("a"), maxPathLen+1)), want: ErrInvalidEntryPath},
		{name: "invalid utf8", path: "bad\xff.txt", want: ErrInvalidPath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			err := WriteEntry(&buf, Entry{Path: tc.path})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if buf.Len() != 0 {
				t.Fatalf("wrote %d bytes on error", buf.Len())
			}
		})
	}
}

func TestWriteHeader_EnciphersNothing(t *testing.T) {
	t.Parallel()

	h, err := ReadHeader(bytes.NewReader(header7Files))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	var plain bytes.Buffer
	if err := WriteHeader(&plain, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	enciphered := append([]byte(nil), plain.Bytes()...)
	XORKeystream(enciphered, 0, ReferenceKey())
	if !bytes.Equal(enciphered, header7Files) {
		t.Fatalf("header bytes changed under keystream: % X", enciphered)
	}
}
