// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ReadHeader decodes the fixed archive header from r.
// Version fields are returned as stored; see Header.Supported.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, wrapTruncated("read header", err)
	}

	return parseHeader(raw[:])
}

// parseHeader decodes exactly HeaderSize plaintext bytes.
func parseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes", ErrTruncated, len(raw))
	}
	if string(raw[:len(Magic)]) != Magic {
		return Header{}, fmt.Errorf("%w: magic %q", ErrInvalidHeader, raw[:len(Magic)])
	}

	h := Header{
		Reserved:     binary.LittleEndian.Uint32(raw[8:12]),
		VersionMajor: binary.LittleEndian.Uint16(raw[12:14]),
		VersionMinor: binary.LittleEndian.Uint16(raw[14:16]),
		FileCount:    binary.LittleEndian.Uint32(raw[16:20]),
	}
	copy(h.Opaque[:], raw[20:HeaderSize])

	return h, nil
}

// Supported reports whether the header carries the known format version.
func (h Header) Supported() bool {
	return h.VersionMajor == VersionMajor && h.VersionMinor == VersionMinor
}

// MarshalBinary encodes the header into its 32-byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.appendTo(make([]byte, 0, HeaderSize)), nil
}

// appendTo appends the wire form of h to buf.
func (h Header) appendTo(buf []byte) []byte {
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Reserved)
	buf = binary.LittleEndian.AppendUint16(buf, h.VersionMajor)
	buf = binary.LittleEndian.AppendUint16(buf, h.VersionMinor)
	buf = binary.LittleEndian.AppendUint32(buf, h.FileCount)
	return append(buf, h.Opaque[:]...)
}

// WriteHeader writes the 32-byte header to w.
func WriteHeader(w io.Writer, h Header) error {
	if _, err := w.Write(h.appendTo(make([]byte, 0, HeaderSize))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return nil
}

// ReadEntry decodes one directory record from r.
func ReadEntry(r io.Reader) (Entry, error) {
	var fixed [entryFixedSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Entry{}, wrapTruncated("read entry", err)
	}

	pathLen := binary.LittleEndian.Uint32(fixed[12:16])
	if pathLen > maxPathLen {
		return Entry{}, fmt.Errorf("%w: path length %d exceeds %d", ErrFormat, pathLen, maxPathLen)
	}

	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return Entry{}, wrapTruncated("read entry path", err)
	}

	if !utf8.Valid(pathBytes) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidPath, pathBytes)
	}

	return Entry{
		DataOffset:         binary.LittleEndian.Uint32(fixed[0:4]),
		ChunkCount:         binary.LittleEndian.Uint32(fixed[4:8]),
		DecompressedLength: binary.LittleEndian.Uint32(fixed[8:12]),
		Path:               string(pathBytes),
	}, nil
}

// ReadEntries decodes count consecutive directory records from r, preserving file order.
func ReadEntries(r io.Reader, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, min(int(count), maxPrealloc/64))
	for i := range count {
		entry, err := ReadEntry(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// MarshalBinary encodes the directory record into its wire form.
func (e Entry) MarshalBinary() ([]byte, error) {
	if err := validateEntryPath(e.Path); err != nil {
		return nil, err
	}

	return e.appendTo(make([]byte, 0, e.encodedSize())), nil
}

// encodedSize returns the record length on disk.
func (e Entry) encodedSize() int {
	return entryFixedSize + len(e.Path)
}

// appendTo appends the wire form of e to buf; the path must be validated first.
func (e Entry) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, e.DataOffset)
	buf = binary.LittleEndian.AppendUint32(buf, e.ChunkCount)
	buf = binary.LittleEndian.AppendUint32(buf, e.DecompressedLength)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Path)))
	return append(buf, e.Path...)
}

// WriteEntry writes one directory record to w in a single Write call.
func WriteEntry(w io.Writer, e Entry) error {
	buf, err := e.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write entry %q: %w", e.Path, err)
	}

	return nil
}

// validateEntryPath checks a path can be stored in a directory record.
func validateEntryPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	}
	if len(p) > maxPathLen {
		return fmt.Errorf("%w: path is %d bytes, limit %d", ErrInvalidEntryPath, len(p), maxPathLen)
	}
	if !utf8.ValidString(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	return nil
}

// wrapTruncated maps short reads to ErrTruncated and passes other I/O errors through.
func wrapTruncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", ErrTruncated, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
