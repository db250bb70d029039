// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

// Package lf reads and writes terrain block tables (.lf).
//
// A table is a fixed little-endian header followed by one record per terrain
// block. Every record points at an uncompressed block blob stored after the
// table. Read and Write handle the table only; blob bytes are fetched with
// ReadBlockData and supplied to Write through Block openers.
package lf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/slidetown/agt/backpatch"
)

const (
	// Magic opens every terrain block table.
	Magic = "LF\x00\x00kjc\x00ag\x00\x00"

	// VersionOriginal is the first known version date.
	VersionOriginal = 20061220
	// VersionCurrent is the version date written by current game builds.
	VersionCurrent = 20090406

	// Unknown3Len is the number of opaque u32 fields after the block count.
	Unknown3Len = 13
	// Unknown4Len is the number of opaque f32 fields after the grid size.
	Unknown4Len = 5

	headerSize = 12 + 4*3 + 4*Unknown3Len + 4*3 + 4*Unknown4Len
	blockSize  = 4 * 6

	// maxPrealloc bounds block slice preallocation from untrusted counts.
	maxPrealloc = 4096
)

var (
	// ErrInvalidMagic means the input does not start with Magic.
	ErrInvalidMagic = errors.New("invalid lf magic")
	// ErrUnsupportedVersion means the version date is not a known one.
	ErrUnsupportedVersion = errors.New("unsupported lf version")
	// ErrTruncated means the table ended before all declared blocks were read.
	ErrTruncated = errors.New("truncated lf table")
	// ErrFieldCount means an opaque field list has the wrong length on write.
	ErrFieldCount = errors.New("invalid lf opaque field count")
	// ErrBlobTooLarge means a block blob does not fit the u32 offset space.
	ErrBlobTooLarge = errors.New("lf block blob exceeds u32 range")
	// ErrNilOpener means Write was asked to emit a block without a blob source.
	ErrNilOpener = errors.New("lf block has no blob opener")
)

// Block is one terrain block record.
type Block struct {
	// Open returns the block blob for Write. It is not stored in the table.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`

	Index     uint32 `json:"index" yaml:"index"`
	PositionX uint32 `json:"position_x" yaml:"position_x"`
	PositionY uint32 `json:"position_y" yaml:"position_y"`

	// FileOffset and FileLength locate the blob; Write recomputes both.
	FileOffset uint32 `json:"-" yaml:"-"`
	FileLength uint32 `json:"-" yaml:"-"`

	Unknown uint32 `json:"unknown" yaml:"unknown"`
}

// File is a decoded terrain block table.
type File struct {
	Unknown3 []uint32  `json:"unknown3" yaml:"unknown3,flow"`
	Unknown4 []float32 `json:"unknown4" yaml:"unknown4,flow"`
	Blocks   []Block   `json:"blocks" yaml:"blocks"`

	VersionDate uint32 `json:"version_date" yaml:"version_date"`
	Unknown2    uint32 `json:"unknown2" yaml:"unknown2"`
	SizeX       uint32 `json:"size_x" yaml:"size_x"`
	SizeY       uint32 `json:"size_y" yaml:"size_y"`
	SizeIdx     uint32 `json:"size_idx" yaml:"size_idx"`
}

// rawHeader is the fixed wire layout before the block records.
type rawHeader struct {
	Magic       [12]byte
	VersionDate uint32
	Unknown2    uint32
	BlockCount  uint32
	Unknown3    [Unknown3Len]uint32
	SizeX       uint32
	SizeY       uint32
	SizeIdx     uint32
	Unknown4    [Unknown4Len]float32
}

// rawBlock is the wire layout of one block record.
type rawBlock struct {
	Index      uint32
	PositionX  uint32
	PositionY  uint32
	FileOffset uint32
	FileLength uint32
	Unknown    uint32
}

// SupportedVersion reports whether v is a known version date.
func SupportedVersion(v uint32) bool {
	return v == VersionOriginal || v == VersionCurrent
}

// Read decodes the table from r without reading block blobs.
func Read(r io.Reader) (*File, error) {
	var h rawHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, wrapTruncated("read header", err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, h.Magic[:])
	}
	if !SupportedVersion(h.VersionDate) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.VersionDate)
	}

	f := &File{
		VersionDate: h.VersionDate,
		Unknown2:    h.Unknown2,
		Unknown3:    append([]uint32(nil), h.Unknown3[:]...),
		SizeX:       h.SizeX,
		SizeY:       h.SizeY,
		SizeIdx:     h.SizeIdx,
		Unknown4:    append([]float32(nil), h.Unknown4[:]...),
		Blocks:      make([]Block, 0, min(int(h.BlockCount), maxPrealloc)),
	}

	for i := range h.BlockCount {
		var b rawBlock
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return nil, wrapTruncated(fmt.Sprintf("read block %d", i), err)
		}

		f.Blocks = append(f.Blocks, Block{
			Index:      b.Index,
			PositionX:  b.PositionX,
			PositionY:  b.PositionY,
			FileOffset: b.FileOffset,
			FileLength: b.FileLength,
			Unknown:    b.Unknown,
		})
	}

	return f, nil
}

// ReadBlockData reads the blob of b from r.
func ReadBlockData(r io.ReaderAt, b Block) ([]byte, error) {
	buf := make([]byte, b.FileLength)
	if len(buf) == 0 {
		return buf, nil
	}

	if _, err := r.ReadAt(buf, int64(b.FileOffset)); err != nil {
		return nil, wrapTruncated(fmt.Sprintf("read block %d blob", b.Index), err)
	}

	return buf, nil
}

// TableSize returns the encoded size of the table for blockCount blocks.
func TableSize(blockCount int) int64 {
	return headerSize + int64(blockCount)*blockSize
}

// Write emits the table of f followed by every block blob in record order.
// Blob offsets and lengths are written as placeholders and resolved once all
// blobs are copied. ws must be positioned at the table start. The returned
// blocks carry the resolved offsets.
func Write(ws io.WriteSeeker, f *File) ([]Block, error) {
	if len(f.Unknown3) != Unknown3Len || len(f.Unknown4) != Unknown4Len {
		return nil, fmt.Errorf("%w: unknown3=%d unknown4=%d", ErrFieldCount, len(f.Unknown3), len(f.Unknown4))
	}
	if !SupportedVersion(f.VersionDate) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.VersionDate)
	}

	h := rawHeader{
		VersionDate: f.VersionDate,
		Unknown2:    f.Unknown2,
		BlockCount:  uint32(len(f.Blocks)),
		SizeX:       f.SizeX,
		SizeY:       f.SizeY,
		SizeIdx:     f.SizeIdx,
	}
	copy(h.Magic[:], Magic)
	copy(h.Unknown3[:], f.Unknown3)
	copy(h.Unknown4[:], f.Unknown4)

	if err := binary.Write(ws, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	var pending backpatch.Offsets
	for _, b := range f.Blocks {
		if err := binary.Write(ws, binary.LittleEndian, [3]uint32{b.Index, b.PositionX, b.PositionY}); err != nil {
			return nil, fmt.Errorf("write block %d: %w", b.Index, err)
		}
		if err := pending.Mark(ws, 0, 0); err != nil {
			return nil, err
		}
		if err := binary.Write(ws, binary.LittleEndian, b.Unknown); err != nil {
			return nil, fmt.Errorf("write block %d: %w", b.Index, err)
		}
	}

	out := make([]Block, len(f.Blocks))
	values := make([]uint32, 0, pending.Fields())
	for i, b := range f.Blocks {
		offset, length, err := copyBlob(ws, b)
		if err != nil {
			return nil, err
		}

		b.FileOffset, b.FileLength = offset, length
		out[i] = b
		values = append(values, offset, length)
	}

	if err := pending.Resolve(ws, values); err != nil {
		return nil, err
	}

	return out, nil
}

// copyBlob appends the blob of b at the current write position.
func copyBlob(ws io.WriteSeeker, b Block) (uint32, uint32, error) {
	if b.Open == nil {
		return 0, 0, fmt.Errorf("%w: block %d", ErrNilOpener, b.Index)
	}

	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, fmt.Errorf("query blob position: %w", err)
	}

	rc, err := b.Open()
	if err != nil {
		return 0, 0, fmt.Errorf("open block %d blob: %w", b.Index, err)
	}
	defer func() { _ = rc.Close() }()

	n, err := io.Copy(ws, rc)
	if err != nil {
		return 0, 0, fmt.Errorf("copy block %d blob: %w", b.Index, err)
	}

	if pos > math.MaxUint32 || n > math.MaxUint32 || pos+n > math.MaxUint32 {
		return 0, 0, fmt.Errorf("%w: block %d at %d, %d bytes", ErrBlobTooLarge, b.Index, pos, n)
	}

	return uint32(pos), uint32(n), nil
}

// wrapTruncated maps short reads to ErrTruncated.
func wrapTruncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w: %w", op, ErrTruncated, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
