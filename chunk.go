// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// ChunkCount returns the number of chunks needed for length raw bytes: ceil(length/ChunkSize).
func ChunkCount(length int64) uint32 {
	if length <= 0 {
		return 0
	}

	return uint32((length + ChunkSize - 1) / ChunkSize)
}

// CompressChunks splits data into ChunkSize slices (the last one shorter) and deflates
// every slice as its own zlib stream. It returns per-chunk compressed lengths
// and the concatenated compressed bytes.
func CompressChunks(data []byte) ([]uint16, []byte, error) {
	var c chunkCompressor
	return c.compress(data)
}

// DecompressChunks inflates consecutive zlib streams whose sizes are given by lengths
// and verifies the concatenated output is exactly expected bytes long.
func DecompressChunks(compressed []byte, lengths []uint16, expected uint32) ([]byte, error) {
	var total int
	for _, n := range lengths {
		total += int(n)
	}
	if total > len(compressed) {
		return nil, fmt.Errorf("%w: need %d compressed bytes, have %d", ErrCorruptChunk, total, len(compressed))
	}

	return inflateChunks(bytes.NewReader(compressed), lengths, expected)
}

// chunkCompressor deflates chunks while reusing one zlib writer and output buffer.
type chunkCompressor struct {
	zw  *zlib.Writer
	buf bytes.Buffer
}

// compress deflates data chunk by chunk; Reset gives every chunk a fresh stream.
func (c *chunkCompressor) compress(data []byte) ([]uint16, []byte, error) {
	count := ChunkCount(int64(len(data)))
	if count == 0 {
		return nil, nil, nil
	}

	lengths := make([]uint16, 0, count)
	out := make([]byte, 0, len(data)/2+int(count)*8)

	for start := 0; start < len(data); start += ChunkSize {
		end := min(start+ChunkSize, len(data))

		chunk, err := c.deflate(data[start:end])
		if err != nil {
			return nil, nil, err
		}

		if len(chunk) > math.MaxUint16 {
			return nil, nil, fmt.Errorf("%w: chunk %d is %d bytes", ErrChunkTooLarge, len(lengths), len(chunk))
		}

		lengths = append(lengths, uint16(len(chunk)))
		out = append(out, chunk...)
	}

	return lengths, out, nil
}

// deflate compresses one slice; the returned bytes are valid until the next call.
func (c *chunkCompressor) deflate(raw []byte) ([]byte, error) {
	c.buf.Reset()

	if c.zw == nil {
		zw, err := zlib.NewWriterLevel(&c.buf, zlib.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("create zlib writer: %w", err)
		}

		c.zw = zw
	} else {
		c.zw.Reset(&c.buf)
	}

	if _, err := c.zw.Write(raw); err != nil {
		return nil, fmt.Errorf("deflate chunk: %w", err)
	}

	if err := c.zw.Close(); err != nil {
		return nil, fmt.Errorf("finish chunk: %w", err)
	}

	return c.buf.Bytes(), nil
}

// readChunkTable reads count little-endian u16 compressed chunk lengths.
func readChunkTable(r io.Reader, count uint32) ([]uint16, error) {
	if count == 0 {
		return nil, nil
	}

	raw := make([]byte, int(count)*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: read chunk length table: %w", ErrCorruptChunk, err)
	}

	lengths := make([]uint16, count)
	for i := range lengths {
		lengths[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}

	return lengths, nil
}

// readChunkData reads an entry data region from r (positioned at the entry's data offset)
// and returns the inflated payload.
func readChunkData(r io.Reader, chunkCount, length uint32) ([]byte, error) {
	lengths, err := readChunkTable(r, chunkCount)
	if err != nil {
		return nil, err
	}

	return inflateChunks(r, lengths, length)
}

// readRawChunks reads an entry data region without inflating it.
func readRawChunks(r io.Reader, chunkCount uint32) ([]uint16, []byte, error) {
	lengths, err := readChunkTable(r, chunkCount)
	if err != nil {
		return nil, nil, err
	}

	var total int
	for _, n := range lengths {
		total += int(n)
	}

	payload := make([]byte, total)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("%w: read compressed chunks: %w", ErrCorruptChunk, err)
	}

	return lengths, payload, nil
}

// inflateChunks inflates len(lengths) consecutive zlib streams from r.
func inflateChunks(r io.Reader, lengths []uint16, expected uint32) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, min(int(expected), maxPrealloc)))
	span := make([]byte, 0, math.MaxUint16)

	var zr io.ReadCloser
	for i, n := range lengths {
		span = span[:n]
		if _, err := io.ReadFull(r, span); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrCorruptChunk, i, err)
		}

		var err error
		if zr == nil {
			zr, err = zlib.NewReader(bytes.NewReader(span))
		} else {
			err = zr.(zlib.Resetter).Reset(bytes.NewReader(span), nil)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrCorruptChunk, i, err)
		}

		before := out.Len()
		if _, err := out.ReadFrom(io.LimitReader(zr, ChunkSize+1)); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrCorruptChunk, i, err)
		}

		if got := out.Len() - before; got > ChunkSize {
			return nil, fmt.Errorf("%w: chunk %d inflates past %d bytes", ErrCorruptChunk, i, ChunkSize)
		}

		if out.Len() > int(expected) {
			return nil, fmt.Errorf("%w: got more than %d bytes", ErrLengthMismatch, expected)
		}
	}

	if zr != nil {
		_ = zr.Close()
	}

	if out.Len() != int(expected) {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrLengthMismatch, out.Len(), expected)
	}

	return out.Bytes(), nil
}
