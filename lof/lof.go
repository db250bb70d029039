// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

// Package lof reads and writes model tables (.lof).
//
// A model table lists placeable models with their display settings and the
// location of each model blob stored after the table. Model and file names
// are NUL-terminated EUC-KR strings on disk and UTF-8 strings in memory.
package lof

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/slidetown/agt/backpatch"
	"golang.org/x/text/encoding/korean"
)

const (
	// Magic opens every model table.
	Magic = "LOF\x00kjc\x00ag\x00\x00"
	// Version is the only known version date.
	Version = 20061222

	headerSize = 12 + 4*3

	// maxNameLen bounds a NUL-terminated name read from untrusted input.
	maxNameLen = 1024
	// maxPrealloc bounds model slice preallocation from untrusted counts.
	maxPrealloc = 4096
)

var (
	// ErrInvalidMagic means the input does not start with Magic.
	ErrInvalidMagic = errors.New("invalid lof magic")
	// ErrUnsupportedVersion means the version date is not Version.
	ErrUnsupportedVersion = errors.New("unsupported lof version")
	// ErrTruncated means the table ended before all declared models were read.
	ErrTruncated = errors.New("truncated lof table")
	// ErrInvalidName means a name is unterminated, too long, or not representable in EUC-KR.
	ErrInvalidName = errors.New("invalid lof model name")
	// ErrBlobTooLarge means a model blob does not fit the u32 offset space.
	ErrBlobTooLarge = errors.New("lof model blob exceeds u32 range")
	// ErrNilOpener means Write was asked to emit a model without a blob source.
	ErrNilOpener = errors.New("lof model has no blob opener")
)

// Model is one model table record.
type Model struct {
	// Open returns the model blob for Write. It is not stored in the table.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`

	Name     string `json:"name" yaml:"name"`
	FileName string `json:"file_name" yaml:"file_name"`

	Index    uint32 `json:"index" yaml:"index"`
	Unknown1 uint32 `json:"unknown1" yaml:"unknown1"`
	Unknown2 uint32 `json:"unknown2" yaml:"unknown2"`
	Unknown3 uint32 `json:"unknown3" yaml:"unknown3"`
	Lighting uint32 `json:"lighting" yaml:"lighting"`
	EffectID uint32 `json:"effect_id" yaml:"effect_id"`

	AnimationDuration float32 `json:"animation_duration" yaml:"animation_duration"`
	Loop              uint32  `json:"loop" yaml:"loop"`
	RandomOffset      uint32  `json:"random_offset" yaml:"random_offset"`

	// FileOffset and FileLength locate the blob; Write recomputes both.
	FileOffset uint32 `json:"-" yaml:"-"`
	FileLength uint32 `json:"-" yaml:"-"`
}

// File is a decoded model table. The model count is derived from Models.
type File struct {
	Models      []Model `json:"models" yaml:"models"`
	VersionDate uint32  `json:"version_date" yaml:"version_date"`
	MaxFileSize uint32  `json:"max_file_size" yaml:"max_file_size"`
}

type rawHeader struct {
	Magic       [12]byte
	VersionDate uint32
	ModelCount  uint32
	MaxFileSize uint32
}

type rawModelHead struct {
	Index    uint32
	Unknown1 uint32
	Unknown2 uint32
	Unknown3 uint32
	Lighting uint32
	EffectID uint32
}

type rawModelTail struct {
	AnimationDuration float32
	Loop              uint32
	RandomOffset      uint32
	FileOffset        uint32
	FileLength        uint32
}

// Read decodes the table from r without reading model blobs.
// r is buffered internally, so it may be consumed past the end of the table.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)

	var h rawHeader
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, wrapTruncated("read header", err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, h.Magic[:])
	}
	if h.VersionDate != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.VersionDate)
	}

	f := &File{
		VersionDate: h.VersionDate,
		MaxFileSize: h.MaxFileSize,
		Models:      make([]Model, 0, min(int(h.ModelCount), maxPrealloc)),
	}

	for i := range h.ModelCount {
		m, err := readModel(br)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}

		f.Models = append(f.Models, m)
	}

	return f, nil
}

// readModel decodes one model record.
func readModel(br *bufio.Reader) (Model, error) {
	var head rawModelHead
	if err := binary.Read(br, binary.LittleEndian, &head); err != nil {
		return Model{}, wrapTruncated("read record", err)
	}

	name, err := readName(br)
	if err != nil {
		return Model{}, fmt.Errorf("name: %w", err)
	}

	fileName, err := readName(br)
	if err != nil {
		return Model{}, fmt.Errorf("file name: %w", err)
	}

	var tail rawModelTail
	if err := binary.Read(br, binary.LittleEndian, &tail); err != nil {
		return Model{}, wrapTruncated("read record", err)
	}

	return Model{
		Index:             head.Index,
		Unknown1:          head.Unknown1,
		Unknown2:          head.Unknown2,
		Unknown3:          head.Unknown3,
		Lighting:          head.Lighting,
		EffectID:          head.EffectID,
		Name:              name,
		FileName:          fileName,
		AnimationDuration: tail.AnimationDuration,
		Loop:              tail.Loop,
		RandomOffset:      tail.RandomOffset,
		FileOffset:        tail.FileOffset,
		FileLength:        tail.FileLength,
	}, nil
}

// readName reads one NUL-terminated EUC-KR string.
// Byte sequences outside EUC-KR decode to U+FFFD.
func readName(br *bufio.Reader) (string, error) {
	var raw []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			return "", wrapTruncated("read name", err)
		}
		if c == 0 {
			break
		}
		if len(raw) == maxNameLen {
			return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
		}

		raw = append(raw, c)
	}

	decoded, err := korean.EUCKR.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	return string(decoded), nil
}

// encodeName renders s as NUL-terminated EUC-KR.
func encodeName(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q contains NUL", ErrInvalidName, s)
	}

	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidName, s, err)
	}

	return append(encoded, 0), nil
}

// TableSize returns the encoded size of the table of f.
func TableSize(f *File) (int64, error) {
	size := int64(headerSize)
	for _, m := range f.Models {
		name, err := encodeName(m.Name)
		if err != nil {
			return 0, err
		}
		fileName, err := encodeName(m.FileName)
		if err != nil {
			return 0, err
		}

		size += int64(binary.Size(rawModelHead{})) + int64(len(name)+len(fileName)) + int64(binary.Size(rawModelTail{}))
	}

	return size, nil
}

// Write emits the table of f followed by every model blob in record order.
// Blob offsets and lengths are written as placeholders and resolved once all
// blobs are copied. MaxFileSize is written as stored. ws must be positioned at
// the table start. The returned models carry the resolved offsets.
func Write(ws io.WriteSeeker, f *File) ([]Model, error) {
	if f.VersionDate != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.VersionDate)
	}

	h := rawHeader{
		VersionDate: f.VersionDate,
		ModelCount:  uint32(len(f.Models)),
		MaxFileSize: f.MaxFileSize,
	}
	copy(h.Magic[:], Magic)

	if err := binary.Write(ws, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	var pending backpatch.Offsets
	for _, m := range f.Models {
		if err := writeModel(ws, &pending, m); err != nil {
			return nil, fmt.Errorf("model %d: %w", m.Index, err)
		}
	}

	out := make([]Model, len(f.Models))
	values := make([]uint32, 0, pending.Fields())
	for i, m := range f.Models {
		offset, length, err := copyBlob(ws, m)
		if err != nil {
			return nil, err
		}

		m.FileOffset, m.FileLength = offset, length
		out[i] = m
		values = append(values, offset, length)
	}

	if err := pending.Resolve(ws, values); err != nil {
		return nil, err
	}

	return out, nil
}

// writeModel writes one record with placeholder blob location fields.
func writeModel(ws io.WriteSeeker, pending *backpatch.Offsets, m Model) error {
	name, err := encodeName(m.Name)
	if err != nil {
		return err
	}
	fileName, err := encodeName(m.FileName)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, rawModelHead{
		Index:    m.Index,
		Unknown1: m.Unknown1,
		Unknown2: m.Unknown2,
		Unknown3: m.Unknown3,
		Lighting: m.Lighting,
		EffectID: m.EffectID,
	})
	buf.Write(name)
	buf.Write(fileName)
	buf.Write(binary.LittleEndian.AppendUint32(nil, math.Float32bits(m.AnimationDuration)))
	buf.Write(binary.LittleEndian.AppendUint32(nil, m.Loop))
	buf.Write(binary.LittleEndian.AppendUint32(nil, m.RandomOffset))

	if _, err := ws.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return pending.Mark(ws, 0, 0)
}

// copyBlob appends the blob of m at the current write position.
func copyBlob(ws io.WriteSeeker, m Model) (uint32, uint32, error) {
	if m.Open == nil {
		return 0, 0, fmt.Errorf("%w: model %d %q", ErrNilOpener, m.Index, m.FileName)
	}

	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, fmt.Errorf("query blob position: %w", err)
	}

	rc, err := m.Open()
	if err != nil {
		return 0, 0, fmt.Errorf("open model %q: %w", m.FileName, err)
	}
	defer func() { _ = rc.Close() }()

	n, err := io.Copy(ws, rc)
	if err != nil {
		return 0, 0, fmt.Errorf("copy model %q: %w", m.FileName, err)
	}

	if pos > math.MaxUint32 || n > math.MaxUint32 || pos+n > math.MaxUint32 {
		return 0, 0, fmt.Errorf("%w: model %q at %d, %d bytes", ErrBlobTooLarge, m.FileName, pos, n)
	}

	return uint32(pos), uint32(n), nil
}

// ReadModelData reads the blob of m from r.
func ReadModelData(r io.ReaderAt, m Model) ([]byte, error) {
	buf := make([]byte, m.FileLength)
	if len(buf) == 0 {
		return buf, nil
	}

	if _, err := r.ReadAt(buf, int64(m.FileOffset)); err != nil {
		return nil, wrapTruncated(fmt.Sprintf("read model %q blob", m.FileName), err)
	}

	return buf, nil
}

// wrapTruncated maps short reads to ErrTruncated.
func wrapTruncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w: %w", op, ErrTruncated, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
