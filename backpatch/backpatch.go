// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

// Package backpatch writes placeholder fields during a forward serialization pass
// and overwrites them once their real values are known.
//
// A writer calls Offsets.Mark wherever a little-endian u32 field (typically an
// absolute file offset or a blob length) cannot be computed yet, keeps writing,
// and finally calls Offsets.Resolve with the real values in the order the
// fields were marked:
//
//	var pending backpatch.Offsets
//	for _, rec := range records {
//		_ = pending.Mark(ws, 0)
//	}
//	// ... write payloads, collecting offsets ...
//	_ = pending.Resolve(ws, offsets)
//
// The target stream must support absolute seeking.
package backpatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrOffsetCountMismatch means the resolved values do not pair one-to-one with marked fields.
var ErrOffsetCountMismatch = errors.New("backpatch value count does not match marked fields")

// ErrUnknownMark means a mark index is out of range.
var ErrUnknownMark = errors.New("backpatch mark index out of range")

// mark is one recorded placeholder run of consecutive u32 fields.
type mark struct {
	pos    int64
	fields int
}

// Offsets is an ordered list of pending placeholder positions.
// It belongs to one write call and is never persisted; the zero value is ready to use.
type Offsets struct {
	marks  []mark
	fields int
}

// Mark records the current absolute position of ws and writes placeholders there
// as consecutive little-endian u32 fields. With no placeholders one zero field is written.
func (o *Offsets) Mark(ws io.WriteSeeker, placeholders ...uint32) error {
	if len(placeholders) == 0 {
		placeholders = []uint32{0}
	}

	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("query placeholder position: %w", err)
	}

	if _, err := ws.Write(encode(placeholders)); err != nil {
		return fmt.Errorf("write placeholder at %d: %w", pos, err)
	}

	o.marks = append(o.marks, mark{pos: pos, fields: len(placeholders)})
	o.fields += len(placeholders)
	return nil
}

// Len returns the number of recorded marks.
func (o *Offsets) Len() int {
	return len(o.marks)
}

// Fields returns the total number of u32 fields across all marks.
func (o *Offsets) Fields() int {
	return o.fields
}

// Positions returns the recorded absolute positions in mark order.
func (o *Offsets) Positions() []int64 {
	out := make([]int64, len(o.marks))
	for i, m := range o.marks {
		out[i] = m.pos
	}

	return out
}

// Resolve overwrites every marked field with values, in mark order, and restores
// the write position of ws. len(values) must equal Fields(); on mismatch nothing is written.
func (o *Offsets) Resolve(ws io.WriteSeeker, values []uint32) error {
	if len(values) != o.fields {
		return fmt.Errorf("%w: %d values for %d fields", ErrOffsetCountMismatch, len(values), o.fields)
	}

	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("query write position: %w", err)
	}

	next := 0
	for _, m := range o.marks {
		if err := writeAt(ws, m.pos, values[next:next+m.fields]); err != nil {
			return err
		}

		next += m.fields
	}

	if _, err := ws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("restore write position %d: %w", end, err)
	}

	return nil
}

// PatchAt overwrites the fields of mark i and restores the write position of ws.
func (o *Offsets) PatchAt(ws io.WriteSeeker, i int, values ...uint32) error {
	if i < 0 || i >= len(o.marks) {
		return fmt.Errorf("%w: %d of %d", ErrUnknownMark, i, len(o.marks))
	}
	if len(values) != o.marks[i].fields {
		return fmt.Errorf("%w: mark %d has %d fields, got %d values",
			ErrOffsetCountMismatch, i, o.marks[i].fields, len(values))
	}

	return Patch(ws, o.marks[i].pos, values...)
}

// Reset forgets all marks.
func (o *Offsets) Reset() {
	o.marks = o.marks[:0]
	o.fields = 0
}

// Patch writes values as consecutive little-endian u32 fields at absolute position pos
// and restores the write position of ws.
func Patch(ws io.WriteSeeker, pos int64, values ...uint32) error {
	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("query write position: %w", err)
	}

	if err := writeAt(ws, pos, values); err != nil {
		return err
	}

	if _, err := ws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("restore write position %d: %w", end, err)
	}

	return nil
}

// writeAt seeks to pos and writes values there, leaving the cursor after them.
func writeAt(ws io.WriteSeeker, pos int64, values []uint32) error {
	if _, err := ws.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to placeholder %d: %w", pos, err)
	}

	if _, err := ws.Write(encode(values)); err != nil {
		return fmt.Errorf("patch placeholder at %d: %w", pos, err)
	}

	return nil
}

// encode renders values as little-endian u32 bytes.
func encode(values []uint32) []byte {
	buf := make([]byte, 0, len(values)*4)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}

	return buf
}
