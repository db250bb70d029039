// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"errors"
	"fmt"
)

// Error classes. Every sentinel below wraps exactly one of them,
// so callers can decide policy with errors.Is(err, ErrFormat) or errors.Is(err, ErrDecode).
var (
	// ErrFormat marks archive-level structural failures; the archive cannot be used.
	ErrFormat = errors.New("invalid archive format")
	// ErrDecode marks failures confined to a single entry payload or record.
	ErrDecode = errors.New("entry decode failed")
)

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the archive magic does not match "NayaPack".
	ErrInvalidHeader = fmt.Errorf("%w: missing or bad NayaPack header", ErrFormat)
	// ErrTruncated means the header or the entry table ended early.
	ErrTruncated = fmt.Errorf("%w: truncated header or entry table", ErrFormat)
	// ErrUnsupportedVersion means the header carries an unknown format version.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported archive version", ErrFormat)
	// ErrInvalidPath means an entry path is not valid UTF-8.
	ErrInvalidPath = fmt.Errorf("%w: entry path is not valid UTF-8", ErrDecode)
	// ErrCorruptChunk means a compressed chunk failed to inflate or ended early.
	ErrCorruptChunk = fmt.Errorf("%w: corrupt compressed chunk", ErrDecode)
	// ErrLengthMismatch means inflated data does not match the recorded entry length.
	ErrLengthMismatch = fmt.Errorf("%w: decompressed length mismatch", ErrDecode)
	// ErrChunkCountMismatch means the stored chunk count disagrees with the decompressed length.
	ErrChunkCountMismatch = fmt.Errorf("%w: chunk count does not match length", ErrDecode)

	// ErrEmptyKey means the cipher key has no bytes.
	ErrEmptyKey = errors.New("cipher key is empty")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrWriterNotAtStart means the output stream is not positioned at offset 0.
	ErrWriterNotAtStart = errors.New("archive writer must start at offset 0")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrSizeOverflow means a size or offset does not fit the archive's uint32 fields.
	ErrSizeOverflow = errors.New("size exceeds uint32 archive limit")
	// ErrChunkTooLarge means a compressed chunk does not fit the u16 length table.
	ErrChunkTooLarge = errors.New("compressed chunk exceeds u16 length")
	// ErrEmptyInputs means no inputs provided for pack.
	ErrEmptyInputs = errors.New("no inputs provided for pack")
	// ErrInvalidRules means one or more include/exclude rules are invalid.
	ErrInvalidRules = errors.New("invalid path rules")
	// ErrInvalidEntryPath means an input entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two inputs resolve to the same path (case-insensitive).
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
)
