// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"fmt"
	"io"
	"os"
)

// ReadHeaderFile reads only the plaintext archive header of the file at path.
// No key is needed because the keystream starts after the header.
func ReadHeaderFile(path string) (Header, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = f.Close() }()

	return ReadHeaderFromReaderAt(f, size)
}

// ReadHeaderFromReaderAt reads only the archive header from a random-access source.
func ReadHeaderFromReaderAt(ra io.ReaderAt, size int64) (Header, error) {
	if ra == nil {
		return Header{}, ErrNilReader
	}
	if size < HeaderSize {
		return Header{}, fmt.Errorf("%w: archive is %d bytes", ErrTruncated, size)
	}

	return ReadHeader(io.NewSectionReader(ra, 0, HeaderSize))
}

// ListEntries opens an archive and returns (path, size) rows without payload reads.
func ListEntries(path string, key []byte) ([]EntryInfo, error) {
	return ListEntriesWithOptions(path, key, ReaderOptions{})
}

// ListEntriesWithOptions opens an archive and returns entry rows using reader options.
func ListEntriesWithOptions(path string, key []byte, opts ReaderOptions) ([]EntryInfo, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ListEntriesFromReaderAtWithOptions(f, size, key, opts)
}

// ListEntriesFromReaderAt parses entry rows from a random-access source.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64, key []byte) ([]EntryInfo, error) {
	return ListEntriesFromReaderAtWithOptions(ra, size, key, ReaderOptions{})
}

// ListEntriesFromReaderAtWithOptions parses entry rows from a random-access source using reader options.
func ListEntriesFromReaderAtWithOptions(ra io.ReaderAt, size int64, key []byte, opts ReaderOptions) ([]EntryInfo, error) {
	opts.CacheEntries = 0

	r, err := NewReaderFromReaderAtWithOptions(ra, size, key, opts)
	if err != nil {
		return nil, err
	}

	entries := filterEntriesBySize(r.entries, opts.MinEntrySize)
	if opts.FilterASCIIOnly {
		entries = filterEntriesByASCIIOnly(entries)
	}

	out := make([]EntryInfo, len(entries))
	for i, e := range entries {
		out[i] = EntryInfo{Path: e.Path, Size: int64(e.DecompressedLength)}
	}

	if opts.SanitizeNames {
		return sanitizeEntryInfoPaths(out)
	}

	return out, nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}
