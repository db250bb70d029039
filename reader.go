// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/mmap"
)

const (
	// readerTableBufferSize is a sequential read buffer for entry table parsing.
	readerTableBufferSize = 64 * 1024
	// readerDataBufferSize is a read buffer for one entry data region.
	readerDataBufferSize = 32 * 1024
)

var (
	// tableReaderPool reuses buffered readers for sequential table parsing.
	tableReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(nil, readerTableBufferSize)
		},
	}
)

// Reader provides read-only access to a parsed archive.
//
// Every read operation seeks explicitly through its own keystream decorator,
// so calls may come in any order and from several goroutines.
type Reader struct {
	// ra is the underlying random-access source.
	ra io.ReaderAt
	// closer is set when Reader owns the mapping opened via Open.
	closer io.Closer
	// cache keeps recently decompressed payloads when enabled.
	cache *lru.Cache[Entry, []byte]
	// exact maps stored path to entry index.
	exact map[string]int
	// folded maps normalized lower-case path to entry index.
	folded map[string]int
	// key is the keystream used for every read.
	key []byte
	// entries stores visible directory records in file order.
	entries []Entry
	// header is the parsed archive header.
	header Header
	// size is total source size in bytes.
	size int64
	// tableEnd is the absolute offset just past the directory.
	tableEnd int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open maps the archive at path read-only and parses its header and directory.
func Open(path string, key []byte) (*Reader, error) {
	return OpenWithOptions(path, key, ReaderOptions{})
}

// OpenWithOptions opens an archive by path using explicit reader options.
func OpenWithOptions(path string, key []byte, opts ReaderOptions) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	r, err := NewReaderFromReaderAtWithOptions(m, int64(m.Len()), key, opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	r.closer = m
	return r, nil
}

// NewReaderFromReaderAt parses an archive from an existing ReaderAt of known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64, key []byte) (*Reader, error) {
	return NewReaderFromReaderAtWithOptions(ra, size, key, ReaderOptions{})
}

// NewReaderFromReaderAtWithOptions parses an archive from an existing ReaderAt using explicit reader options.
func NewReaderFromReaderAtWithOptions(ra io.ReaderAt, size int64, key []byte, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	opts.applyDefaults()

	r := &Reader{
		ra:   ra,
		size: size,
		key:  append([]byte(nil), key...),
	}

	if opts.CacheEntries > 0 {
		cache, err := lru.New[Entry, []byte](opts.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("create entry cache: %w", err)
		}

		r.cache = cache
	}

	if err := r.parse(opts); err != nil {
		return nil, err
	}

	return r, nil
}

// parse reads header and directory and builds lookup indexes.
func (r *Reader) parse(opts ReaderOptions) error {
	header, err := r.ReadHeader()
	if err != nil {
		return err
	}

	if !opts.AllowAnyVersion && !header.Supported() {
		return fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, header.VersionMajor, header.VersionMinor)
	}

	entries, tableEnd, err := r.readEntries(header.FileCount)
	if err != nil {
		return err
	}

	r.header = header
	r.tableEnd = tableEnd
	r.entries = filterEntriesByPrefix(entries, opts.EntryPathPrefix)
	r.buildIndex()

	return nil
}

// buildIndex maps stored and normalized paths to entry indexes; the first record wins.
func (r *Reader) buildIndex() {
	r.exact = make(map[string]int, len(r.entries))
	r.folded = make(map[string]int, len(r.entries))

	for i := range r.entries {
		if _, ok := r.exact[r.entries[i].Path]; !ok {
			r.exact[r.entries[i].Path] = i
		}

		key := lookupKey(r.entries[i].Path)
		if _, ok := r.folded[key]; !ok {
			r.folded[key] = i
		}
	}
}

// lookupKey folds a path for separator- and case-insensitive lookup.
func lookupKey(p string) string {
	return strings.ToLower(NormalizePath(p))
}

// stream returns a fresh deciphering reader over the whole source.
func (r *Reader) stream() (*KeystreamReader, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	return NewKeystreamReader(io.NewSectionReader(r.ra, 0, r.size), r.key)
}

// ReadHeader seeks to offset 0 and decodes the archive header.
func (r *Reader) ReadHeader() (Header, error) {
	ks, err := r.stream()
	if err != nil {
		return Header{}, err
	}

	if _, err := ks.Seek(0, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("seek header: %w", err)
	}

	return ReadHeader(ks)
}

// ReadEntries seeks to the end of the header and decodes count directory records.
// The result ignores ReaderOptions.EntryPathPrefix.
func (r *Reader) ReadEntries(count uint32) ([]Entry, error) {
	entries, _, err := r.readEntries(count)
	return entries, err
}

// readEntries decodes count records and returns the offset just past the table.
func (r *Reader) readEntries(count uint32) ([]Entry, int64, error) {
	ks, err := r.stream()
	if err != nil {
		return nil, 0, err
	}

	if _, err := ks.Seek(HeaderSize, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek entry table: %w", err)
	}

	br := tableReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(ks)
	defer func() {
		br.Reset(nil)
		tableReaderPool.Put(br)
	}()

	entries, err := ReadEntries(br, count)
	if err != nil {
		return nil, 0, err
	}

	end := int64(HeaderSize)
	for i := range entries {
		end += int64(entries[i].encodedSize())
	}

	return entries, end, nil
}

// ReadEntryData seeks to the entry data region and returns the inflated payload.
func (r *Reader) ReadEntryData(e Entry) ([]byte, error) {
	if r.cache != nil {
		if data, ok := r.cache.Get(e); ok {
			return append([]byte(nil), data...), nil
		}
	}

	if want := ChunkCount(int64(e.DecompressedLength)); e.ChunkCount != want {
		return nil, fmt.Errorf("entry %s: %w: stored %d, want %d", e.Path, ErrChunkCountMismatch, e.ChunkCount, want)
	}

	ks, err := r.seekData(e)
	if err != nil {
		return nil, err
	}

	data, err := readChunkData(bufio.NewReaderSize(ks, readerDataBufferSize), e.ChunkCount, e.DecompressedLength)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.Path, err)
	}

	if r.cache != nil {
		r.cache.Add(e, append([]byte(nil), data...))
	}

	return data, nil
}

// readEntryRaw returns the compressed chunk table and chunk bytes of e without inflating them.
func (r *Reader) readEntryRaw(e Entry) ([]uint16, []byte, error) {
	if want := ChunkCount(int64(e.DecompressedLength)); e.ChunkCount != want {
		return nil, nil, fmt.Errorf("entry %s: %w: stored %d, want %d", e.Path, ErrChunkCountMismatch, e.ChunkCount, want)
	}

	ks, err := r.seekData(e)
	if err != nil {
		return nil, nil, err
	}

	lengths, payload, err := readRawChunks(bufio.NewReaderSize(ks, readerDataBufferSize), e.ChunkCount)
	if err != nil {
		return nil, nil, fmt.Errorf("entry %s: %w", e.Path, err)
	}

	return lengths, payload, nil
}

// seekData returns a deciphering reader positioned at the entry data offset.
func (r *Reader) seekData(e Entry) (*KeystreamReader, error) {
	if e.ChunkCount > 0 && int64(e.DataOffset) >= r.size {
		return nil, fmt.Errorf("entry %s: %w: data offset %d beyond archive size %d",
			e.Path, ErrCorruptChunk, e.DataOffset, r.size)
	}

	ks, err := r.stream()
	if err != nil {
		return nil, err
	}

	if _, err := ks.Seek(int64(e.DataOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek entry %s data: %w", e.Path, err)
	}

	return ks, nil
}

// Header returns the parsed archive header.
func (r *Reader) Header() Header {
	if r == nil {
		return Header{}
	}

	return r.header
}

// Entries returns a copy of parsed entries in file order.
func (r *Reader) Entries() []Entry {
	if r == nil {
		return nil
	}

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// List returns (path, size) rows for every entry in file order.
func (r *Reader) List() []EntryInfo {
	if r == nil {
		return nil
	}

	out := make([]EntryInfo, len(r.entries))
	for i, e := range r.entries {
		out[i] = EntryInfo{Path: e.Path, Size: int64(e.DecompressedLength)}
	}

	return out
}

// Lookup resolves an entry by path. The stored path is tried first, then a
// case-insensitive match that treats "/" and "\" alike.
func (r *Reader) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}

	if i, ok := r.exact[name]; ok {
		return r.entries[i], true
	}

	if i, ok := r.folded[lookupKey(name)]; ok {
		return r.entries[i], true
	}

	return Entry{}, false
}

// Extract returns the full decompressed payload of the named entry.
func (r *Reader) Extract(name string) ([]byte, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.ReadEntryData(e)
}

// Size returns the archive size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// DataStart returns the absolute offset just past the directory.
func (r *Reader) DataStart() int64 {
	return r.tableEnd
}

// Close releases the file mapping if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.cache != nil {
		r.cache.Purge()
	}
	if r.closer != nil {
		return r.closer.Close()
	}

	return nil
}
