// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/slidetown/agt/backpatch"
	"github.com/tidwall/btree"
)

// source is one builder entry payload: raw bytes, or compressed chunks kept in another archive.
type source struct {
	archive *Reader
	data    []byte
	entry   Entry
}

// length returns the decompressed payload length.
func (s source) length() int64 {
	if s.archive != nil {
		return int64(s.entry.DecompressedLength)
	}

	return int64(len(s.data))
}

// Builder collects entries in path order and writes them as a new archive.
// Adding an existing path replaces the earlier payload. The zero value is ready to use.
type Builder struct {
	entries btree.Map[string, source]
	header  *Header
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add stores a copy of data under path. Paths are stored as given;
// use ArchivePath to convert a filesystem path to the "\" separated archive form.
func (b *Builder) Add(path string, data []byte) {
	b.entries.Set(path, source{data: append([]byte(nil), data...)})
}

// AddFromArchive stores entry e of archive r under path without recompressing it.
// Its compressed chunks are read from r during Write, so r must stay open until then.
func (b *Builder) AddFromArchive(path string, r *Reader, e Entry) error {
	if r == nil {
		return ErrNilReader
	}

	b.entries.Set(path, source{archive: r, entry: e})
	return nil
}

// Remove deletes path and reports whether it was present.
func (b *Builder) Remove(path string) bool {
	_, ok := b.entries.Delete(path)
	return ok
}

// Len returns the number of distinct paths.
func (b *Builder) Len() int {
	return b.entries.Len()
}

// Paths returns stored paths in write order.
func (b *Builder) Paths() []string {
	out := make([]string, 0, b.entries.Len())
	b.entries.Scan(func(path string, _ source) bool {
		out = append(out, path)
		return true
	})

	return out
}

// SetHeader sets the version and reserved fields for the next write.
// FileCount is ignored and always recomputed.
func (b *Builder) SetHeader(h Header) {
	b.header = &h
}

// Write writes the archive to ws enciphered with key. ws must be positioned at offset 0.
func (b *Builder) Write(ws io.WriteSeeker, key []byte) (*BuildResult, error) {
	return b.write(context.Background(), ws, key, PackOptions{Header: b.header})
}

// WriteFile creates or truncates the file at path and writes the archive into it.
func (b *Builder) WriteFile(path string, key []byte) (*BuildResult, error) {
	return writeArchiveFile(path, func(f *os.File) (*BuildResult, error) {
		return b.Write(f, key)
	})
}

// builtEntry is one scanned builder item.
type builtEntry struct {
	src   source
	entry Entry
}

// write runs the three archive passes: header and placeholder directory,
// entry data regions, then data offset backpatching.
func (b *Builder) write(ctx context.Context, ws io.WriteSeeker, key []byte, opts PackOptions) (*BuildResult, error) {
	startedAt := time.Now()

	if ws == nil {
		return nil, ErrNilWriter
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("query writer position: %w", err)
	}
	if start != 0 {
		return nil, fmt.Errorf("%w: positioned at %d", ErrWriterNotAtStart, start)
	}

	ks, err := NewKeystreamWriter(ws, key)
	if err != nil {
		return nil, err
	}

	items, err := b.scan()
	if err != nil {
		return nil, err
	}

	header := DefaultHeader(0)
	if opts.Header != nil {
		header = *opts.Header
	} else if b.header != nil {
		header = *b.header
	}
	header.FileCount = uint32(len(items)) //nolint:gosec // bounded in scan

	if err := WriteHeader(ks, header); err != nil {
		return nil, err
	}

	// Pass 1: directory records with provisional data offsets.
	var pending backpatch.Offsets
	for _, item := range items {
		if err := pending.Mark(ks, 0); err != nil {
			return nil, fmt.Errorf("entry %s: %w", item.entry.Path, err)
		}

		record := item.entry.appendTo(make([]byte, 0, item.entry.encodedSize()))
		if _, err := ks.Write(record[4:]); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", item.entry.Path, err)
		}
	}

	indexSize := ks.Position()

	// Pass 2: chunk length tables and chunk payloads.
	var (
		compressor chunkCompressor
		rawBytes   int64
		offsets    = make([]uint32, 0, len(items))
		entries    = make([]Entry, 0, len(items))
	)
	for i := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := &items[i]
		dataOffset := ks.Position()
		if dataOffset >= maxArchiveData {
			return nil, fmt.Errorf("%w: entry %s starts at %d", ErrSizeOverflow, item.entry.Path, dataOffset)
		}

		item.entry.DataOffset = uint32(dataOffset)
		copied, err := writeEntryData(ks, &compressor, item)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", item.entry.Path, err)
		}

		end := ks.Position()
		if end > maxArchiveData {
			return nil, fmt.Errorf("%w: entry %s ends at %d", ErrSizeOverflow, item.entry.Path, end)
		}

		offsets = append(offsets, item.entry.DataOffset)
		entries = append(entries, item.entry)
		rawBytes += int64(item.entry.DecompressedLength)

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(PackEntryProgress{
				Path:               item.entry.Path,
				DataOffset:         item.entry.DataOffset,
				ChunkCount:         item.entry.ChunkCount,
				DecompressedLength: item.entry.DecompressedLength,
				StoredSize:         uint32(end - dataOffset), //nolint:gosec // bounded above
				Copied:             copied,
			})
		}
	}

	archiveEnd := ks.Position()

	// Pass 3: real data offsets into the directory.
	if err := pending.Resolve(ks, offsets); err != nil {
		return nil, fmt.Errorf("patch data offsets: %w", err)
	}

	return &BuildResult{
		Header:    header,
		Entries:   entries,
		IndexSize: indexSize,
		DataSize:  archiveEnd - indexSize,
		RawBytes:  rawBytes,
		Duration:  time.Since(startedAt),
	}, nil
}

// scan validates builder entries and returns them in path order with provisional records.
func (b *Builder) scan() ([]builtEntry, error) {
	if uint64(b.entries.Len()) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d entries", ErrSizeOverflow, b.entries.Len())
	}

	items := make([]builtEntry, 0, b.entries.Len())
	var err error
	b.entries.Scan(func(path string, src source) bool {
		if err = validateEntryPath(path); err != nil {
			return false
		}

		length := src.length()
		if length >= maxArchiveData {
			err = fmt.Errorf("%w: entry %s is %d bytes", ErrSizeOverflow, path, length)
			return false
		}

		items = append(items, builtEntry{
			src: src,
			entry: Entry{
				ChunkCount:         ChunkCount(length),
				DecompressedLength: uint32(length),
				Path:               path,
			},
		})
		return true
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// writeEntryData writes one entry data region at the current position:
// the reserved length table, every chunk, then the filled-in table.
// It reports whether chunks were copied from a source archive.
func writeEntryData(ks *KeystreamWriter, c *chunkCompressor, item *builtEntry) (bool, error) {
	count := int(item.entry.ChunkCount)
	if count == 0 {
		return item.src.archive != nil, nil
	}

	if item.src.archive != nil {
		return true, copyEntryChunks(ks, item)
	}

	tablePos := ks.Position()
	table := make([]byte, count*2)
	if _, err := ks.Write(table); err != nil {
		return false, fmt.Errorf("reserve chunk length table: %w", err)
	}

	data := item.src.data
	for i := range count {
		start := i * ChunkSize
		chunk, err := c.deflate(data[start:min(start+ChunkSize, len(data))])
		if err != nil {
			return false, err
		}
		if len(chunk) > math.MaxUint16 {
			return false, fmt.Errorf("%w: chunk %d is %d bytes", ErrChunkTooLarge, i, len(chunk))
		}

		binary.LittleEndian.PutUint16(table[i*2:], uint16(len(chunk)))
		if _, err := ks.Write(chunk); err != nil {
			return false, fmt.Errorf("write chunk %d: %w", i, err)
		}
	}

	end := ks.Position()
	if _, err := ks.Seek(tablePos, io.SeekStart); err != nil {
		return false, fmt.Errorf("seek chunk length table: %w", err)
	}
	if _, err := ks.Write(table); err != nil {
		return false, fmt.Errorf("write chunk length table: %w", err)
	}
	if _, err := ks.Seek(end, io.SeekStart); err != nil {
		return false, fmt.Errorf("seek past entry data: %w", err)
	}

	return false, nil
}

// copyEntryChunks re-enciphers the compressed chunks of a source archive entry at the current position.
func copyEntryChunks(ks *KeystreamWriter, item *builtEntry) error {
	lengths, payload, err := item.src.archive.readEntryRaw(item.src.entry)
	if err != nil {
		return err
	}

	table := make([]byte, 0, len(lengths)*2)
	for _, n := range lengths {
		table = binary.LittleEndian.AppendUint16(table, n)
	}

	if _, err := ks.Write(table); err != nil {
		return fmt.Errorf("write chunk length table: %w", err)
	}
	if _, err := ks.Write(payload); err != nil {
		return fmt.Errorf("write copied chunks: %w", err)
	}

	return nil
}

// Pack writes an archive to out from the given inputs.
// Input paths are normalized to "\" separators and sorted for deterministic output.
func Pack(ctx context.Context, out io.WriteSeeker, key []byte, inputs []Input, opts PackOptions) (*BuildResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()

	sorted, err := preparePackInputs(inputs)
	if err != nil {
		return nil, err
	}

	var b Builder
	for _, in := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := readInput(in, opts.MaxEntrySize)
		if err != nil {
			return nil, err
		}

		b.entries.Set(in.Path, source{data: data})
	}

	return b.write(ctx, out, key, opts)
}

// PackFile writes an archive to outPath from the given inputs.
func PackFile(ctx context.Context, outPath string, key []byte, inputs []Input, opts PackOptions) (*BuildResult, error) {
	return writeArchiveFile(outPath, func(f *os.File) (*BuildResult, error) {
		return Pack(ctx, f, key, inputs, opts)
	})
}

// writeArchiveFile creates outPath, runs write and syncs the result.
func writeArchiveFile(outPath string, write func(f *os.File) (*BuildResult, error)) (*BuildResult, error) {
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	res, err := write(f)
	if err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}
	f = nil

	return res, nil
}

// preparePackInputs normalizes, sorts and validates pack inputs.
func preparePackInputs(inputs []Input) ([]Input, error) {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)

	for i := range sorted {
		normalizedPath, err := normalizeArchiveEntryPath(sorted[i].Path)
		if err != nil {
			return nil, err
		}

		sorted[i].Path = normalizedPath
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	if err := validateUniqueEntryPaths(sorted); err != nil {
		return nil, err
	}

	return sorted, nil
}

// readInput opens one input and reads it into memory, failing past limit bytes.
func readInput(in Input, limit int64) ([]byte, error) {
	if in.Open == nil {
		return nil, fmt.Errorf("input %s: Open is nil", in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", in.Path, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := readPayloadBounded(rc, limit)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", in.Path, err)
	}

	return data, nil
}

// readPayloadBounded reads whole payload into memory with strict max-size enforcement.
func readPayloadBounded(src io.Reader, limit int64) ([]byte, error) {
	if src == nil {
		return nil, ErrNilReader
	}
	if limit < 0 {
		return nil, ErrSizeOverflow
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrSizeOverflow, limit)
	}

	return data, nil
}

// validateUniqueEntryPaths ensures there are no duplicate logical entry paths.
func validateUniqueEntryPaths(inputs []Input) error {
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		key := strings.ToLower(in.Path)
		if existing, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q conflicts with %q", ErrDuplicateEntryPath, in.Path, existing)
		}

		seen[key] = in.Path
	}

	return nil
}
