// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"io"
	"time"

	"github.com/woozymasta/pathrules"
)

// Binary layout and format limits.
const (
	// Magic is the 8-byte archive signature.
	Magic = "NayaPack"
	// HeaderSize is the fixed header length; it is also where the keystream starts.
	HeaderSize = 32
	// KeystreamOffset is the first absolute offset XORed with the key.
	KeystreamOffset = HeaderSize
	// ChunkSize is the raw size of every chunk except the last one of an entry.
	ChunkSize = 16384

	entryFixedSize = 16      // data offset, chunk count, decompressed length, path length
	maxPathLen     = 4096    // sanity bound for path_byte_length
	maxArchiveData = 1 << 32 // max addressable offset in u32 fields
	maxPrealloc    = 1 << 24 // cap for buffers sized from untrusted header fields
)

// Known format version.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 1
)

// Header is the fixed 32-byte archive header.
type Header struct {
	// Reserved is the u32 following the magic; zero in every known archive.
	Reserved uint32 `json:"reserved" yaml:"reserved"`
	// VersionMajor and VersionMinor form the (u16,u16) version pair.
	VersionMajor uint16 `json:"version_major" yaml:"version_major"`
	VersionMinor uint16 `json:"version_minor" yaml:"version_minor"`
	// FileCount is the number of directory entries.
	FileCount uint32 `json:"file_count" yaml:"file_count"`
	// Opaque keeps the three trailing reserved u32 fields byte-for-byte.
	Opaque [12]byte `json:"opaque" yaml:"opaque,flow"`
}

// Entry is one directory record.
type Entry struct {
	// DataOffset is the absolute offset of the entry's chunk length table.
	DataOffset uint32 `json:"data_offset" yaml:"data_offset"`
	// ChunkCount is the number of compressed chunks.
	ChunkCount uint32 `json:"chunk_count" yaml:"chunk_count"`
	// DecompressedLength is the entry size after inflating all chunks.
	DecompressedLength uint32 `json:"decompressed_length" yaml:"decompressed_length"`
	// Path is the entry path as stored, usually with "\" separators.
	Path string `json:"path" yaml:"path"`
}

// EntryInfo is a (path, size) listing row.
type EntryInfo struct {
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// Input describes one source stream to be packed into an archive entry.
type Input struct {
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside the archive.
	Path string `json:"path" yaml:"path"`
}

// PackEntryProgress contains one completed entry write event from pack flow.
type PackEntryProgress struct {
	// Path is entry path written to archive.
	Path string `json:"path" yaml:"path"`
	// DataOffset is the absolute offset of the entry's chunk length table.
	DataOffset uint32 `json:"data_offset" yaml:"data_offset"`
	// ChunkCount is the number of chunks written.
	ChunkCount uint32 `json:"chunk_count" yaml:"chunk_count"`
	// DecompressedLength is the raw entry size.
	DecompressedLength uint32 `json:"decompressed_length" yaml:"decompressed_length"`
	// StoredSize is length table plus compressed chunk bytes.
	StoredSize uint32 `json:"stored_size" yaml:"stored_size"`
	// Copied reports whether compressed chunks were carried over from a source archive.
	Copied bool `json:"copied,omitempty" yaml:"copied,omitempty"`
}

// BuildResult contains archive write statistics.
type BuildResult struct {
	// Header is the header written to the archive.
	Header Header `json:"header" yaml:"header"`
	// Entries are the final directory records in write order.
	Entries []Entry `json:"entries" yaml:"entries"`
	// IndexSize is header plus directory bytes.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// DataSize is total length table and chunk bytes.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// RawBytes is the sum of decompressed entry lengths.
	RawBytes int64 `json:"raw_bytes" yaml:"raw_bytes"`
	// Duration is end-to-end write duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// PackOptions configures Pack, PackDir and Editor commits.
type PackOptions struct {
	// OnEntryDone is called after one entry payload is fully written.
	OnEntryDone func(entry PackEntryProgress) `json:"-" yaml:"-"`
	// Header supplies version and reserved fields; FileCount is always recomputed.
	// A zero value writes version 1.1 with zeroed reserved fields.
	Header *Header `json:"header,omitempty" yaml:"header,omitempty"`
	// Rules select which directory files PackDir collects; empty means all files.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// RulesMatcherOptions control rule matching.
	RulesMatcherOptions pathrules.MatcherOptions `json:"rules_matcher_options,omitzero" yaml:"rules_matcher_options,omitzero"`
	// MaxEntrySize bounds one input stream read into memory. Default is 4 GiB - 1.
	MaxEntrySize int64 `json:"max_entry_size,omitempty" yaml:"max_entry_size,omitempty"`
}

// ReaderOptions configures reader parse behavior.
type ReaderOptions struct {
	// AllowAnyVersion skips the version check; magic is still required.
	AllowAnyVersion bool `json:"allow_any_version,omitempty" yaml:"allow_any_version,omitempty"`
	// CacheEntries keeps up to N decompressed entries in an LRU cache (zero disables).
	CacheEntries int `json:"cache_entries,omitempty" yaml:"cache_entries,omitempty"`
	// EntryPathPrefix limits visible entries to one directory prefix.
	EntryPathPrefix string `json:"entry_path_prefix,omitempty" yaml:"entry_path_prefix,omitempty"`
	// MinEntrySize drops listed entries smaller than N decompressed bytes (ListEntries only).
	MinEntrySize uint32 `json:"min_entry_size,omitempty" yaml:"min_entry_size,omitempty"`
	// FilterASCIIOnly keeps only listed entries with ASCII paths (ListEntries only).
	FilterASCIIOnly bool `json:"filter_ascii_only,omitempty" yaml:"filter_ascii_only,omitempty"`
	// SanitizeNames rewrites listed paths to the names ExtractAll would create (ListEntries only).
	SanitizeNames bool `json:"sanitize_names,omitempty" yaml:"sanitize_names,omitempty"`
}

// ExtractOptions configures ExtractAll behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry Entry, written int64, outputPath string) `json:"-" yaml:"-"`
	// OnEntryError is called for entries skipped because of decode errors.
	// When nil, the first decode error aborts extraction.
	OnEntryError func(entry Entry, err error) `json:"-" yaml:"-"`
	// Entries limits extraction to selected records; nil means all parsed entries.
	Entries []Entry `json:"-" yaml:"-"`
	// Rules select entries by path; empty means all entries.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// RulesMatcherOptions control rule matching.
	RulesMatcherOptions pathrules.MatcherOptions `json:"rules_matcher_options,omitzero" yaml:"rules_matcher_options,omitzero"`
	// MaxWorkers is number of extraction workers. Default is 1.
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables default path sanitization during extract.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// EditOptions configures file-based archive edit flow.
type EditOptions struct {
	// PackOptions are applied when the edited archive is rewritten.
	PackOptions PackOptions `json:"pack_options,omitzero" yaml:"pack_options,omitzero"`
	// BackupKeep controls how many backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// DefaultHeader returns the header written for new archives with fileCount entries.
func DefaultHeader(fileCount uint32) Header {
	return Header{
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		FileCount:    fileCount,
	}
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	if opts.MaxEntrySize <= 0 || opts.MaxEntrySize >= maxArchiveData {
		opts.MaxEntrySize = maxArchiveData - 1
	}

	if opts.RulesMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.RulesMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.RulesMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.RulesMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// applyDefaults fills zero-valued reader options with defaults.
func (opts *ReaderOptions) applyDefaults() {
	if opts.CacheEntries < 0 {
		opts.CacheEntries = 0
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}

	if opts.RulesMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.RulesMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	opts.PackOptions.applyDefaults()

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}
