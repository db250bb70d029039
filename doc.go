// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

/*
Package agt reads and writes NayaPack (.agt) asset archives: an enciphered,
chunk-compressed container holding loose game assets.

Layout (little-endian):
  - 32-byte header: "NayaPack", u32 reserved, u16 major, u16 minor, u32 file count, 12 reserved bytes;
  - directory: per entry u32 data offset, u32 chunk count, u32 decompressed length, u32 path length, path;
  - data regions: chunk count u16 compressed lengths, then one zlib stream per 16 KiB raw slice.

Every byte from offset 32 onward is XORed with key[offset mod len(key)].
The header itself is plaintext, so ReadHeaderFile works without a key.

# Reading

Open an archive and list or read entries:

	r, err := agt.Open("data.agt", agt.ReferenceKey())
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.List() {
	    data, err := r.Extract(e.Path)
	    if err != nil {
	        return err
	    }
	    _ = data
	}

Extract looks the stored path up first and then falls back to a
case-insensitive match that treats "/" and "\" alike.

For metadata-only scans:

	entries, err := agt.ListEntriesWithOptions("data.agt", key, agt.ReaderOptions{
	    EntryPathPrefix: "NeoData",
	    SanitizeNames:   true,
	})

# Extracting

Write all or selected entries to a directory:

	err := r.ExtractAll(ctx, "out", agt.ExtractOptions{
	    Rules:      []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.xlt"}},
	    MaxWorkers: 4,
	    OnEntryError: func(e agt.Entry, err error) {
	        log.Printf("skip %s: %v", e.Path, err)
	    },
	})

# Building

Builder keeps entries sorted by path; adding a path twice keeps the last payload:

	var b agt.Builder
	b.Add(`NeoData\NC_quest.xlt`, quest)
	res, err := b.WriteFile("data.agt", key)

Pack and PackDir read caller streams or a directory tree instead:

	res, err := agt.PackDir(ctx, "data.agt", "unpacked", key, agt.PackOptions{})

# Editing

Editor rewrites an archive in place. Untouched entries keep their
compressed chunks and the original header fields:

	ed, err := agt.OpenEditor("data.agt", key, agt.EditOptions{BackupKeep: 1})
	if err != nil {
	    return err
	}
	_ = ed.Replace(agt.Input{Path: `NeoData\NC_quest.xlt`, Open: openQuest})
	_ = ed.DeleteDir("NeoData/old")
	_, err = ed.Commit(ctx)

# Errors

Failures are classified with errors.Is: ErrFormat marks archive-level
problems (bad magic, truncated directory, unknown version) and ErrDecode marks
problems confined to one entry (corrupt chunk, length mismatch, bad path),
which multi-entry callers may skip.
*/
package agt
