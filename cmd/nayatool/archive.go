// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/slidetown/agt"
	"github.com/woozymasta/pathrules"
)

func (a *app) agtInfo(args []string) error {
	fs := a.flagSet("agt info")
	key := keyFlag(fs)
	dump := fs.Bool("dump", false, "dump decoded header and records")
	if err := a.parseArgs(fs, args, 1, "archive.agt"); err != nil {
		return err
	}

	k, err := key()
	if err != nil {
		return err
	}

	r, err := agt.OpenWithOptions(fs.Arg(0), k, agt.ReaderOptions{AllowAnyVersion: true})
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	if *dump {
		a.dump(h, r.Entries())
		return nil
	}

	fmt.Fprintf(a.out, "Version: %d.%d\n", h.VersionMajor, h.VersionMinor)
	if h.FileCount == 0 {
		fmt.Fprintln(a.out, "No files")
		return nil
	}

	fmt.Fprintf(a.out, "%d files:\n", h.FileCount)
	for _, e := range r.Entries() {
		fmt.Fprintf(a.out, "- %s (%d chunk(s), %d bytes decompressed)\n", e.Path, e.ChunkCount, e.DecompressedLength)
	}

	return nil
}

func (a *app) agtList(args []string) error {
	fs := a.flagSet("agt list")
	key := keyFlag(fs)
	prefix := fs.String("prefix", "", "only entries under this archive path prefix")
	minSize := fs.Uint("min-size", 0, "only entries with at least this many decompressed bytes")
	asciiOnly := fs.Bool("ascii", false, "only entries with printable ASCII paths")
	sanitize := fs.Bool("sanitize", false, "print filesystem-safe names")
	if err := a.parseArgs(fs, args, 1, "archive.agt"); err != nil {
		return err
	}

	k, err := key()
	if err != nil {
		return err
	}

	entries, err := agt.ListEntriesWithOptions(fs.Arg(0), k, agt.ReaderOptions{
		AllowAnyVersion: true,
		EntryPathPrefix: *prefix,
		MinEntrySize:    uint32(*minSize),
		FilterASCIIOnly: *asciiOnly,
		SanitizeNames:   *sanitize,
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintf(a.out, "%10d  %s\n", e.Size, e.Path)
	}

	return nil
}

// extractFlags are the flags shared by extract and unpack.
type extractFlags struct {
	key     func() ([]byte, error)
	out     *string
	include *string
	workers *int
	raw     *bool
}

func registerExtractFlags(a *app, name string) (*extractFlags, *flag.FlagSet) {
	fs := a.flagSet(name)
	f := &extractFlags{
		key:     keyFlag(fs),
		out:     fs.String("o", ".", "output directory"),
		include: fs.String("include", "", "comma-separated glob patterns of entries to extract"),
		workers: fs.Int("workers", 1, "parallel extract workers"),
		raw:     fs.Bool("raw", false, "keep raw entry names instead of sanitizing them"),
	}

	return f, fs
}

func (a *app) agtExtract(args []string) error {
	f, fs := registerExtractFlags(a, "agt extract")
	if err := a.parseArgs(fs, args, 1, "archive.agt"); err != nil {
		return err
	}

	_, _, err := a.extractArchive(fs.Arg(0), f)
	return err
}

func (a *app) agtUnpack(args []string) error {
	f, fs := registerExtractFlags(a, "agt unpack")
	if err := a.parseArgs(fs, args, 1, "archive.agt"); err != nil {
		return err
	}

	h, entries, err := a.extractArchive(fs.Arg(0), f)
	if err != nil {
		return err
	}

	manifest := archiveManifest{Header: newManifestHeader(h), Entries: entries}
	manifestPath := filepath.Join(*f.out, manifestName)
	if err := saveYAML(manifestPath, manifest); err != nil {
		return err
	}

	a.log.Info().Str("manifest", manifestPath).Int("entries", len(entries)).Msg("unpacked")
	return nil
}

// extractArchive writes archive entries to the output directory and returns
// the header with one manifest record per written entry.
// Entries that fail to decode are logged and skipped.
func (a *app) extractArchive(path string, f *extractFlags) (agt.Header, []manifestEntry, error) {
	k, err := f.key()
	if err != nil {
		return agt.Header{}, nil, err
	}

	r, err := agt.OpenWithOptions(path, k, agt.ReaderOptions{AllowAnyVersion: true})
	if err != nil {
		return agt.Header{}, nil, err
	}
	defer func() { _ = r.Close() }()

	outDir, err := filepath.Abs(*f.out)
	if err != nil {
		return agt.Header{}, nil, err
	}

	var (
		mu      sync.Mutex
		written []manifestEntry
		skipped atomic.Int64
	)

	err = r.ExtractAll(context.Background(), outDir, agt.ExtractOptions{
		Rules:      patternRules(*f.include),
		MaxWorkers: *f.workers,
		RawNames:   *f.raw,
		OnEntryDone: func(e agt.Entry, n int64, outputPath string) {
			rel, relErr := filepath.Rel(outDir, outputPath)
			if relErr != nil {
				rel = outputPath
			}

			mu.Lock()
			written = append(written, manifestEntry{Path: e.Path, File: filepath.ToSlash(rel), Size: n})
			mu.Unlock()

			a.log.Debug().Str("entry", e.Path).Int64("bytes", n).Msg("extracted")
		},
		OnEntryError: func(e agt.Entry, entryErr error) {
			skipped.Add(1)
			a.log.Warn().Err(entryErr).Str("entry", e.Path).Msg("skipping entry")
		},
	})
	if err != nil {
		return agt.Header{}, nil, err
	}

	sort.Slice(written, func(i, j int) bool { return written[i].Path < written[j].Path })
	a.log.Info().
		Str("archive", path).
		Int("extracted", len(written)).
		Int64("skipped", skipped.Load()).
		Msg("extract finished")

	return r.Header(), written, nil
}

func (a *app) agtPack(args []string) error {
	fs := a.flagSet("agt pack")
	key := keyFlag(fs)
	out := fs.String("o", "", "output archive path")
	manifestPath := fs.String("manifest", "", "unpack manifest (default: <dir>/"+manifestName+" when present)")
	include := fs.String("include", "", "comma-separated glob patterns of files to pack when no manifest is used")
	if err := a.parseArgs(fs, args, 1, "dir"); err != nil {
		return err
	}
	if *out == "" {
		fmt.Fprintln(a.errOut, "agt pack: -o is required")
		return errUsage
	}

	k, err := key()
	if err != nil {
		return err
	}

	dir := fs.Arg(0)
	if *manifestPath == "" {
		candidate := filepath.Join(dir, manifestName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			*manifestPath = candidate
		}
	}

	opts := agt.PackOptions{
		OnEntryDone: func(p agt.PackEntryProgress) {
			a.log.Debug().
				Str("entry", p.Path).
				Uint32("chunks", p.ChunkCount).
				Uint32("stored", p.StoredSize).
				Msg("packed")
		},
	}

	var res *agt.BuildResult
	if *manifestPath != "" {
		res, err = a.packFromManifest(*out, dir, *manifestPath, k, opts)
	} else {
		opts.Rules = patternRules(*include)
		res, err = agt.PackDir(context.Background(), *out, dir, k, opts)
	}
	if err != nil {
		return err
	}

	a.log.Info().
		Str("archive", *out).
		Uint32("entries", res.Header.FileCount).
		Int64("raw_bytes", res.RawBytes).
		Int64("data_bytes", res.DataSize).
		Dur("took", res.Duration).
		Msg("packed")

	return nil
}

// packFromManifest rebuilds an archive from an unpack manifest and its extracted files.
func (a *app) packFromManifest(out string, dir string, manifestPath string, key []byte, opts agt.PackOptions) (*agt.BuildResult, error) {
	var m archiveManifest
	if err := loadYAML(manifestPath, &m); err != nil {
		return nil, err
	}

	h, err := m.Header.header()
	if err != nil {
		return nil, err
	}
	opts.Header = &h

	inputs := make([]agt.Input, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.File == "" {
			return nil, fmt.Errorf("manifest entry %q has no file", e.Path)
		}

		local := filepath.Join(dir, filepath.FromSlash(e.File))
		inputs = append(inputs, agt.Input{
			Path: e.Path,
			Open: func() (io.ReadCloser, error) { return os.Open(local) },
		})
	}

	a.log.Debug().Str("manifest", manifestPath).Int("entries", len(inputs)).Msg("packing from manifest")
	return agt.PackFile(context.Background(), out, key, inputs, opts)
}

// patternRules turns a comma-separated pattern list into include rules.
func patternRules(patterns string) []pathrules.Rule {
	var rules []pathrules.Rule
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}

	return rules
}
