// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/slidetown/agt/lf"
)

func (a *app) lfInfo(args []string) error {
	fs := a.flagSet("lf info")
	blocksOnly := fs.Bool("blocks", false, "only print the block count")
	dump := fs.Bool("dump", false, "dump the decoded table")
	if err := a.parseArgs(fs, args, 1, "terrain.lf"); err != nil {
		return err
	}

	t, err := readLF(fs.Arg(0))
	if err != nil {
		return err
	}

	switch {
	case *dump:
		a.dump(t)
	case *blocksOnly:
		fmt.Fprintln(a.out, len(t.Blocks))
	default:
		fmt.Fprintf(a.out, "Dimensions: %dx%d\n", t.SizeX, t.SizeY)
		fmt.Fprintf(a.out, "Block count: %d\n", len(t.Blocks))
	}

	return nil
}

func (a *app) lfUnpack(args []string) error {
	fs := a.flagSet("lf unpack")
	out := fs.String("o", ".", "output directory")
	if err := a.parseArgs(fs, args, 1, "terrain.lf"); err != nil {
		return err
	}

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	t, err := lf.Read(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.Arg(0), err)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	if err := saveYAML(filepath.Join(*out, manifestName), t); err != nil {
		return err
	}

	for _, b := range t.Blocks {
		data, err := lf.ReadBlockData(src, b)
		if err != nil {
			return err
		}

		if err := os.WriteFile(filepath.Join(*out, lfBlockFile(b)), data, 0o644); err != nil {
			return err
		}

		a.log.Debug().Uint32("block", b.Index).Int("bytes", len(data)).Msg("unpacked block")
	}

	a.log.Info().Int("blocks", len(t.Blocks)).Str("dir", *out).Msg("unpacked")
	return nil
}

func (a *app) lfPack(args []string) error {
	fs := a.flagSet("lf pack")
	out := fs.String("o", "", "output table path")
	if err := a.parseArgs(fs, args, 1, "manifest.yaml"); err != nil {
		return err
	}
	if *out == "" {
		fmt.Fprintln(a.errOut, "lf pack: -o is required")
		return errUsage
	}

	manifestPath := fs.Arg(0)
	var t lf.File
	if err := loadYAML(manifestPath, &t); err != nil {
		return err
	}

	// Current clients only load the newer layout date.
	t.VersionDate = lf.VersionCurrent

	dir := filepath.Dir(manifestPath)
	for i := range t.Blocks {
		blobPath := filepath.Join(dir, lfBlockFile(t.Blocks[i]))
		t.Blocks[i].Open = func() (io.ReadCloser, error) { return os.Open(blobPath) }
	}

	var written []lf.Block
	err := createOutput(*out, func(f *os.File) error {
		var werr error
		written, werr = lf.Write(f, &t)
		return werr
	})
	if err != nil {
		return err
	}

	a.log.Info().Int("blocks", len(written)).Str("table", *out).Msg("packed")
	return nil
}

// lfBlockFile names the extracted blob of b.
func lfBlockFile(b lf.Block) string {
	return strconv.FormatUint(uint64(b.Index), 10) + ".nif"
}

func readLF(path string) (*lf.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	t, err := lf.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return t, nil
}
