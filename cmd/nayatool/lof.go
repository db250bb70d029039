// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slidetown/agt"
	"github.com/slidetown/agt/lof"
)

func (a *app) lofInfo(args []string) error {
	fs := a.flagSet("lof info")
	dump := fs.Bool("dump", false, "dump the decoded table")
	if err := a.parseArgs(fs, args, 1, "models.lof"); err != nil {
		return err
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	t, err := lof.Read(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.Arg(0), err)
	}

	if *dump {
		a.dump(t)
		return nil
	}

	fmt.Fprintf(a.out, "Model count: %d\n", len(t.Models))
	return nil
}

func (a *app) lofUnpack(args []string) error {
	fs := a.flagSet("lof unpack")
	out := fs.String("o", ".", "output directory")
	if err := a.parseArgs(fs, args, 1, "models.lof"); err != nil {
		return err
	}

	src, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	t, err := lof.Read(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", fs.Arg(0), err)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	if err := saveYAML(filepath.Join(*out, manifestName), t); err != nil {
		return err
	}

	for _, m := range t.Models {
		rel, err := lofModelFile(m)
		if err != nil {
			return err
		}

		data, err := lof.ReadModelData(src, m)
		if err != nil {
			return err
		}

		dst := filepath.Join(*out, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}

		a.log.Debug().Str("model", m.FileName).Int("bytes", len(data)).Msg("unpacked model")
	}

	a.log.Info().Int("models", len(t.Models)).Str("dir", *out).Msg("unpacked")
	return nil
}

func (a *app) lofPack(args []string) error {
	fs := a.flagSet("lof pack")
	out := fs.String("o", "", "output table path")
	if err := a.parseArgs(fs, args, 1, "manifest.yaml"); err != nil {
		return err
	}
	if *out == "" {
		fmt.Fprintln(a.errOut, "lof pack: -o is required")
		return errUsage
	}

	manifestPath := fs.Arg(0)
	var t lof.File
	if err := loadYAML(manifestPath, &t); err != nil {
		return err
	}

	dir := filepath.Dir(manifestPath)
	for i := range t.Models {
		rel, err := lofModelFile(t.Models[i])
		if err != nil {
			return err
		}

		blobPath := filepath.Join(dir, rel)
		t.Models[i].Open = func() (io.ReadCloser, error) { return os.Open(blobPath) }
	}

	var written []lof.Model
	err := createOutput(*out, func(f *os.File) error {
		var werr error
		written, werr = lof.Write(f, &t)
		return werr
	})
	if err != nil {
		return err
	}

	a.log.Info().Int("models", len(written)).Str("table", *out).Msg("packed")
	return nil
}

// lofModelFile maps a stored model file name to a safe relative path.
func lofModelFile(m lof.Model) (string, error) {
	rel, err := agt.SanitizePath(m.FileName)
	if err != nil {
		return "", fmt.Errorf("model %d file name %q: %w", m.Index, m.FileName, err)
	}
	if rel == "" {
		return "", fmt.Errorf("model %d has an empty file name", m.Index)
	}

	return filepath.FromSlash(rel), nil
}
