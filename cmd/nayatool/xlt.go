// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/slidetown/agt"
	"github.com/slidetown/agt/xlt"
	"gopkg.in/yaml.v3"
)

func (a *app) xltDump(args []string) error {
	fs := a.flagSet("xlt dump")
	key := keyFlag(fs)
	archive := fs.String("archive", "", "read the table from this archive instead of the filesystem")
	format := fs.String("format", "tsv", "output format: tsv or yaml")
	if err := a.parseArgs(fs, args, 1, "table.xlt"); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if *archive != "" {
		data, err = readArchiveEntry(*archive, fs.Arg(0), key)
	} else {
		data, err = os.ReadFile(fs.Arg(0))
	}
	if err != nil {
		return err
	}

	t, err := xlt.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", fs.Arg(0), err)
	}

	switch *format {
	case "tsv":
		for _, row := range t.Rows {
			fmt.Fprintln(a.out, strings.Join(row, "\t"))
		}
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(t.Records()); err != nil {
			return err
		}
		return enc.Close()
	default:
		fmt.Fprintf(a.errOut, "xlt dump: unknown format %q\n", *format)
		return errUsage
	}

	return nil
}

// readArchiveEntry extracts one entry payload from an archive.
func readArchiveEntry(archivePath string, entryPath string, key func() ([]byte, error)) ([]byte, error) {
	k, err := key()
	if err != nil {
		return nil, err
	}

	r, err := agt.OpenWithOptions(archivePath, k, agt.ReaderOptions{AllowAnyVersion: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.Extract(entryPath)
}
