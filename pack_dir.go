// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CollectInputs walks dir and returns one Input per regular file selected by opts.Rules.
// Input paths are relative to dir in archive form ("\" separators).
func CollectInputs(dir string, opts PackOptions) ([]Input, error) {
	opts.applyDefaults()

	matcher, err := newRuleMatcher(opts.Rules, opts.RulesMatcherOptions)
	if err != nil {
		return nil, err
	}

	var inputs []Input
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("relative path %s: %w", p, err)
		}

		rel = filepath.ToSlash(rel)
		if !matcher.Match(rel) {
			return nil
		}

		inputs = append(inputs, Input{
			Path: ArchivePath(rel),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", dir, err)
	}

	return inputs, nil
}

// PackDir packs every selected file below dir into a new archive at outPath.
func PackDir(ctx context.Context, outPath string, dir string, key []byte, opts PackOptions) (*BuildResult, error) {
	inputs, err := CollectInputs(dir, opts)
	if err != nil {
		return nil, err
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: nothing selected in %s", ErrEmptyInputs, dir)
	}

	return PackFile(ctx, outPath, key, inputs, opts)
}
