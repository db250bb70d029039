// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	entry   Entry
}

// ExtractAll writes selected entries to dstDir, mirroring archive paths as directories.
// Entries are processed by MaxWorkers workers. Decode failures of single entries are
// reported to OnEntryError and skipped when it is set; any other failure stops
// extraction and the first encountered error is returned.
func (r *Reader) ExtractAll(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	opts.applyDefaults()

	entries := r.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	matcher, err := newRuleMatcher(opts.Rules, opts.RulesMatcherOptions)
	if err != nil {
		return err
	}
	entries = filterEntriesByRules(entries, matcher)

	if len(entries) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := prepareExtractWorkItems(entries, opts.RawNames)
	if err != nil {
		return err
	}

	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return err
	}

	taskCh := make(chan extractWorkItem, len(workItems))
	errCh := make(chan error, len(workItems))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for range opts.MaxWorkers {
		wg.Go(func() {
			for task := range taskCh {
				if err := r.extractPreparedEntry(ctx, dstRootAbs, task, opts); err != nil {
					errCh <- err
					cancel()
				}
			}
		})
	}

feed:
	for _, task := range workItems {
		select {
		case <-ctx.Done():
			break feed
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}

	if first == nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return first
}

// prepareExtractWorkItems validates selected entries and prepares relative fs paths.
func prepareExtractWorkItems(entries []Entry, rawNames bool) ([]extractWorkItem, error) {
	paths := make([]string, len(entries))
	for i := range entries {
		paths[i] = entries[i].Path
	}

	if !rawNames {
		sanitized, err := sanitizeUniquePaths(paths)
		if err != nil {
			return nil, err
		}

		paths = sanitized
	}

	workItems := make([]extractWorkItem, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(paths[i]) == "" {
			continue
		}

		normalizedPath, err := normalizeExtractEntryPath(paths[i])
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", entry.Path, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			entry:   entry,
			relPath: relPath,
			relDir:  relDir,
		})
	}

	return workItems, nil
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// extractPreparedEntry inflates one work item and writes it below the destination root.
func (r *Reader) extractPreparedEntry(ctx context.Context, dstRootAbs string, task extractWorkItem, opts ExtractOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := r.ReadEntryData(task.entry)
	if err != nil {
		if opts.OnEntryError != nil && errors.Is(err, ErrDecode) {
			opts.OnEntryError(task.entry, err)
			return nil
		}

		return err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", task.entry.Path, err)
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.entry, int64(len(data)), outPath)
	}

	return nil
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsDrivePrefix reports whether path starts with a drive prefix like C:.
func hasWindowsDrivePrefix(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}

	b := path[0]
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
