// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Editor accumulates archive edit operations and applies them on Commit.
// Untouched entries keep their compressed chunks; only added or replaced
// entries are deflated again.
type Editor struct {
	path string
	key  []byte
	ops  []editOperation
	opts EditOptions
}

// editOperation stores one staged editor operation.
type editOperation struct {
	inputs []Input
	paths  []string
	kind   editOperationKind
}

// editOperationKind identifies staged edit action type.
type editOperationKind uint8

const (
	// editOperationAdd appends new entries and fails on existing path.
	editOperationAdd editOperationKind = iota + 1
	// editOperationReplace rewrites existing entries.
	editOperationReplace
	// editOperationDelete removes exact paths.
	editOperationDelete
	// editOperationDeleteDir removes entries by directory prefix.
	editOperationDeleteDir
)

// planItem is one entry of the edited archive: a staged input or a kept source record.
type planItem struct {
	input  *Input
	source *Entry
	path   string
}

// OpenEditor creates a staged editor for the archive at path.
// The archive is not read until Commit.
func OpenEditor(path string, key []byte, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, ErrInvalidEntryPath
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	opts.applyDefaults()

	return &Editor{
		path: trimmedPath,
		key:  append([]byte(nil), key...),
		opts: opts,
		ops:  make([]editOperation, 0, 8),
	}, nil
}

// Add schedules adding new entries and fails on path collision during commit.
func (e *Editor) Add(inputs ...Input) error {
	return e.stageInputs(editOperationAdd, inputs)
}

// Replace schedules replacing existing entries and fails on missing paths during commit.
func (e *Editor) Replace(inputs ...Input) error {
	return e.stageInputs(editOperationReplace, inputs)
}

// Delete schedules exact-path removal.
func (e *Editor) Delete(paths ...string) error {
	return e.stagePaths(editOperationDelete, paths)
}

// DeleteDir schedules directory-prefix removal.
func (e *Editor) DeleteDir(prefixes ...string) error {
	return e.stagePaths(editOperationDeleteDir, prefixes)
}

// stageInputs normalizes input paths and appends one staged operation.
func (e *Editor) stageInputs(kind editOperationKind, inputs []Input) error {
	if e == nil {
		return ErrNilReader
	}

	normalized := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		canonicalPath, err := normalizeArchiveEntryPath(in.Path)
		if err != nil {
			return err
		}

		in.Path = canonicalPath
		normalized = append(normalized, in)
	}

	if len(normalized) > 0 {
		e.ops = append(e.ops, editOperation{kind: kind, inputs: normalized})
	}

	return nil
}

// stagePaths normalizes paths and appends one staged operation.
func (e *Editor) stagePaths(kind editOperationKind, paths []string) error {
	if e == nil {
		return ErrNilReader
	}

	normalized := make([]string, 0, len(paths))
	for _, raw := range paths {
		canonical, err := normalizeArchiveEntryPath(raw)
		if err != nil {
			return err
		}

		normalized = append(normalized, canonical)
	}

	if len(normalized) > 0 {
		e.ops = append(e.ops, editOperation{kind: kind, paths: normalized})
	}

	return nil
}

// Commit applies all staged operations in one rewrite transaction.
// The original archive is moved to "<path>.bak" first and restored if the rewrite fails.
func (e *Editor) Commit(ctx context.Context) (*BuildResult, error) {
	if e == nil {
		return nil, ErrNilReader
	}

	if ctx == nil {
		ctx = context.Background()
	}

	backupPath := e.path + ".bak"
	if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
		return nil, err
	}

	if err := os.Rename(e.path, backupPath); err != nil {
		return nil, fmt.Errorf("move archive to backup: %w", err)
	}

	res, err := e.commitFromBackup(ctx, backupPath)
	if err != nil {
		if rollbackErr := rollbackFromBackup(e.path, backupPath); rollbackErr != nil {
			return nil, fmt.Errorf("%w (rollback failed: %w)", err, rollbackErr)
		}

		return nil, err
	}

	if e.opts.BackupKeep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return nil, fmt.Errorf("remove backup: %w", err)
		}
	}

	return res, nil
}

// commitFromBackup writes the edited archive from the backup source.
func (e *Editor) commitFromBackup(ctx context.Context, backupPath string) (*BuildResult, error) {
	src, err := OpenWithOptions(backupPath, e.key, ReaderOptions{AllowAnyVersion: true})
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	plan, err := buildEditPlan(src.entries, e.ops)
	if err != nil {
		return nil, err
	}

	packOpts := e.opts.PackOptions
	if packOpts.Header == nil {
		header := src.Header()
		packOpts.Header = &header
	}

	var b Builder
	for _, item := range plan {
		if item.source != nil {
			if err := b.AddFromArchive(item.path, src, *item.source); err != nil {
				return nil, err
			}

			continue
		}

		data, err := readInput(*item.input, packOpts.MaxEntrySize)
		if err != nil {
			return nil, err
		}

		b.entries.Set(item.path, source{data: data})
	}

	return writeArchiveFile(e.path, func(f *os.File) (*BuildResult, error) {
		return b.write(ctx, f, e.key, packOpts)
	})
}

// buildEditPlan applies staged operations to source entries and returns the final entry set.
func buildEditPlan(sourceEntries []Entry, ops []editOperation) ([]planItem, error) {
	state := make(map[string]planItem, len(sourceEntries))
	for i := range sourceEntries {
		key := lookupKey(sourceEntries[i].Path)
		if _, exists := state[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, sourceEntries[i].Path)
		}

		state[key] = planItem{path: sourceEntries[i].Path, source: &sourceEntries[i]}
	}

	for _, op := range ops {
		switch op.kind {
		case editOperationAdd, editOperationReplace:
			for _, in := range op.inputs {
				key := lookupKey(in.Path)
				_, exists := state[key]
				if op.kind == editOperationAdd && exists {
					return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, in.Path)
				}
				if op.kind == editOperationReplace && !exists {
					return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, in.Path)
				}

				item := in
				state[key] = planItem{path: item.Path, input: &item}
			}
		case editOperationDelete:
			for _, p := range op.paths {
				delete(state, lookupKey(p))
			}
		case editOperationDeleteDir:
			for _, prefix := range op.paths {
				prefixKey := lookupKey(prefix)
				for key := range state {
					if key == prefixKey || strings.HasPrefix(key, prefixKey+"/") {
						delete(state, key)
					}
				}
			}
		default:
			return nil, fmt.Errorf("unknown edit operation kind: %d", op.kind)
		}
	}

	plan := make([]planItem, 0, len(state))
	for _, item := range state {
		plan = append(plan, item)
	}

	return plan, nil
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep <= 1 {
		return removeIfExists(backupPath)
	}

	if err := removeIfExists(fmt.Sprintf("%s.%d", backupPath, keep-1)); err != nil {
		return err
	}

	for i := keep - 2; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", backupPath, i)
		to := fmt.Sprintf("%s.%d", backupPath, i+1)
		if err := renameIfExists(from, to); err != nil {
			return err
		}
	}

	return renameIfExists(backupPath, backupPath+".1")
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
