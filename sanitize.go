// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"fmt"
	"hash/fnv"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames contains case-insensitive reserved Windows device names.
var reservedDeviceNames = func() map[string]struct{} {
	names := map[string]struct{}{
		"con": {}, "prn": {}, "aux": {}, "nul": {}, "clock$": {},
	}
	for i := 1; i <= 9; i++ {
		names["com"+strconv.Itoa(i)] = struct{}{}
		names["lpt"+strconv.Itoa(i)] = struct{}{}
	}

	return names
}()

// SanitizePath rewrites one entry path to deterministic filesystem-safe slash-separated form.
func SanitizePath(pathValue string) (string, error) {
	normalizedPath := NormalizePath(pathValue)
	if normalizedPath == "" {
		return "", nil
	}

	sanitized := sanitizeRelativePath(normalizedPath)
	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", err
	}

	return sanitized, nil
}

// sanitizeEntryInfoPaths rewrites listed paths to unique filesystem-safe names.
func sanitizeEntryInfoPaths(entries []EntryInfo) ([]EntryInfo, error) {
	paths := make([]string, len(entries))
	for i := range entries {
		paths[i] = entries[i].Path
	}

	sanitized, err := sanitizeUniquePaths(paths)
	if err != nil {
		return nil, err
	}

	out := make([]EntryInfo, len(entries))
	for i := range entries {
		out[i] = EntryInfo{Path: sanitized[i], Size: entries[i].Size}
	}

	return out, nil
}

// sanitizeUniquePaths sanitizes every path and resolves case-insensitive collisions with "~N" suffixes.
func sanitizeUniquePaths(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	used := make(map[string]struct{}, len(paths))
	nextSuffix := make(map[string]int)

	for i, raw := range paths {
		relativePath, err := normalizeExtractEntryPath(raw)
		if err != nil {
			// Mangled names are still sanitized segment by segment.
			relativePath = strings.ReplaceAll(raw, `\`, `/`)
		}

		sanitized, err := makeSanitizedPathUnique(sanitizeRelativePath(relativePath), used, nextSuffix)
		if err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", raw, err)
		}

		if _, err := normalizeExtractEntryPath(sanitized); err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", raw, err)
		}

		out[i] = sanitized
	}

	return out, nil
}

// sanitizeRelativePath sanitizes each segment of a relative slash-separated path.
func sanitizeRelativePath(relativePath string) string {
	parts := strings.Split(relativePath, "/")
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." {
			continue
		}

		sanitized = append(sanitized, sanitizePathSegment(part))
	}
	if len(sanitized) == 0 {
		return "_"
	}

	return strings.Join(sanitized, "/")
}

// sanitizePathSegment sanitizes one path segment for broad filesystem compatibility.
func sanitizePathSegment(segment string) string {
	if segment == ".." {
		return "_"
	}

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '\uFFFD' || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}

		return r
	}, segment)

	sanitized = strings.TrimRight(sanitized, ". ")
	if sanitized == "" {
		return "_"
	}

	if isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	return shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
}

// isReservedDeviceName reports whether the segment base name is a reserved device identifier.
func isReservedDeviceName(name string) bool {
	base := strings.ToLower(name)
	if dot := strings.IndexByte(base, '.'); dot >= 0 {
		base = base[:dot]
	}

	_, ok := reservedDeviceNames[strings.TrimRight(base, " ")]
	return ok
}

// makeSanitizedPathUnique resolves collisions by adding deterministic numeric suffix.
func makeSanitizedPathUnique(pathValue string, used map[string]struct{}, nextSuffix map[string]int) (string, error) {
	key := strings.ToLower(pathValue)
	if _, exists := used[key]; !exists {
		used[key] = struct{}{}
		return pathValue, nil
	}

	dir, name := path.Split(pathValue)
	for idx := max(nextSuffix[key], 2); idx < 1000000; idx++ {
		candidate := dir + withNumericSuffix(name, idx)

		candidateKey := strings.ToLower(candidate)
		if _, exists := used[candidateKey]; exists {
			continue
		}

		used[candidateKey] = struct{}{}
		nextSuffix[key] = idx + 1
		return candidate, nil
	}

	return "", ErrInvalidExtractPath
}

// withNumericSuffix appends "~N" before extension and preserves max segment length.
func withNumericSuffix(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := "~" + strconv.Itoa(n)

	return shortenSegmentDeterministic(base, max(maxSanitizedSegmentLen-len(ext)-len(suffix), 1)) + suffix + ext
}

// shortenSegmentDeterministic shortens long segment while keeping a hash of the full value.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 10 {
		return value[:maxLen]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	hashPart := fmt.Sprintf("~%08x", h.Sum32())

	return value[:max(maxLen-len(hashPart), 1)] + hashPart
}
