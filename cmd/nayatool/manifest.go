// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/slidetown/agt"
	"gopkg.in/yaml.v3"
)

// manifestName is the file unpack writes next to the extracted entries.
const manifestName = "manifest.yaml"

var errBadOpaque = errors.New("manifest opaque field must be 24 hex digits")

// archiveManifest records what unpack extracted so pack can rebuild the archive.
type archiveManifest struct {
	Header  manifestHeader  `yaml:"header"`
	Entries []manifestEntry `yaml:"entries"`
}

// manifestHeader keeps the header fields the builder does not recompute.
type manifestHeader struct {
	Opaque       string `yaml:"opaque"`
	Reserved     uint32 `yaml:"reserved"`
	VersionMajor uint16 `yaml:"version_major"`
	VersionMinor uint16 `yaml:"version_minor"`
}

// manifestEntry maps one archive path to its extracted file.
type manifestEntry struct {
	Path string `yaml:"path"`
	File string `yaml:"file"`
	Size int64  `yaml:"size"`
}

func newManifestHeader(h agt.Header) manifestHeader {
	return manifestHeader{
		Reserved:     h.Reserved,
		VersionMajor: h.VersionMajor,
		VersionMinor: h.VersionMinor,
		Opaque:       hex.EncodeToString(h.Opaque[:]),
	}
}

// header converts back to an archive header; FileCount is left for the builder.
func (m manifestHeader) header() (agt.Header, error) {
	h := agt.Header{
		Reserved:     m.Reserved,
		VersionMajor: m.VersionMajor,
		VersionMinor: m.VersionMinor,
	}

	raw, err := hex.DecodeString(m.Opaque)
	if err != nil || len(raw) != len(h.Opaque) {
		return agt.Header{}, fmt.Errorf("%w: %q", errBadOpaque, m.Opaque)
	}
	copy(h.Opaque[:], raw)

	return h, nil
}

// saveYAML writes v to path as YAML.
func saveYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}

	return f.Close()
}

// loadYAML decodes the YAML file at path into v, rejecting unknown fields.
func loadYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}
