// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

// Package xlt reads and writes the game's tab-separated text tables.
//
// Tables are UTF-16LE with a leading byte order mark. Rows end with CRLF and
// cells are separated by TAB. Most tables start with a header row naming the
// columns.
package xlt

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// bom is the UTF-16LE byte order mark written before the first row.
var bom = []byte{0xFF, 0xFE}

// Table is a decoded text table.
type Table struct {
	Rows [][]string `json:"rows" yaml:"rows"`
}

// Read decodes a table from r.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	return Decode(data)
}

// Decode parses table bytes. The first code unit is skipped as the byte order
// mark, a trailing odd byte is ignored, and a final row without CRLF is kept.
// Unpaired surrogates decode to U+FFFD.
func Decode(data []byte) (*Table, error) {
	data = data[:len(data)&^1]
	if len(data) >= 2 {
		data = data[2:]
	}

	text, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode utf-16: %w", err)
	}

	t := &Table{}
	var line strings.Builder
	skipNext := false
	for _, c := range string(text) {
		if skipNext {
			skipNext = false
			continue
		}
		if c == '\r' {
			t.Rows = append(t.Rows, strings.Split(line.String(), "\t"))
			line.Reset()
			skipNext = true
			continue
		}

		line.WriteRune(c)
	}
	if line.Len() > 0 {
		t.Rows = append(t.Rows, strings.Split(line.String(), "\t"))
	}

	return t, nil
}

// Write encodes t to w.
func (t *Table) Write(w io.Writer) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

// Encode renders t as table bytes: the byte order mark, then every row
// TAB-joined and terminated with CRLF.
func (t *Table) Encode() ([]byte, error) {
	var text strings.Builder
	for _, row := range t.Rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\r\n")
	}

	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(text.String())
	if err != nil {
		return nil, fmt.Errorf("encode utf-16: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(bom) + len(encoded))
	buf.Write(bom)
	buf.WriteString(encoded)

	return buf.Bytes(), nil
}

// Header returns the first row, or nil for an empty table.
func (t *Table) Header() []string {
	if len(t.Rows) == 0 {
		return nil
	}

	return t.Rows[0]
}

// Column returns the index of the header cell equal to name, or -1.
func (t *Table) Column(name string) int {
	for i, cell := range t.Header() {
		if cell == name {
			return i
		}
	}

	return -1
}

// Records maps every row after the header to its header cells.
// Cells beyond the header width are dropped; missing cells are empty.
func (t *Table) Records() []map[string]string {
	header := t.Header()
	if len(t.Rows) < 2 {
		return nil
	}

	out := make([]map[string]string, 0, len(t.Rows)-1)
	for _, row := range t.Rows[1:] {
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}

		out = append(out, rec)
	}

	return out
}
