// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package xlt

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

// utf16le encodes ASCII text as UTF-16LE without a byte order mark.
func utf16le(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0)
	}

	return out
}

func TestEncode_Layout(t *testing.T) {
	t.Parallel()

	tbl := &Table{Rows: [][]string{{"ID", "Name"}, {"1", "x"}}}
	got, err := tbl.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := append([]byte{0xFF, 0xFE}, utf16le("ID\tName\r\n1\tx\r\n")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode=% X, want % X", got, want)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want [][]string
	}{
		{name: "empty", data: nil, want: nil},
		{name: "bom only", data: []byte{0xFF, 0xFE}, want: nil},
		{
			name: "rows",
			data: append([]byte{0xFF, 0xFE}, utf16le("a\tb\r\nc\td\r\n")...),
			want: [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name: "trailing row without crlf",
			data: append([]byte{0xFF, 0xFE}, utf16le("a\r\nlast")...),
			want: [][]string{{"a"}, {"last"}},
		},
		{
			name: "empty cells and rows",
			data: append([]byte{0xFF, 0xFE}, utf16le("\t\r\n\r\n")...),
			want: [][]string{{"", ""}, {""}},
		},
		{
			name: "odd trailing byte",
			data: append(append([]byte{0xFF, 0xFE}, utf16le("a\r\n")...), 'z'),
			want: [][]string{{"a"}},
		},
		{
			name: "first unit always skipped",
			data: utf16le("Xa\r\n"),
			want: [][]string{{"a"}},
		},
		{
			name: "korean",
			data: []byte{0xFF, 0xFE, 0x00, 0xAC, 0x09, 0x00, 0x31, 0x00, 0x0D, 0x00, 0x0A, 0x00},
			want: [][]string{{"가", "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tbl, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(tbl.Rows, tt.want) {
				t.Fatalf("rows mismatch:\n got: %s\nwant: %s", spew.Sdump(tbl.Rows), spew.Sdump(tt.want))
			}
		})
	}
}

func TestRoundTrip_ByteExact(t *testing.T) {
	t.Parallel()

	original := []byte{0xFF, 0xFE}
	original = append(original, utf16le("QuestID\tTitle\tReward\r\n")...)
	original = append(original, 0x00, 0xAC, 0x09, 0x00) // "가\t"
	original = append(original, utf16le("Intro\t100\r\n")...)

	tbl, err := Read(bytes.NewReader(original))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var buf bytes.Buffer
	if err := tbl.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), original) {
		t.Fatalf("rewrite=% X, want % X", buf.Bytes(), original)
	}
}

func TestTable_Records(t *testing.T) {
	t.Parallel()

	tbl := &Table{Rows: [][]string{
		{"ID", "Name", "Price"},
		{"1", "spoiler"},
		{"2", "tire", "300", "extra"},
	}}

	if got := tbl.Column("Price"); got != 2 {
		t.Fatalf("Column(Price)=%d, want 2", got)
	}
	if got := tbl.Column("Missing"); got != -1 {
		t.Fatalf("Column(Missing)=%d, want -1", got)
	}

	want := []map[string]string{
		{"ID": "1", "Name": "spoiler", "Price": ""},
		{"ID": "2", "Name": "tire", "Price": "300"},
	}
	if got := tbl.Records(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Records mismatch:\n got: %s\nwant: %s", spew.Sdump(got), spew.Sdump(want))
	}

	if got := (&Table{}).Records(); got != nil {
		t.Fatalf("empty Records=%v, want nil", got)
	}
}
