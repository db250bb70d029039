// SPDX-License-Identifier: MIT
// Copyright (c) 2026 slidetown contributors
// Source: github.com/slidetown/agt

package agt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slidetown/agt/backpatch"
)

func TestBuilder_LastWriteWins(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.Add("a.txt", []byte("first"))
	b.Add("a.txt", []byte("second"))

	if b.Len() != 1 {
		t.Fatalf("Len=%d, want 1", b.Len())
	}

	buf := backpatch.NewBuffer(0)
	if _, err := b.Write(buf, testKey); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := openArchiveBytes(t, buf.Bytes(), testKey)
	defer func() { _ = r.Close() }()

	got, err := r.Extract("a.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("payload=%q, want %q", got, "second")
	}
}

func TestBuilder_CopiesPayload(t *testing.T) {
	t.Parallel()

	payload := []byte("original")
	var b Builder
	b.Add("a.txt", payload)
	payload[0] = 'X'

	buf := backpatch.NewBuffer(0)
	if _, err := b.Write(buf, testKey); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := openArchiveBytes(t, buf.Bytes(), testKey)
	defer func() { _ = r.Close() }()

	got, err := r.Extract("a.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("payload=%q, want %q", got, "original")
	}
}

func TestBuilder_SortedPathOrder(t *testing.T) {
	t.Parallel()

	var b Builder
	for _, p := range []string{`b\z.txt`, "a.txt", "A.txt", `b\a.txt`} {
		b.Add(p, []byte(p))
	}

	want := []string{"A.txt", "a.txt", `b\a.txt`, `b\z.txt`}
	if got := b.Paths(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Paths=%q, want %q", got, want)
	}

	buf := backpatch.NewBuffer(0)
	res, err := b.Write(buf, testKey)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	for i, e := range res.Entries {
		if e.Path != want[i] {
			t.Fatalf("entry %d path=%q, want %q", i, e.Path, want[i])
		}
	}

	if !b.Remove("a.txt") || b.Remove("missing") {
		t.Fatal("Remove must report presence")
	}
	if b.Len() != 3 {
		t.Fatalf("Len after Remove=%d, want 3", b.Len())
	}
}

func TestBuilder_DataOffsetsBackpatched(t *testing.T) {
	t.Parallel()

	var b Builder
	b.Add("a.txt", bytes.Repeat([]byte("a"), 100))
	b.Add("b.txt", bytes.Repeat([]byte("b"), ChunkSize*2+5))
	b.Add("c.txt", []byte("c"))

	buf := backpatch.NewBuffer(0)
	res, err := b.Write(buf, testKey)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	plain := append([]byte(nil), buf.Bytes()...)
	XORKeystream(plain, 0, testKey)

	if res.Entries[0].DataOffset != uint32(res.IndexSize) {
		t.Fatalf("first DataOffset=%d, want IndexSize %d", res.Entries[0].DataOffset, res.IndexSize)
	}

	recordPos := HeaderSize
	for i, e := range res.Entries {
		stored := binary.LittleEndian.Uint32(plain[recordPos:])
		if stored != e.DataOffset {
			t.Fatalf("record %d stored offset=%d, want %d", i, stored, e.DataOffset)
		}
		recordPos += e.encodedSize()

		// Region length = table + sum of chunk lengths.
		end := int(e.DataOffset) + int(e.ChunkCount)*2
		for c := range int(e.ChunkCount) {
			end += int(binary.LittleEndian.Uint16(plain[int(e.DataOffset)+c*2:]))
		}

		if i+1 < len(res.Entries) && uint32(end) != res.Entries[i+1].DataOffset {
			t.Fatalf("entry %d ends at %d, next starts at %d", i, end, res.Entries[i+1].DataOffset)
		}
		if i+1 == len(res.Entries) && end != len(plain) {
			t.Fatalf("last entry ends at %d, archive is %d bytes", end, len(plain))
		}
	}

	if res.IndexSize+res.DataSize != int64(len(plain)) {
		t.Fatalf("IndexSize+DataSize=%d, want %d", res.IndexSize+res.DataSize, len(plain))
	}
	if res.RawBytes != 100+ChunkSize*2+5+1 {
		t.Fatalf("RawBytes=%d", res.RawBytes)
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		`NeoData\NC_quest.xlt`: []byte("quest"),
		`Data\a.nif`:           bytes.Repeat([]byte("mesh"), 9000),
	}

	first, _ := buildArchive(t, files, testKey)
	second, _ := buildArchive(t, files, testKey)
	if !bytes.Equal(first, second) {
		t.Fatal("identical inputs must produce identical archives")
	}
}

func TestBuilder_HeaderPlaintextAcrossKeys(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{"a.txt": []byte("same payload")}
	withTest, _ := buildArchive(t, files, testKey)
	withRef, _ := buildArchive(t, files, ReferenceKey())

	if !bytes.Equal(withTest[:HeaderSize], withRef[:HeaderSize]) {
		t.Fatal("headers must not depend on the key")
	}
	if bytes.Equal(withTest[HeaderSize:], withRef[HeaderSize:]) {
		t.Fatal("bytes past the header must depend on the key")
	}

	h, err := ReadHeader(bytes.NewReader(withTest))
	if err != nil {
		t.Fatalf("ReadHeader without key: %v", err)
	}
	if h.FileCount != 1 {
		t.Fatalf("FileCount=%d, want 1", h.FileCount)
	}
}

func TestBuilder_PreservesHeaderTemplate(t *testing.T) {
	t.Parallel()

	h, err := ReadHeader(bytes.NewReader(header0Files))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	h.FileCount = 99

	var b Builder
	b.SetHeader(h)

	buf := backpatch.NewBuffer(0)
	if _, err := b.Write(buf, ReferenceKey()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), header0Files) {
		t.Fatalf("archive=% X, want % X", buf.Bytes(), header0Files)
	}

	seven, err := ReadHeader(bytes.NewReader(header7Files))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	b.SetHeader(seven)
	for i := range 7 {
		b.Add(strings.Repeat("x", i+1), []byte{byte(i)})
	}

	buf = backpatch.NewBuffer(0)
	if _, err := b.Write(buf, ReferenceKey()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(buf.Bytes()[:HeaderSize], header7Files) {
		t.Fatalf("header=% X, want % X", buf.Bytes()[:HeaderSize], header7Files)
	}
}

func TestBuilder_WriterNotAtStart(t *testing.T) {
	t.Parallel()

	buf := backpatch.NewBuffer(0)
	if _, err := buf.Write([]byte{0}); err != nil {
		t.Fatal(err)
	}

	var b Builder
	b.Add("a.txt", []byte("a"))

	_, err := b.Write(buf, testKey)
	if !errors.Is(err, ErrWriterNotAtStart) {
		t.Fatalf("expected ErrWriterNotAtStart, got %v", err)
	}
	if buf.Len() != 1 {
		t.Fatalf("buffer size=%d, want 1", buf.Len())
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		path string
		key  []byte
		want error
	}{
		{name: "empty key", path: "a.txt", key: nil, want: ErrEmptyKey},
		{name: "empty path", path: "", key: testKey, want: ErrInvalidEntryPath},
		{name: "invalid utf8", path: "a\xff.txt", key: testKey, want: ErrInvalidPath},
		{name: "path too long", path: strings.Repeat("p", maxPathLen+1), key: testKey, want: ErrInvalidEntryPath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var b Builder
			b.Add(tc.path, []byte("x"))

			_, err := b.Write(backpatch.NewBuffer(0), tc.key)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var b Builder
	if _, err := b.Write(nil, testKey); !errors.Is(err, ErrNilWriter) {
		t.Fatalf("expected ErrNilWriter, got %v", err)
	}
}

func TestBuilder_AddFromArchiveReenciphers(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("copied chunk "), 3000)
	srcData, _ := buildArchive(t, map[string][]byte{
		`NeoData\NC_quest.xlt`: payload,
		"zz.txt":               []byte("tail"),
	}, ReferenceKey())
	src := openArchiveBytes(t, srcData, ReferenceKey())
	defer func() { _ = src.Close() }()

	e, ok := src.Lookup(`NeoData\NC_quest.xlt`)
	if !ok {
		t.Fatal("source entry missing")
	}

	var b Builder
	b.Add("0_first.txt", []byte("shifts every offset"))
	if err := b.AddFromArchive(e.Path, src, e); err != nil {
		t.Fatalf("AddFromArchive: %v", err)
	}
	if err := b.AddFromArchive("x", nil, e); !errors.Is(err, ErrNilReader) {
		t.Fatalf("expected ErrNilReader, got %v", err)
	}

	buf := backpatch.NewBuffer(0)
	res, err := b.Write(buf, testKey)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Entries[1].DataOffset == e.DataOffset {
		t.Fatal("copied entry must move to a new offset")
	}

	dst := openArchiveBytes(t, buf.Bytes(), testKey)
	defer func() { _ = dst.Close() }()

	got, err := dst.Extract(e.Path)
	if err != nil {
		t.Fatalf("Extract copied entry: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("copied payload mismatch")
	}
}

func TestBuilder_WriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.agt")
	var b Builder
	b.Add(ArchivePath("NeoData/NC_quest.xlt"), []byte("quest"))

	res, err := b.WriteFile(path, testKey)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != res.IndexSize+res.DataSize {
		t.Fatalf("file size=%d, want %d", fi.Size(), res.IndexSize+res.DataSize)
	}

	got, err := readEntryFromFile(path, `NeoData\NC_quest.xlt`)
	if err != nil {
		t.Fatalf("readEntryFromFile: %v", err)
	}
	if string(got) != "quest" {
		t.Fatalf("payload=%q, want %q", got, "quest")
	}
}

func TestPack_NormalizesAndSortsInputs(t *testing.T) {
	t.Parallel()

	buf := backpatch.NewBuffer(0)
	res, err := Pack(context.Background(), buf, testKey, []Input{
		bytesInput("NeoData/NC_quest.xlt", []byte("q")),
		bytesInput(`./Data\a.nif`, []byte("a")),
	}, PackOptions{})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if res.Entries[0].Path != `Data\a.nif` || res.Entries[1].Path != `NeoData\NC_quest.xlt` {
		t.Fatalf("entries=%+v", res.Entries)
	}
}

func TestPack_RejectsDuplicateEntryPathsCaseInsensitive(t *testing.T) {
	t.Parallel()

	_, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, []Input{
		bytesInput("Dir/File.txt", []byte("a")),
		bytesInput(`dir\file.txt`, []byte("b")),
	}, PackOptions{})
	if !errors.Is(err, ErrDuplicateEntryPath) {
		t.Fatalf("expected ErrDuplicateEntryPath, got %v", err)
	}
}

func TestPack_RejectsInvalidNormalizedEntryPath(t *testing.T) {
	t.Parallel()

	_, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, []Input{
		bytesInput("/", []byte("a")),
	}, PackOptions{})
	if !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
	}
}

func TestPack_EmptyInputs(t *testing.T) {
	t.Parallel()

	_, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, nil, PackOptions{})
	if !errors.Is(err, ErrEmptyInputs) {
		t.Fatalf("expected ErrEmptyInputs, got %v", err)
	}
}

func TestPack_MaxEntrySize(t *testing.T) {
	t.Parallel()

	_, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, []Input{
		bytesInput("big.bin", make([]byte, 101)),
	}, PackOptions{MaxEntrySize: 100})
	if !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("expected ErrSizeOverflow, got %v", err)
	}
}

func TestPack_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Pack(ctx, backpatch.NewBuffer(0), testKey, []Input{
		bytesInput("a.txt", []byte("a")),
	}, PackOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPack_OnEntryDone(t *testing.T) {
	t.Parallel()

	var events []PackEntryProgress
	res, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, []Input{
		bytesInput("a.txt", bytes.Repeat([]byte("a"), ChunkSize+1)),
		bytesInput("b.txt", nil),
	}, PackOptions{
		OnEntryDone: func(e PackEntryProgress) {
			events = append(events, e)
		},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("len(events)=%d, want 2", len(events))
	}
	if events[0].Path != "a.txt" || events[0].ChunkCount != 2 || events[0].DecompressedLength != ChunkSize+1 {
		t.Fatalf("events[0]=%+v", events[0])
	}
	if events[0].DataOffset != res.Entries[0].DataOffset {
		t.Fatalf("events[0].DataOffset=%d, want %d", events[0].DataOffset, res.Entries[0].DataOffset)
	}
	if events[1].StoredSize != 0 || events[1].ChunkCount != 0 {
		t.Fatalf("events[1]=%+v", events[1])
	}
	if events[0].Copied || events[1].Copied {
		t.Fatal("packed entries must not be reported as copied")
	}
}

func TestPack_InputOpenError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := Pack(context.Background(), backpatch.NewBuffer(0), testKey, []Input{{
		Path: "a.txt",
		Open: func() (io.ReadCloser, error) { return nil, boom },
	}}, PackOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestReadPayloadBounded(t *testing.T) {
	t.Parallel()

	got, err := readPayloadBounded(bytes.NewReader([]byte("abc")), 3)
	if err != nil {
		t.Fatalf("readPayloadBounded exact: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("payload=%q, want %q", got, "abc")
	}

	if _, err := readPayloadBounded(bytes.NewReader([]byte("abcd")), 3); !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("expected ErrSizeOverflow, got %v", err)
	}
	if _, err := readPayloadBounded(nil, 3); !errors.Is(err, ErrNilReader) {
		t.Fatalf("expected ErrNilReader, got %v", err)
	}
}

func TestPackDir_Rules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string]string{
		"NeoData/NC_quest.xlt":   "quest",
		"NeoData/NC_chapter.xlt": "chapter",
		"NeoData/readme.txt":     "skip",
		"Data/a.nif":             "mesh",
	}
	for p, data := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(t.TempDir(), "data.agt")
	res, err := PackDir(context.Background(), out, dir, testKey, PackOptions{
		Rules: includeRules("*.xlt"),
	})
	if err != nil {
		t.Fatalf("PackDir: %v", err)
	}

	if len(res.Entries) != 2 {
		t.Fatalf("len(entries)=%d, want 2", len(res.Entries))
	}
	if res.Entries[0].Path != `NeoData\NC_chapter.xlt` || res.Entries[1].Path != `NeoData\NC_quest.xlt` {
		t.Fatalf("entries=%+v", res.Entries)
	}

	got, err := readEntryFromFile(out, "neodata/nc_quest.xlt")
	if err != nil {
		t.Fatalf("readEntryFromFile: %v", err)
	}
	if string(got) != "quest" {
		t.Fatalf("payload=%q, want %q", got, "quest")
	}

	_, err = PackDir(context.Background(), out, dir, testKey, PackOptions{
		Rules: includeRules("*.dds"),
	})
	if !errors.Is(err, ErrEmptyInputs) {
		t.Fatalf("expected ErrEmptyInputs, got %v", err)
	}
}
