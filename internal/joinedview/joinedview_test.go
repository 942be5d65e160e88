package joinedview

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writePiece(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write piece %s: %v", name, err)
	}
}

func TestViewLenAndSplits(t *testing.T) {
	dir := t.TempDir()
	writePiece(t, dir, "a", bytes.Repeat([]byte{0x01}, 10))
	writePiece(t, dir, "b", bytes.Repeat([]byte{0x02}, 5))
	writePiece(t, dir, "c", bytes.Repeat([]byte{0x03}, 7))

	v := New()
	for _, name := range []string{"a", "b", "c"} {
		if err := v.Add(dir, name); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	if v.Len() != 22 {
		t.Fatalf("Len() = %d, want 22", v.Len())
	}
	splits := v.Splits()
	want := []Range{{0, 10}, {10, 15}, {15, 22}}
	if len(splits) != len(want) {
		t.Fatalf("Splits() len = %d, want %d", len(splits), len(want))
	}
	for i := range want {
		if splits[i] != want[i] {
			t.Errorf("Splits()[%d] = %+v, want %+v", i, splits[i], want[i])
		}
	}
}

func TestReadToEndEqualsConcatenation(t *testing.T) {
	dir := t.TempDir()
	a := bytes.Repeat([]byte{0xAA}, 4096)
	b := bytes.Repeat([]byte{0xBB}, 1)
	c := bytes.Repeat([]byte{0xCC}, 8192)
	writePiece(t, dir, "a", a)
	writePiece(t, dir, "b", b)
	writePiece(t, dir, "c", c)

	v := New()
	for _, name := range []string{"a", "b", "c"} {
		if err := v.Add(dir, name); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	defer v.Close()

	got, err := ReadToEnd(v)
	if err != nil {
		t.Fatalf("ReadToEnd: %v", err)
	}
	want := append(append(append([]byte{}, a...), b...), c...)
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadToEnd() mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestReadCrossesPieceBoundaryWithShortRead(t *testing.T) {
	dir := t.TempDir()
	writePiece(t, dir, "a", []byte("hello"))
	writePiece(t, dir, "b", []byte("world"))

	v := New()
	v.Add(dir, "a")
	v.Add(dir, "b")
	defer v.Close()

	buf := make([]byte, 10)
	n, err := v.Read(buf)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if n != 5 {
		t.Fatalf("first Read returned %d bytes, want 5 (one read touches one piece)", n)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("first Read = %q, want %q", buf[:n], "hello")
	}

	n2, err := v.Read(buf)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if string(buf[:n2]) != "world" {
		t.Fatalf("second Read = %q, want %q", buf[:n2], "world")
	}
}

func TestSeekPastEndReadsZeroBytes(t *testing.T) {
	dir := t.TempDir()
	writePiece(t, dir, "a", []byte("abc"))

	v := New()
	v.Add(dir, "a")
	defer v.Close()

	if _, err := v.Seek(100, io.SeekStart); err != nil {
		t.Fatalf("Seek past end: %v", err)
	}
	buf := make([]byte, 4)
	n, err := v.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read past end = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestAtMostOneOpenHandle(t *testing.T) {
	dir := t.TempDir()
	writePiece(t, dir, "a", []byte("12"))
	writePiece(t, dir, "b", []byte("34"))

	v := New()
	v.Add(dir, "a")
	v.Add(dir, "b")
	defer v.Close()

	buf := make([]byte, 1)
	if _, err := v.Read(buf); err != nil {
		t.Fatalf("read piece a: %v", err)
	}
	if v.openIndex != 0 {
		t.Fatalf("openIndex = %d, want 0", v.openIndex)
	}

	if _, err := v.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("seek into piece b: %v", err)
	}
	if _, err := v.Read(buf); err != nil {
		t.Fatalf("read piece b: %v", err)
	}
	if v.openIndex != 1 {
		t.Fatalf("openIndex = %d, want 1 after moving to piece b", v.openIndex)
	}
}
