package cowoverlay

import (
	"bytes"
	"io"
	"testing"
)

type memReadSeeker struct {
	data   []byte
	offset int64
}

func newMemReadSeeker(data []byte) *memReadSeeker {
	return &memReadSeeker{data: data}
}

func (m *memReadSeeker) Read(p []byte) (int, error) {
	if m.offset >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.offset:])
	m.offset += int64(n)
	return n, nil
}

func (m *memReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.offset + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	}
	m.offset = abs
	return abs, nil
}

func readAll(t *testing.T, o *Overlay, from int64, n int) []byte {
	t.Helper()
	if _, err := o.Seek(from, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	out := make([]byte, 0, n)
	buf := make([]byte, 16)
	for len(out) < n {
		want := n - len(out)
		if want > len(buf) {
			want = len(buf)
		}
		r, err := o.Read(buf[:want])
		out = append(out, buf[:r]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if r == 0 {
			t.Fatalf("read returned 0 bytes without EOF (infinite loop guard)")
		}
	}
	return out
}

func TestPassThroughImmediatelyAfterConstruction(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 10000)
	inner := newMemReadSeeker(data)
	o := New(inner, int64(len(data)))

	got := readAll(t, o, 0, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("pass-through read mismatch")
	}
}

func TestWriteThenReadReturnsWrittenBytes(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 20000)
	inner := newMemReadSeeker(data)
	o := New(inner, int64(len(data)))

	write := bytes.Repeat([]byte{0xFF}, 100)
	if _, err := o.Seek(4096+10, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := o.Write(write); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readAll(t, o, 4096+10, len(write))
	if !bytes.Equal(got, write) {
		t.Fatalf("write-then-read mismatch: got %x", got)
	}

	// Bytes just outside the write remain original (zero).
	before := readAll(t, o, 4096+9, 1)
	if before[0] != 0x00 {
		t.Fatalf("byte before write = %x, want 0x00", before[0])
	}
	after := readAll(t, o, 4096+10+100, 1)
	if after[0] != 0x00 {
		t.Fatalf("byte after write = %x, want 0x00", after[0])
	}
}

func TestSparseExtensionReadsZero(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, 100)
	inner := newMemReadSeeker(data)
	o := New(inner, int64(len(data)))

	if _, err := o.Seek(5000, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	write := []byte{0xDE, 0xAD}
	if _, err := o.Write(write); err != nil {
		t.Fatalf("write: %v", err)
	}
	if o.Size() != 5002 {
		t.Fatalf("Size() = %d, want 5002", o.Size())
	}

	gap := readAll(t, o, 100, 100)
	for i, b := range gap {
		if b != 0 {
			t.Fatalf("gap byte %d = %x, want 0", i, b)
		}
	}

	tail := readAll(t, o, 5000, 2)
	if !bytes.Equal(tail, write) {
		t.Fatalf("tail = %x, want %x", tail, write)
	}
}

func TestWriteSpanningMultipleBlocksPreservesNeighboringBytes(t *testing.T) {
	blockSize := int64(16)
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	inner := newMemReadSeeker(data)
	o := NewWithBlockSize(inner, int64(len(data)), blockSize)

	// Write spans blocks 1 and 2 (bytes 28..36), partially overwriting each.
	write := bytes.Repeat([]byte{0x99}, 8)
	if _, err := o.Seek(28, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := o.Write(write); err != nil {
		t.Fatalf("write: %v", err)
	}

	full := readAll(t, o, 0, 64)
	want := append([]byte{}, data...)
	copy(want[28:36], write)
	if !bytes.Equal(full, want) {
		t.Fatalf("full read after partial multi-block write mismatch:\ngot  %x\nwant %x", full, want)
	}
}

func TestReadNeverStraddlesClassificationBoundary(t *testing.T) {
	blockSize := int64(16)
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i + 1)
	}
	inner := newMemReadSeeker(data)
	o := NewWithBlockSize(inner, int64(len(data)), blockSize)

	// Make block 0 overlay, block 1 pass-through.
	if _, err := o.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := o.Write(bytes.Repeat([]byte{0x7F}, 16)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := o.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 32) // request spans both blocks
	n, err := o.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 6 { // only to end of block 0 (offset 16), not into block 1
		t.Fatalf("Read() returned %d bytes, want 6 (stop at classification boundary)", n)
	}
	for i := 0; i < n; i++ {
		if buf[i] != 0x7F {
			t.Fatalf("byte %d = %x, want 0x7F (overlay block)", i, buf[i])
		}
	}
}

func TestFailedMaterializeReadLeavesOverlayUnchanged(t *testing.T) {
	// inner shorter than originalSize claims: materializing a
	// partially-overwritten block will hit EOF early.
	data := make([]byte, 8)
	inner := newMemReadSeeker(data)
	o := NewWithBlockSize(inner, 16, 16) // claims 16 bytes but inner only has 8

	if _, err := o.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, err := o.Write([]byte{0x01, 0x02})
	if err == nil {
		t.Fatalf("expected error materializing short block, got nil")
	}
	if _, ok := o.blocks[0]; ok {
		t.Fatalf("block map mutated despite failed materialize read")
	}
}
