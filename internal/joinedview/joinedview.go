// Package joinedview presents an ordered list of on-disk files as one
// seekable read-only stream, routing each read to the correct underlying
// file with at most one open handle held at a time.
package joinedview

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Range is a half-open byte range [Start, End) within the joined stream,
// corresponding to one underlying piece file.
type Range struct {
	Start int64
	End   int64
}

// Len returns the size of the range.
func (r Range) Len() int64 { return r.End - r.Start }

type piece struct {
	path  string
	rng   Range
}

// View is the joined read-only stream over N on-disk files. It is not
// safe for concurrent use; callers needing concurrent access should open
// independent Views over the same pieces.
type View struct {
	pieces []piece
	size   int64

	offset int64

	openIndex int // index of currently-open piece, -1 if none
	openFile  *os.File
}

// New returns an empty View. Call Add for each piece in order before
// reading.
func New() *View {
	return &View{openIndex: -1}
}

// Add stats the file at filepath.Join(directory, relativePath) for its
// length (without opening it), then appends the range [prevEnd, prevEnd+size)
// to the interior map. No payload is read here.
func (v *View) Add(directory, relativePath string) error {
	path := filepath.Join(directory, relativePath)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("joinedview: stat piece %s: %w", path, err)
	}
	start := v.size
	end := start + info.Size()
	v.pieces = append(v.pieces, piece{path: path, rng: Range{Start: start, End: end}})
	v.size = end
	return nil
}

// Len returns the logical length of the joined stream: the sum of all
// added piece sizes.
func (v *View) Len() int64 { return v.size }

// Splits returns the interior range map, consumed by the split-repair
// engine to translate per-disk offsets.
func (v *View) Splits() []Range {
	out := make([]Range, len(v.pieces))
	for i, p := range v.pieces {
		out[i] = p.rng
	}
	return out
}

// Seek implements io.Seeker. Seeking past Len() is legal; reads there
// return 0 bytes, mirroring POSIX sparse-file semantics, which the
// copy-on-write overlay relies on.
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = v.offset + offset
	case io.SeekEnd:
		abs = v.size + offset
	default:
		return 0, fmt.Errorf("joinedview: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("joinedview: negative seek result %d", abs)
	}
	v.offset = abs
	return v.offset, nil
}

// pieceIndexFor returns the index of the piece containing offset, or -1
// if offset is at or past the end of the joined stream.
func (v *View) pieceIndexFor(offset int64) int {
	for i, p := range v.pieces {
		if offset >= p.rng.Start && offset < p.rng.End {
			return i
		}
	}
	return -1
}

// Read implements io.Reader. One call touches exactly one underlying
// piece and returns at most (piece_end - current_offset) bytes; crossing
// a piece boundary requires a follow-up call, so callers must be
// short-read tolerant (io.ReadFull or equivalent).
func (v *View) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if v.offset >= v.size {
		return 0, io.EOF
	}

	idx := v.pieceIndexFor(v.offset)
	if idx < 0 {
		return 0, io.EOF
	}
	pc := v.pieces[idx]

	if err := v.ensureOpen(idx); err != nil {
		return 0, err
	}

	within := v.offset - pc.rng.Start
	remaining := pc.rng.Len() - within
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}

	n, err := v.openFile.ReadAt(p[:want], within)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("joinedview: read piece %s: %w", pc.path, err)
	}
	if err == io.EOF && int64(n) < want {
		return n, fmt.Errorf("joinedview: unexpected EOF in piece %s at offset %d", pc.path, within)
	}
	v.offset += int64(n)
	return n, nil
}

// ensureOpen lazily opens the piece at idx, closing and replacing any
// previously-open piece. At most one handle is held at a time.
func (v *View) ensureOpen(idx int) error {
	if v.openIndex == idx && v.openFile != nil {
		return nil
	}
	if v.openFile != nil {
		v.openFile.Close()
		v.openFile = nil
		v.openIndex = -1
	}
	f, err := os.Open(v.pieces[idx].path)
	if err != nil {
		return fmt.Errorf("joinedview: open piece %s: %w", v.pieces[idx].path, err)
	}
	v.openFile = f
	v.openIndex = idx
	return nil
}

// Close releases the currently-held file handle, if any.
func (v *View) Close() error {
	if v.openFile != nil {
		err := v.openFile.Close()
		v.openFile = nil
		v.openIndex = -1
		return err
	}
	return nil
}

// ReadToEnd seeks to the start and reads the entire joined stream up to
// Len(), for round-trip testing against plain concatenation.
func ReadToEnd(v *View) ([]byte, error) {
	if _, err := v.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	out := make([]byte, 0, v.Len())
	buf := make([]byte, 64*1024)
	for {
		n, err := v.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
