package orchestrator

import "fmt"

// InterruptedError marks a cooperative shutdown: the caller's context was
// cancelled mid-run. On-disk state is left resumable — rerunning the same
// command continues from where this left off.
type InterruptedError struct{}

func (e *InterruptedError) Error() string { return "interrupted: rerun to resume" }

// CRCMismatchError reports a payload whose computed CRC-32 disagrees with
// the manifest's FileSpec.CRC32. Fatal for that artifact; the verify/
// extract file is left in place, never renamed to the final name.
type CRCMismatchError struct {
	Path string
	Want uint32
	Got  uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("%s: crc32 mismatch: want %08x got %08x", e.Path, e.Want, e.Got)
}

// ShortJoinedViewError means the joined piece files don't add up to the
// manifest's reported zip_total_size — a piece is missing or truncated.
type ShortJoinedViewError struct {
	Name string
	Want uint64
	Got  int64
}

func (e *ShortJoinedViewError) Error() string {
	return fmt.Sprintf("%s: joined pieces total %d bytes, manifest expects %d", e.Name, e.Got, e.Want)
}

// UnexpectedEntryCountError means the repaired archive didn't contain
// exactly one entry.
type UnexpectedEntryCountError struct {
	Name string
	Got  int
}

func (e *UnexpectedEntryCountError) Error() string {
	return fmt.Sprintf("%s: repaired archive has %d entries, want 1", e.Name, e.Got)
}

// EntryNameMismatchError means the repaired archive's single entry isn't
// named the way the manifest says it should be.
type EntryNameMismatchError struct {
	Want string
	Got  string
}

func (e *EntryNameMismatchError) Error() string {
	return fmt.Sprintf("archive entry %q, want %q", e.Got, e.Want)
}
