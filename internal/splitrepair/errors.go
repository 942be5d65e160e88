package splitrepair

import "fmt"

// InvalidSplitMagicError marks a stream whose first four bytes are
// neither a local-file-header nor a split-archive marker.
type InvalidSplitMagicError struct {
	Got [4]byte
}

func (e *InvalidSplitMagicError) Error() string {
	return fmt.Sprintf("splitrepair: invalid split magic % x", e.Got)
}

// EOCDNotFoundError means no end-of-central-directory record was found
// within the trailing search window.
type EOCDNotFoundError struct {
	SearchedBytes int64
}

func (e *EOCDNotFoundError) Error() string {
	return fmt.Sprintf("splitrepair: end-of-central-directory record not found in trailing %d bytes", e.SearchedBytes)
}

// TruncatedCDEntryError means a central directory entry's fixed header
// or variable-length fields ran past the end of the read central
// directory bytes.
type TruncatedCDEntryError struct {
	EntryIndex int
}

func (e *TruncatedCDEntryError) Error() string {
	return fmt.Sprintf("splitrepair: truncated central directory entry %d", e.EntryIndex)
}

// BadCDMagicError means a central directory entry (or the ZIP64 EOCD)
// did not start with its expected magic.
type BadCDMagicError struct {
	Offset int64
	Got    [4]byte
}

func (e *BadCDMagicError) Error() string {
	return fmt.Sprintf("splitrepair: bad central directory magic % x at offset %d", e.Got, e.Offset)
}

// TruncatedExtraFieldError means an entry's extra-field TLV stream
// claimed a length that ran past the entry's declared extra field size.
type TruncatedExtraFieldError struct {
	EntryIndex int
}

func (e *TruncatedExtraFieldError) Error() string {
	return fmt.Sprintf("splitrepair: truncated extra field in central directory entry %d", e.EntryIndex)
}

// DiskOutOfRangeError means an entry (or the EOCD/locator) referenced a
// disk number beyond the supplied disk_ranges.
type DiskOutOfRangeError struct {
	Disk      int
	DiskCount int
}

func (e *DiskOutOfRangeError) Error() string {
	return fmt.Sprintf("splitrepair: disk %d out of range (have %d disks)", e.Disk, e.DiskCount)
}

// OffsetOverflowError means translating a disk-relative offset to a
// file-absolute one overflowed.
type OffsetOverflowError struct {
	DiskStart   int64
	DiskOffset  uint64
}

func (e *OffsetOverflowError) Error() string {
	return fmt.Sprintf("splitrepair: offset overflow translating disk start %d + offset %d", e.DiskStart, e.DiskOffset)
}

// TrailingCDBytesError means bytes remained after the last declared
// central directory entry was consumed.
type TrailingCDBytesError struct {
	Remaining int
}

func (e *TrailingCDBytesError) Error() string {
	return fmt.Sprintf("splitrepair: %d trailing bytes after last central directory entry", e.Remaining)
}
