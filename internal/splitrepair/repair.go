// Package splitrepair rewrites the offsets and disk numbers inside a
// naively concatenated multi-volume ZIP (legacy and ZIP64) so that
// conventional ZIP tooling can read it as a single-disk archive.
package splitrepair

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rescale-labs/carfw/internal/constants"
)

// Stream is the random-access read/write byte sink repair operates on.
// cowoverlay.Overlay satisfies this, letting repair patch bytes without
// mutating the underlying split files.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Range is a half-open byte range within the concatenated stream,
// corresponding to one original disk.
type Range struct {
	Start int64
	End   int64
}

const (
	localFileHeaderLen = 30
	eocdLen            = 22
	zip64LocatorLen    = 20
	zip64EOCDLen       = 56
	cdEntryFixedLen    = 46

	eocdMaxComment = 0xFFFF
)

// Repair patches stream in place so it reads back as a valid, unsplit,
// locally-addressed ZIP. diskRanges partitions the stream into the byte
// ranges of its original disks, in order.
func Repair(stream Stream, diskRanges []Range) error {
	if len(diskRanges) == 0 {
		return fmt.Errorf("splitrepair: disk_ranges must be non-empty")
	}

	alreadySingle, err := checkAndClearMagic(stream)
	if err != nil {
		return err
	}
	if alreadySingle {
		return nil
	}

	fileSize, err := streamSize(stream)
	if err != nil {
		return fmt.Errorf("splitrepair: determine stream size: %w", err)
	}

	eocdOffset, eocd, err := findEOCD(stream, fileSize)
	if err != nil {
		return err
	}

	cdDisk := int(binary.LittleEndian.Uint16(eocd[6:8]))
	cdEntries := binary.LittleEndian.Uint16(eocd[10:12])
	cdSize := uint64(binary.LittleEndian.Uint32(eocd[12:16]))
	cdDiskOffset := uint64(binary.LittleEndian.Uint32(eocd[16:20]))

	cdAbsOffset, err := translateOffset(diskRanges, cdDisk, cdDiskOffset)
	if err != nil {
		return err
	}

	// Zero disk fields, mark all entries on "this disk", clamp the
	// file-absolute CD offset into the u32 slot (saturating to flag
	// ZIP64 if it overflows).
	binary.LittleEndian.PutUint16(eocd[4:6], 0)
	binary.LittleEndian.PutUint16(eocd[6:8], 0)
	binary.LittleEndian.PutUint16(eocd[8:10], cdEntries)
	binary.LittleEndian.PutUint32(eocd[16:20], saturateU32(uint64(cdAbsOffset)))
	if err := writeAt(stream, eocdOffset, eocd); err != nil {
		return fmt.Errorf("splitrepair: write eocd: %w", err)
	}

	totalEntries := uint64(cdEntries)
	cdAbsOffsetU64 := uint64(cdAbsOffset)
	cdSizeU64 := cdSize

	// ZIP64 locator, if present, sits in the 20 bytes immediately
	// preceding the EOCD.
	if eocdOffset >= int64(zip64LocatorLen) {
		locatorOffset := eocdOffset - int64(zip64LocatorLen)
		locator, err := readAt(stream, locatorOffset, zip64LocatorLen)
		if err == nil && matchesMagic(locator[0:4], constants.Zip64LocatorMagic) {
			locDisk := int(binary.LittleEndian.Uint32(locator[4:8]))
			locOffset := binary.LittleEndian.Uint64(locator[8:16])

			zip64EOCDAbs, err := translateOffset(diskRanges, locDisk, locOffset)
			if err != nil {
				return err
			}

			binary.LittleEndian.PutUint32(locator[4:8], 0)
			binary.LittleEndian.PutUint64(locator[8:16], uint64(zip64EOCDAbs))
			binary.LittleEndian.PutUint32(locator[16:20], 1)
			if err := writeAt(stream, locatorOffset, locator); err != nil {
				return fmt.Errorf("splitrepair: write zip64 locator: %w", err)
			}

			z64, err := readAt(stream, zip64EOCDAbs, zip64EOCDLen)
			if err != nil {
				return fmt.Errorf("splitrepair: read zip64 eocd: %w", err)
			}
			if !matchesMagic(z64[0:4], constants.Zip64EOCDMagic) {
				return &BadCDMagicError{Offset: zip64EOCDAbs, Got: [4]byte{z64[0], z64[1], z64[2], z64[3]}}
			}

			z64Disk := int(binary.LittleEndian.Uint32(z64[16:20]))
			z64CDDiskStart := int(binary.LittleEndian.Uint32(z64[20:24]))
			z64CDEntriesTotal := binary.LittleEndian.Uint64(z64[32:40])
			z64CDSize := binary.LittleEndian.Uint64(z64[40:48])
			z64CDOffset := binary.LittleEndian.Uint64(z64[48:56])

			z64CDAbs, err := translateOffset(diskRanges, z64CDDiskStart, z64CDOffset)
			if err != nil {
				return err
			}

			binary.LittleEndian.PutUint32(z64[16:20], 0)
			binary.LittleEndian.PutUint32(z64[20:24], 0)
			binary.LittleEndian.PutUint64(z64[48:56], uint64(z64CDAbs))
			if err := writeAt(stream, zip64EOCDAbs, z64); err != nil {
				return fmt.Errorf("splitrepair: write zip64 eocd: %w", err)
			}

			_ = z64Disk // disk-of-this-record field, not independently meaningful post-merge
			totalEntries = z64CDEntriesTotal
			cdAbsOffsetU64 = uint64(z64CDAbs)
			cdSizeU64 = z64CDSize
		}
	}

	if err := patchCentralDirectory(stream, diskRanges, int64(cdAbsOffsetU64), cdSizeU64, totalEntries); err != nil {
		return err
	}

	return nil
}

// checkAndClearMagic reads the first 4 bytes. A local-file-header magic
// means the stream is already a single-disk ZIP (alreadySingle=true). A
// split-archive marker is overwritten with zeros and repair continues.
// Any other magic is fatal.
func checkAndClearMagic(stream Stream) (alreadySingle bool, err error) {
	magic, err := readAt(stream, 0, 4)
	if err != nil {
		return false, fmt.Errorf("splitrepair: read magic: %w", err)
	}
	var m [4]byte
	copy(m[:], magic)
	switch {
	case matchesMagic(magic, constants.LocalFileHeaderMagic):
		return true, nil
	case matchesMagic(magic, constants.SplitArchiveMarkerMagic):
		if err := writeAt(stream, 0, []byte{0, 0, 0, 0}); err != nil {
			return false, fmt.Errorf("splitrepair: clear split marker: %w", err)
		}
		return false, nil
	default:
		return false, &InvalidSplitMagicError{Got: m}
	}
}

// findEOCD scans the trailing min(fileSize, 65535+22+20) bytes for the
// EOCD magic, preferring the rightmost match (a comment field could
// coincidentally contain the signature bytes earlier in the window).
func findEOCD(stream Stream, fileSize int64) (offset int64, record []byte, err error) {
	searchLen := int64(eocdMaxComment + eocdLen + zip64LocatorLen)
	if fileSize < searchLen {
		searchLen = fileSize
	}
	startOffset := fileSize - searchLen
	buf, err := readAt(stream, startOffset, int(searchLen))
	if err != nil {
		return 0, nil, fmt.Errorf("splitrepair: read eocd search window: %w", err)
	}

	for i := len(buf) - eocdLen; i >= 0; i-- {
		if matchesMagic(buf[i:i+4], constants.EOCDMagic) {
			rec := make([]byte, eocdLen)
			copy(rec, buf[i:i+eocdLen])
			return startOffset + int64(i), rec, nil
		}
	}
	return 0, nil, &EOCDNotFoundError{SearchedBytes: searchLen}
}

// patchCentralDirectory reads the full central directory into memory,
// walks it entry by entry translating local-header offsets, and writes
// the patched bytes back at their (unchanged) absolute offset.
func patchCentralDirectory(stream Stream, diskRanges []Range, cdOffset int64, cdSize uint64, totalEntries uint64) error {
	cd, err := readAt(stream, cdOffset, int(cdSize))
	if err != nil {
		return fmt.Errorf("splitrepair: read central directory: %w", err)
	}

	pos := 0
	for entryIndex := uint64(0); entryIndex < totalEntries; entryIndex++ {
		if pos+cdEntryFixedLen > len(cd) {
			return &TruncatedCDEntryError{EntryIndex: int(entryIndex)}
		}
		entry := cd[pos : pos+cdEntryFixedLen]
		if !matchesMagic(entry[0:4], constants.CentralDirMagic) {
			var got [4]byte
			copy(got[:], entry[0:4])
			return &BadCDMagicError{Offset: cdOffset + int64(pos), Got: got}
		}

		nameLen := int(binary.LittleEndian.Uint16(entry[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(entry[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(entry[32:34]))
		entryTotal := cdEntryFixedLen + nameLen + extraLen + commentLen
		if pos+entryTotal > len(cd) {
			return &TruncatedCDEntryError{EntryIndex: int(entryIndex)}
		}

		disk := binary.LittleEndian.Uint16(entry[34:36])
		if disk != 0xFFFF {
			localOffset := uint64(binary.LittleEndian.Uint32(entry[42:46]))
			abs, err := translateOffset(diskRanges, int(disk), localOffset)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(entry[42:46], saturateU32(uint64(abs)))
			binary.LittleEndian.PutUint16(entry[34:36], 0)
		}

		extraStart := pos + cdEntryFixedLen + nameLen
		extra := cd[extraStart : extraStart+extraLen]
		if err := patchZip64Extra(extra, diskRanges, int(entryIndex)); err != nil {
			return err
		}

		pos += entryTotal
	}

	if pos != len(cd) {
		return &TrailingCDBytesError{Remaining: len(cd) - pos}
	}

	if err := writeAt(stream, cdOffset, cd); err != nil {
		return fmt.Errorf("splitrepair: write patched central directory: %w", err)
	}
	return nil
}

// patchZip64Extra walks one entry's extra-field TLV stream and, for any
// tag-0x0001 (ZIP64 extended information) block of length >= 28 (all
// four optional subfields present: original size, compressed size,
// local header offset, disk start number), translates the embedded
// local-header offset and zeros the disk number.
func patchZip64Extra(extra []byte, diskRanges []Range, entryIndex int) error {
	pos := 0
	for pos+4 <= len(extra) {
		tag := binary.LittleEndian.Uint16(extra[pos : pos+2])
		size := int(binary.LittleEndian.Uint16(extra[pos+2 : pos+4]))
		if pos+4+size > len(extra) {
			return &TruncatedExtraFieldError{EntryIndex: entryIndex}
		}
		data := extra[pos+4 : pos+4+size]
		if tag == 0x0001 && size >= 28 {
			localOffset := binary.LittleEndian.Uint64(data[16:24])
			diskStart := binary.LittleEndian.Uint32(data[24:28])
			abs, err := translateOffset(diskRanges, int(diskStart), localOffset)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint64(data[16:24], uint64(abs))
			binary.LittleEndian.PutUint32(data[24:28], 0)
		}
		pos += 4 + size
	}
	if pos != len(extra) {
		return &TruncatedExtraFieldError{EntryIndex: entryIndex}
	}
	return nil
}

// translateOffset converts a disk-relative offset into a file-absolute
// offset within the concatenated stream.
func translateOffset(diskRanges []Range, disk int, diskOffset uint64) (int64, error) {
	if disk < 0 || disk >= len(diskRanges) {
		return 0, &DiskOutOfRangeError{Disk: disk, DiskCount: len(diskRanges)}
	}
	start := diskRanges[disk].Start
	abs := start + int64(diskOffset)
	if abs < start {
		return 0, &OffsetOverflowError{DiskStart: start, DiskOffset: diskOffset}
	}
	return abs, nil
}

// saturateU32 clamps v into a u32 slot, saturating at u32::MAX rather
// than wrapping, to mark "consult ZIP64 for the true value" downstream.
func saturateU32(v uint64) uint32 {
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(v)
}

func matchesMagic(got []byte, want [4]byte) bool {
	return len(got) == 4 && got[0] == want[0] && got[1] == want[1] && got[2] == want[2] && got[3] == want[3]
}

func streamSize(stream Stream) (int64, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return size, nil
}

func readAt(stream Stream, offset int64, n int) ([]byte, error) {
	if _, err := stream.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeAt(stream Stream, offset int64, data []byte) error {
	if _, err := stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := stream.Write(data)
	return err
}
