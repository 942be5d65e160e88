package orchestrator

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/rescale-labs/carfw/internal/constants"
	"github.com/rescale-labs/carfw/internal/cowoverlay"
	"github.com/rescale-labs/carfw/internal/joinedview"
	"github.com/rescale-labs/carfw/internal/models"
	"github.com/rescale-labs/carfw/internal/splitrepair"
	"github.com/rescale-labs/carfw/internal/util/buffers"
)

// runPostProcess performs one PostProcessTask: CRC-verify-and-rename for a
// non-split file, or join/repair/extract (unless CleanOnly) followed by
// piece cleanup for a split one.
func (o *Orchestrator) runPostProcess(ctx context.Context, task models.PostProcessTask) error {
	file := o.cfg.Manifest.Files[task.FileIndex]
	if !file.IsSplit() {
		return o.postProcessSingle(ctx, file)
	}
	return o.postProcessSplit(ctx, file, task)
}

// postProcessSingle CRC-verifies the pending single-file download and,
// on a match, renames it to its final name.
func (o *Orchestrator) postProcessSingle(ctx context.Context, file models.FileSpec) error {
	verifyRel := file.FinalRelPath() + constants.VerifyExt
	f, err := o.cfg.Dir.Open(verifyRel)
	if err != nil {
		return fmt.Errorf("open %s: %w", verifyRel, err)
	}
	defer f.Close()

	hasher := crc32.NewIEEE()
	buf := buffers.GetCRCBuffer()
	defer buffers.PutCRCBuffer(buf)

	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		n, readErr := f.Read(*buf)
		if n > 0 {
			hasher.Write((*buf)[:n])
			o.cfg.Sink.PostProcess(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w", verifyRel, readErr)
		}
	}

	if got := hasher.Sum32(); got != file.CRC32 {
		return &CRCMismatchError{Path: verifyRel, Want: file.CRC32, Got: got}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", verifyRel, err)
	}
	if err := o.cfg.Dir.Rename(verifyRel, file.FinalRelPath()); err != nil {
		return fmt.Errorf("rename %s: %w", verifyRel, err)
	}
	return nil
}

// postProcessSplit joins, repairs, and extracts a split archive's single
// entry (unless task.CleanOnly, where the final artifact already exists),
// then sweeps the piece files unless KeepRaw is set.
func (o *Orchestrator) postProcessSplit(ctx context.Context, file models.FileSpec, task models.PostProcessTask) error {
	if !task.CleanOnly {
		if err := o.extractSplit(ctx, file); err != nil {
			return err
		}
	}
	if o.cfg.KeepRaw {
		return nil
	}
	return o.cleanupPieces(file)
}

func (o *Orchestrator) extractSplit(ctx context.Context, file models.FileSpec) error {
	view := joinedview.New()
	for piece := 0; piece < file.ZipCount; piece++ {
		rel, err := file.PieceRelPath(piece)
		if err != nil {
			return err
		}
		if err := view.Add(o.cfg.Dir.Path(), rel); err != nil {
			return err
		}
	}
	defer view.Close()

	if uint64(view.Len()) != file.ZipTotalSize {
		return &ShortJoinedViewError{Name: file.Name, Want: file.ZipTotalSize, Got: view.Len()}
	}

	overlay := cowoverlay.New(view, view.Len())

	// The first disk's real content starts 4 bytes into its piece file:
	// a genuinely multi-piece archive carries the PK\x07\x08 split marker
	// as the leading 4 bytes of piece 0, ahead of its first local file
	// header, so local offsets recorded against "disk 0" are relative to
	// that point, not the piece file's own byte 0.
	viewSplits := view.Splits()
	diskRanges := make([]splitrepair.Range, len(viewSplits))
	for i, r := range viewSplits {
		diskRanges[i] = splitrepair.Range{Start: r.Start, End: r.End}
	}
	if len(diskRanges) > 1 {
		diskRanges[0].Start += 4
	}
	if err := splitrepair.Repair(overlay, diskRanges); err != nil {
		return fmt.Errorf("repair %s: %w", file.Name, err)
	}

	if _, err := overlay.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind repaired archive %s: %w", file.Name, err)
	}

	zr, err := zip.NewReader(&seekerReaderAt{overlay}, overlay.Size())
	if err != nil {
		return fmt.Errorf("open repaired archive %s: %w", file.Name, err)
	}
	if len(zr.File) != 1 {
		return &UnexpectedEntryCountError{Name: file.Name, Got: len(zr.File)}
	}
	entry := zr.File[0]
	if entry.Name != file.Name {
		return &EntryNameMismatchError{Want: file.Name, Got: entry.Name}
	}
	if entry.CRC32 != file.CRC32 {
		return &CRCMismatchError{Path: file.Name, Want: file.CRC32, Got: entry.CRC32}
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	extractRel := file.FinalRelPath() + constants.ExtractExt
	out, err := o.cfg.Dir.Create(extractRel)
	if err != nil {
		return fmt.Errorf("create %s: %w", extractRel, err)
	}
	defer out.Close()

	buf := buffers.GetDownloadBuffer()
	defer buffers.PutDownloadBuffer(buf)
	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		n, readErr := rc.Read(*buf)
		if n > 0 {
			if _, werr := out.Write((*buf)[:n]); werr != nil {
				return fmt.Errorf("write %s: %w", extractRel, werr)
			}
			o.cfg.Sink.PostProcess(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if errors.Is(readErr, zip.ErrChecksum) {
				return &CRCMismatchError{Path: file.Name, Want: file.CRC32, Got: entry.CRC32}
			}
			return fmt.Errorf("read archive entry %s: %w", entry.Name, readErr)
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", extractRel, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", extractRel, err)
	}
	if err := o.cfg.Dir.Rename(extractRel, file.FinalRelPath()); err != nil {
		return fmt.Errorf("rename %s: %w", extractRel, err)
	}
	return nil
}

// cleanupPieces removes every piece file for a split FileSpec, except one
// whose piece name coincides with the final artifact's name (the
// Standard naming scheme reuses the final ".zip" name for its last
// piece, and by the time cleanup runs that path holds the extracted
// output, not raw piece bytes).
func (o *Orchestrator) cleanupPieces(file models.FileSpec) error {
	finalRel := file.FinalRelPath()
	for piece := 0; piece < file.ZipCount; piece++ {
		rel, err := file.PieceRelPath(piece)
		if err != nil {
			return err
		}
		if rel == finalRel {
			continue
		}
		if err := o.cfg.Dir.Remove(rel); err != nil {
			return fmt.Errorf("remove piece %s: %w", rel, err)
		}
	}
	return nil
}

// seekerReaderAt adapts a Read+Seek stream to io.ReaderAt for
// archive/zip.NewReader, which needs random access but is only ever
// driven from this single goroutine.
type seekerReaderAt struct {
	rs interface {
		io.Reader
		io.Seeker
	}
}

func (s *seekerReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.rs, p)
}
