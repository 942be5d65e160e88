package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rescale-labs/carfw/internal/api"
	"github.com/rescale-labs/carfw/internal/constants"
	"github.com/rescale-labs/carfw/internal/models"
	"github.com/rescale-labs/carfw/internal/util/buffers"
)

// runDownload performs one DownloadTask: open the piece's temp file,
// retry the ranged GET up to Retries+1 times, and rename to the piece's
// resting name on success.
func (o *Orchestrator) runDownload(ctx context.Context, task models.DownloadTask) error {
	file := o.cfg.Manifest.Files[task.FileIndex]
	pieceRel, err := file.PieceRelPath(task.PieceIndex)
	if err != nil {
		return err
	}
	dlRel := pieceRel + constants.DownloadExt

	f, err := openForAppend(o.cfg.Dir, dlRel)
	if err != nil {
		return fmt.Errorf("open %s: %w", dlRel, err)
	}
	defer f.Close()

	pos := task.StartOffset
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", dlRel, err)
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retries; attempt++ {
		if err := checkCtx(ctx); err != nil {
			return err
		}

		body, err := o.cfg.Client.Download(ctx, o.cfg.Manifest, file, task.PieceIndex, pos)
		if err != nil {
			var already *api.AlreadyCompleteError
			if errors.As(err, &already) {
				lastErr = nil
				break
			}
			lastErr = err
			o.cfg.Logger.Warn().Err(err).Str("piece", pieceRel).Int("attempt", attempt).Msg("download attempt failed")
			if sleepErr := sleepOrInterrupt(ctx, constants.RetryDelay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		err = o.streamDownloadBody(ctx, f, body, &pos)
		body.Close()
		if err != nil {
			lastErr = err
			o.cfg.Logger.Warn().Err(err).Str("piece", pieceRel).Int("attempt", attempt).Msg("download attempt failed")
			var interrupted *InterruptedError
			if errors.As(err, &interrupted) {
				return err
			}
			if sleepErr := sleepOrInterrupt(ctx, constants.RetryDelay); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fmt.Errorf("download %s: %w", pieceRel, lastErr)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", dlRel, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dlRel, err)
	}

	finalRel := pieceRel
	if !file.IsSplit() {
		finalRel = pieceRel + constants.VerifyExt
	}
	if err := o.cfg.Dir.Rename(dlRel, finalRel); err != nil {
		return fmt.Errorf("rename %s to %s: %w", dlRel, finalRel, err)
	}
	return nil
}

// streamDownloadBody copies body into f, advancing *pos and reporting
// each chunk to the progress sink.
func (o *Orchestrator) streamDownloadBody(ctx context.Context, f fileWriter, body io.Reader, pos *int64) error {
	buf := buffers.GetDownloadBuffer()
	defer buffers.PutDownloadBuffer(buf)

	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		n, readErr := body.Read(*buf)
		if n > 0 {
			if _, werr := f.Write((*buf)[:n]); werr != nil {
				return fmt.Errorf("write chunk: %w", werr)
			}
			*pos += int64(n)
			o.cfg.Sink.Download(int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}
	}
}

// fileWriter is the minimal capability streamDownloadBody needs; *os.File
// satisfies it.
type fileWriter interface {
	Write(p []byte) (int, error)
}
