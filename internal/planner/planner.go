// Package planner performs the pre-flight walk of the output directory
// that classifies every expected artifact as complete, partially
// downloaded, or absent, and emits an ordered work list. It is a pure
// function of on-disk state and the manifest: it never creates files,
// only inspects and classifies.
package planner

import (
	"fmt"

	"github.com/rescale-labs/carfw/internal/constants"
	"github.com/rescale-labs/carfw/internal/models"
	"github.com/rescale-labs/carfw/internal/outputdir"
)

// Plan walks dir (via the capability handle) against manifest and
// returns the resulting WorkPlan.
func Plan(dir *outputdir.Handle, manifest models.FirmwareManifest) (models.WorkPlan, error) {
	plan := models.WorkPlan{
		RemainingDownloadCountPerFile: make([]int, len(manifest.Files)),
	}

	for fileIndex, file := range manifest.Files {
		if err := planFile(dir, fileIndex, file, &plan); err != nil {
			return models.WorkPlan{}, fmt.Errorf("planner: file %d (%s): %w", fileIndex, file.Name, err)
		}
	}
	return plan, nil
}

func planFile(dir *outputdir.Handle, fileIndex int, file models.FileSpec, plan *models.WorkPlan) error {
	// Step 1: a directory the manifest expects but that doesn't exist
	// yet means nothing has been touched; every piece starts fresh.
	if file.Directory != "" && !dir.Exists(file.Directory) {
		count := file.DownloadCount()
		plan.RemainingDownloadCountPerFile[fileIndex] = count
		for piece := 0; piece < count; piece++ {
			plan.DownloadQueue = append(plan.DownloadQueue, models.DownloadTask{
				FileIndex:   fileIndex,
				PieceIndex:  piece,
				StartOffset: 0,
			})
		}
		return nil
	}

	// Step 2: the final artifact already exists; this file is done.
	finalRel := file.FinalRelPath()
	if dir.Exists(finalRel) {
		plan.BytesAlreadyDownloaded += int64(file.DownloadBytesTotal())
		plan.BytesAlreadyPostProcessed += int64(file.Size)
		if file.IsSplit() {
			plan.PostProcessQueue = append(plan.PostProcessQueue, models.PostProcessTask{
				FileIndex: fileIndex,
				CleanOnly: true,
			})
		}
		return nil
	}

	// Step 3: classify each piece.
	count := file.DownloadCount()
	newDownloads := 0
	for piece := 0; piece < count; piece++ {
		pieceRel, err := file.PieceRelPath(piece)
		if err != nil {
			return err
		}

		if info, err := dir.Stat(pieceRel); err == nil {
			// A finished split piece (or, for non-split, the final file
			// itself — but that case is already handled by step 2).
			plan.BytesAlreadyDownloaded += info.Size()
			continue
		}

		if !file.IsSplit() {
			verifyRel := pieceRel + constants.VerifyExt
			if info, err := dir.Stat(verifyRel); err == nil {
				plan.BytesAlreadyDownloaded += info.Size()
				continue
			}
		}

		var startOffset int64
		dlRel := pieceRel + constants.DownloadExt
		if info, err := dir.Stat(dlRel); err == nil {
			startOffset = info.Size()
			plan.BytesAlreadyDownloaded += startOffset
		}

		plan.DownloadQueue = append(plan.DownloadQueue, models.DownloadTask{
			FileIndex:   fileIndex,
			PieceIndex:  piece,
			StartOffset: startOffset,
		})
		newDownloads++
	}

	plan.RemainingDownloadCountPerFile[fileIndex] = newDownloads

	// Step 4: everything for this file was already on disk; go straight
	// to post-processing.
	if newDownloads == 0 {
		plan.PostProcessQueue = append(plan.PostProcessQueue, models.PostProcessTask{
			FileIndex: fileIndex,
			CleanOnly: false,
		})
	}

	return nil
}
