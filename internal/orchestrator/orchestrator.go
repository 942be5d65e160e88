// Package orchestrator drives one firmware-download run end to end: stamp
// the version manifest, plan the work against the output directory, then
// pump a two-stage download/post-process pipeline bounded by a
// user-configured concurrency limit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rescale-labs/carfw/internal/constants"
	"github.com/rescale-labs/carfw/internal/diskspace"
	"github.com/rescale-labs/carfw/internal/logging"
	"github.com/rescale-labs/carfw/internal/models"
	"github.com/rescale-labs/carfw/internal/outputdir"
	"github.com/rescale-labs/carfw/internal/planner"
	"github.com/rescale-labs/carfw/internal/progress"
	"github.com/rescale-labs/carfw/internal/versionstamp"
)

// Downloader is the subset of api.Client the Orchestrator needs. Accepting
// the interface rather than *api.Client lets tests substitute a fake.
type Downloader interface {
	Download(ctx context.Context, manifest models.FirmwareManifest, file models.FileSpec, pieceIndex int, startOffset int64) (io.ReadCloser, error)
}

// Config is everything one Run needs. Zero-value Sink/Logger are replaced
// with no-op/default implementations by New.
type Config struct {
	Dir         *outputdir.Handle
	Client      Downloader
	Car         models.CarInfo
	CarVersion  string
	Manifest    models.FirmwareManifest
	Concurrency int
	Retries     int
	KeepRaw     bool
	Sink        progress.Sink
	Logger      *logging.Logger
}

// Orchestrator runs Config's download against Config.Dir.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator, clamping concurrency into the supported
// range and filling in no-op defaults for an absent Sink/Logger.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency < constants.MinConcurrency {
		cfg.Concurrency = constants.MinConcurrency
	}
	if cfg.Concurrency > constants.MaxConcurrency {
		cfg.Concurrency = constants.MaxConcurrency
	}
	if cfg.Sink == nil {
		cfg.Sink = progress.NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault()
	}
	return &Orchestrator{cfg: cfg}
}

// Run executes the version-stamp, planning, and pipeline steps in order.
// A cancelled ctx unwinds every in-flight task cooperatively and returns
// an *InterruptedError; partial on-disk state is left untouched so a
// subsequent Run with the same Config resumes.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.writeVersionStamp(); err != nil {
		return fmt.Errorf("orchestrator: version stamp: %w", err)
	}

	plan, err := planner.Plan(o.cfg.Dir, o.cfg.Manifest)
	if err != nil {
		return fmt.Errorf("orchestrator: plan: %w", err)
	}

	if err := o.checkDiskSpace(plan); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	o.seedProgress(plan)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dlGroup, _ := errgroup.WithContext(runCtx)
	dlGroup.SetLimit(o.cfg.Concurrency)
	ppGroup, _ := errgroup.WithContext(runCtx)
	ppGroup.SetLimit(o.cfg.Concurrency)

	remaining := make([]int32, len(o.cfg.Manifest.Files))
	for i, n := range plan.RemainingDownloadCountPerFile {
		remaining[i] = int32(n)
	}

	var firstErr error
	var once sync.Once
	recordErr := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	enqueuePostProcess := func(task models.PostProcessTask) {
		ppGroup.Go(func() error {
			if err := o.runPostProcess(runCtx, task); err != nil {
				recordErr(err)
				return err
			}
			return nil
		})
	}

	for _, task := range plan.PostProcessQueue {
		enqueuePostProcess(task)
	}

	for _, task := range plan.DownloadQueue {
		task := task
		dlGroup.Go(func() error {
			if err := o.runDownload(runCtx, task); err != nil {
				recordErr(err)
				return err
			}
			if atomic.AddInt32(&remaining[task.FileIndex], -1) == 0 {
				enqueuePostProcess(models.PostProcessTask{FileIndex: task.FileIndex, CleanOnly: false})
			}
			return nil
		})
	}

	_ = dlGroup.Wait() // errors are captured via recordErr, not the group's own return
	_ = ppGroup.Wait()
	o.cfg.Sink.Close()

	if firstErr != nil {
		var interrupted *InterruptedError
		if errors.As(firstErr, &interrupted) {
			return firstErr
		}
		return fmt.Errorf("orchestrator: %w", firstErr)
	}
	if ctx.Err() != nil {
		return &InterruptedError{}
	}
	return nil
}

func (o *Orchestrator) writeVersionStamp() error {
	body := versionstamp.Render(o.cfg.Manifest, o.cfg.Car, o.cfg.CarVersion)
	rel := o.cfg.Car.ID + constants.VersionStampExt
	f, err := o.cfg.Dir.Create(rel)
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return f.Close()
}

// checkDiskSpace estimates the worst-case footprint the remaining work
// still needs to land on disk — the undownloaded bytes of every piece
// plus the not-yet-post-processed payload size of every file (counted
// for non-split files as well, whose post-process step only renames) —
// and fails fast if the output
// directory's filesystem can't hold it, rather than discovering the
// shortfall partway through a multi-hour download.
func (o *Orchestrator) checkDiskSpace(plan models.WorkPlan) error {
	var totalDownload, totalPostProcess int64
	for _, file := range o.cfg.Manifest.Files {
		totalDownload += int64(file.DownloadBytesTotal())
		totalPostProcess += int64(file.Size)
	}
	remaining := (totalDownload - plan.BytesAlreadyDownloaded) + (totalPostProcess - plan.BytesAlreadyPostProcessed)
	if remaining <= 0 {
		return nil
	}
	// CheckAvailableSpace stats filepath.Dir(targetPath); pass a
	// placeholder child so the directory itself (not its parent, which
	// may be a different mount) is what gets statted.
	probePath := filepath.Join(o.cfg.Dir.Path(), ".carfw-space-probe")
	return diskspace.CheckAvailableSpace(probePath, remaining, constants.DiskSpaceSafetyMargin)
}

func (o *Orchestrator) seedProgress(plan models.WorkPlan) {
	var totalDownload, totalPostProcess int64
	for _, file := range o.cfg.Manifest.Files {
		totalDownload += int64(file.DownloadBytesTotal())
		totalPostProcess += int64(file.Size)
	}
	o.cfg.Sink.SeedTotals(totalDownload, totalPostProcess, plan.BytesAlreadyDownloaded, plan.BytesAlreadyPostProcessed)
}

// checkCtx turns a cancelled context into the distinguished interrupted
// error, so I/O loops that poll it return the same sentinel the rest of
// the pipeline recognizes.
func checkCtx(ctx context.Context) error {
	if ctx.Err() != nil {
		return &InterruptedError{}
	}
	return nil
}

func sleepOrInterrupt(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return &InterruptedError{}
	}
}

// openForAppend opens rel for read+write, creating it if absent, without
// truncating any bytes already written by a prior attempt.
func openForAppend(dir *outputdir.Handle, rel string) (*os.File, error) {
	return dir.OpenFile(rel, os.O_RDWR|os.O_CREATE, 0o644)
}
