package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	units "github.com/docker/go-units"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// TerminalSink renders two aggregate mpb bars — download and post-process —
// for an interactive terminal. Byte counts are accumulated with atomics
// since multiple pipeline workers report to the same Sink concurrently.
type TerminalSink struct {
	progress *mpb.Progress
	download *mpb.Bar
	postProc *mpb.Bar

	downloadCurrent int64
	postProcCurrent int64
}

// NewTerminalSink starts an mpb renderer writing to stderr.
func NewTerminalSink() *TerminalSink {
	p := mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(time.Duration(250)*time.Millisecond),
		mpb.WithWidth(80),
	)
	return &TerminalSink{progress: p}
}

// IsTerminal reports whether stderr is attached to an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (s *TerminalSink) SeedTotals(totalDownload, totalPostProcess, alreadyDownloaded, alreadyPostProcessed int64) {
	atomic.StoreInt64(&s.downloadCurrent, alreadyDownloaded)
	atomic.StoreInt64(&s.postProcCurrent, alreadyPostProcessed)

	barStyle := mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]")

	s.download = s.progress.New(totalDownload, barStyle,
		mpb.PrependDecorators(decor.Name("download    ", decor.WCSyncSpaceR)),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			decor.Name("  ETA "),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	s.download.SetCurrent(alreadyDownloaded)

	s.postProc = s.progress.New(totalPostProcess, barStyle,
		mpb.PrependDecorators(decor.Name("post-process", decor.WCSyncSpaceR)),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
		),
	)
	s.postProc.SetCurrent(alreadyPostProcessed)
}

func (s *TerminalSink) Download(n int64) {
	cur := atomic.AddInt64(&s.downloadCurrent, n)
	if s.download != nil {
		s.download.SetCurrent(cur)
	}
}

func (s *TerminalSink) PostProcess(n int64) {
	cur := atomic.AddInt64(&s.postProcCurrent, n)
	if s.postProc != nil {
		s.postProc.SetCurrent(cur)
	}
}

func (s *TerminalSink) Close() {
	if s.progress != nil {
		s.progress.Wait()
	}
}

// LinePrinterSink is the non-interactive fallback: it prints occasional
// humanized totals instead of redrawing a bar, matching the teacher's
// non-TTY behavior in downloadui.go.
type LinePrinterSink struct {
	out io.Writer

	totalDownload    int64
	totalPostProcess int64
	downloadCurrent  int64
	postProcCurrent  int64
	lastPrint        time.Time
	mu               sync.Mutex // guards lastPrint
}

// NewLinePrinterSink prints to the given writer (normally os.Stdout).
func NewLinePrinterSink(out io.Writer) *LinePrinterSink {
	return &LinePrinterSink{out: out}
}

func (s *LinePrinterSink) SeedTotals(totalDownload, totalPostProcess, alreadyDownloaded, alreadyPostProcessed int64) {
	s.totalDownload = totalDownload
	s.totalPostProcess = totalPostProcess
	atomic.StoreInt64(&s.downloadCurrent, alreadyDownloaded)
	atomic.StoreInt64(&s.postProcCurrent, alreadyPostProcessed)
	fmt.Fprintf(s.out, "downloading %s, post-processing %s\n",
		units.BytesSize(float64(totalDownload)), units.BytesSize(float64(totalPostProcess)))
}

func (s *LinePrinterSink) Download(n int64) {
	cur := atomic.AddInt64(&s.downloadCurrent, n)
	s.maybePrint(cur, atomic.LoadInt64(&s.postProcCurrent))
}

func (s *LinePrinterSink) PostProcess(n int64) {
	pp := atomic.AddInt64(&s.postProcCurrent, n)
	s.maybePrint(atomic.LoadInt64(&s.downloadCurrent), pp)
}

func (s *LinePrinterSink) maybePrint(download, postProcess int64) {
	now := time.Now()
	s.mu.Lock()
	if now.Sub(s.lastPrint) < time.Second {
		s.mu.Unlock()
		return
	}
	s.lastPrint = now
	s.mu.Unlock()
	fmt.Fprintf(s.out, "download %s/%s  post-process %s/%s\n",
		units.BytesSize(float64(download)), units.BytesSize(float64(s.totalDownload)),
		units.BytesSize(float64(postProcess)), units.BytesSize(float64(s.totalPostProcess)))
}

func (s *LinePrinterSink) Close() {}

// NewDefault picks TerminalSink when stderr is a TTY, LinePrinterSink otherwise.
func NewDefault() Sink {
	if IsTerminal() {
		return NewTerminalSink()
	}
	return NewLinePrinterSink(os.Stdout)
}
