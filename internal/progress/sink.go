// Package progress renders Orchestrator progress. The core depends only
// on the Sink interface; this package supplies an interactive mpb-based
// renderer and a plain line-printer fallback for non-terminals.
package progress

// Sink receives progress events from the Orchestrator's two-stage
// pipeline. Implementations must be safe for concurrent use: multiple
// download and post-process tasks report to the same Sink at once.
type Sink interface {
	// SeedTotals is called once, in order, before any Download/PostProcess
	// delta: total download bytes, total post-process bytes, bytes
	// already downloaded, bytes already post-processed from a prior run.
	SeedTotals(totalDownload, totalPostProcess, alreadyDownloaded, alreadyPostProcessed int64)

	// Download reports n additional bytes received over the wire.
	Download(n int64)

	// PostProcess reports n additional bytes verified/extracted.
	PostProcess(n int64)

	// Close flushes and releases any terminal resources. Safe to call
	// more than once.
	Close()
}

// NopSink discards all events. Useful for tests and the list-* subcommands.
type NopSink struct{}

func (NopSink) SeedTotals(int64, int64, int64, int64) {}
func (NopSink) Download(int64)                        {}
func (NopSink) PostProcess(int64)                      {}
func (NopSink) Close()                                 {}
