// Package constants centralizes magic numbers and on-disk naming conventions
// shared across the downloader, planner, and repair packages.
package constants

import "time"

const (
	// ToolID is the fixed package identifier used to namespace temporary
	// on-disk artifacts so they never collide with manifest-given names.
	ToolID = "carfw"

	// DownloadExt suffixes an in-flight raw download of a piece.
	DownloadExt = "." + ToolID + "_download"
	// VerifyExt suffixes a finished-but-unverified non-split download.
	VerifyExt = "." + ToolID + "_verify"
	// ExtractExt suffixes a staging copy of an extracted archive entry.
	ExtractExt = "." + ToolID + "_extract"
	// VersionStampExt suffixes the per-car version manifest file.
	VersionStampExt = ".ver"
	// LockFileName is the advisory lock held for the lifetime of a run
	// against a given output directory.
	LockFileName = "." + ToolID + ".lock"
)

const (
	// CowBlockSize is the canonical block size for the copy-on-write overlay.
	CowBlockSize = 4096

	// CRCChunkSize is the read chunk size used while hashing a downloaded
	// file against its manifest CRC-32.
	CRCChunkSize = 8 * 1024

	// DownloadChunkSize is the read buffer size used while streaming a
	// ranged HTTP download to disk.
	DownloadChunkSize = 256 * 1024

	// RetryDelay is the pause between raw-download attempts.
	RetryDelay = 1 * time.Second

	// MinConcurrency and MaxConcurrency bound the user-configurable
	// concurrency limit, guarding against self-inflicted DoS.
	MinConcurrency = 1
	MaxConcurrency = 16

	// DefaultConcurrency and DefaultRetries are applied when the CLI/
	// settings file leave these unset.
	DefaultConcurrency = 4
	DefaultRetries     = 3

	// ProgressUpdateInterval throttles progress-bar refresh rate.
	ProgressUpdateInterval = 250 * time.Millisecond

	// HTTPDialTimeout and friends tune the shared HTTP transport.
	HTTPDialTimeout           = 15 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 20 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second

	// DiskSpaceSafetyMargin is the multiplier applied to the manifest's
	// remaining-bytes estimate before the pre-flight disk space check. The
	// estimate already counts both the raw download bytes and the
	// post-process output bytes; the margin is headroom on top of that.
	DiskSpaceSafetyMargin = 1.15
)

// ZIP magic numbers used by the split-repair engine.
var (
	LocalFileHeaderMagic  = [4]byte{'P', 'K', 0x03, 0x04}
	SplitArchiveMarkerMagic = [4]byte{'P', 'K', 0x07, 0x08}
	EOCDMagic             = [4]byte{'P', 'K', 0x05, 0x06}
	Zip64LocatorMagic     = [4]byte{'P', 'K', 0x06, 0x07}
	Zip64EOCDMagic        = [4]byte{'P', 'K', 0x06, 0x06}
	CentralDirMagic       = [4]byte{'P', 'K', 0x01, 0x02}
)
