// Package buffers provides reusable byte buffers for the download and
// CRC-verification hot paths, reducing GC pressure under concurrency.
package buffers

import (
	"sync"

	"github.com/rescale-labs/carfw/internal/constants"
)

var (
	// downloadPool provides DownloadChunkSize buffers for streaming a
	// ranged HTTP response to disk.
	downloadPool = &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, constants.DownloadChunkSize)
			return &buf
		},
	}

	// crcPool provides CRCChunkSize buffers for the post-process CRC-32
	// verification walk.
	crcPool = &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, constants.CRCChunkSize)
			return &buf
		},
	}
)

// GetDownloadBuffer retrieves a DownloadChunkSize buffer from the pool.
// Callers must return it via PutDownloadBuffer when done.
func GetDownloadBuffer() *[]byte {
	return downloadPool.Get().(*[]byte)
}

// PutDownloadBuffer returns a buffer to the pool. Only correctly-sized
// buffers are pooled; anything else is dropped for the GC to collect.
func PutDownloadBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.DownloadChunkSize {
		clear(*buf)
		downloadPool.Put(buf)
	}
}

// GetCRCBuffer retrieves a CRCChunkSize buffer from the pool.
func GetCRCBuffer() *[]byte {
	return crcPool.Get().(*[]byte)
}

// PutCRCBuffer returns a CRC buffer to the pool.
func PutCRCBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.CRCChunkSize {
		clear(*buf)
		crcPool.Put(buf)
	}
}
