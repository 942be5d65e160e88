package buffers

import (
	"testing"

	"github.com/rescale-labs/carfw/internal/constants"
)

func TestDownloadBufferPool(t *testing.T) {
	buf := GetDownloadBuffer()
	if buf == nil {
		t.Fatal("GetDownloadBuffer returned nil")
	}
	if len(*buf) != constants.DownloadChunkSize {
		t.Errorf("buffer size = %d, want %d", len(*buf), constants.DownloadChunkSize)
	}
	PutDownloadBuffer(buf)

	buf2 := GetDownloadBuffer()
	if buf2 == nil {
		t.Fatal("GetDownloadBuffer returned nil on second call")
	}
	PutDownloadBuffer(buf2)
}

func TestCRCBufferPool(t *testing.T) {
	buf := GetCRCBuffer()
	if len(*buf) != constants.CRCChunkSize {
		t.Errorf("buffer size = %d, want %d", len(*buf), constants.CRCChunkSize)
	}
	PutCRCBuffer(buf)
}

func TestPutWrongSizeIgnored(t *testing.T) {
	wrong := make([]byte, 1024)
	PutDownloadBuffer(&wrong)
	PutCRCBuffer(&wrong)
}

func TestPutNilBuffer(t *testing.T) {
	PutDownloadBuffer(nil)
	PutCRCBuffer(nil)
}

func TestConcurrentAccess(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	done := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				buf := GetDownloadBuffer()
				(*buf)[0] = byte(j)
				PutDownloadBuffer(buf)

				crcBuf := GetCRCBuffer()
				(*crcBuf)[0] = byte(j)
				PutCRCBuffer(crcBuf)
			}
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
}
