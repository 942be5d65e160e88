package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestLinePrinterSinkSeedTotals(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLinePrinterSink(&buf)
	sink.SeedTotals(1000, 500, 100, 50)

	if !strings.Contains(buf.String(), "downloading") {
		t.Errorf("expected seed line to mention downloading, got %q", buf.String())
	}
}

func TestLinePrinterSinkAccumulates(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLinePrinterSink(&buf)
	sink.SeedTotals(1000, 500, 0, 0)
	sink.Download(400)
	sink.PostProcess(200)

	if sink.downloadCurrent != 400 {
		t.Errorf("downloadCurrent = %d, want 400", sink.downloadCurrent)
	}
	if sink.postProcCurrent != 200 {
		t.Errorf("postProcCurrent = %d, want 200", sink.postProcCurrent)
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	s.SeedTotals(1, 2, 3, 4)
	s.Download(10)
	s.PostProcess(10)
	s.Close()
}
