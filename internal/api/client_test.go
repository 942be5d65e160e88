package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rescale-labs/carfw/internal/logging"
	"github.com/rescale-labs/carfw/internal/models"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(logging.NewDefault(), 0, false)
}

func TestDoEnvelopeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("expected Authorization header on every request")
		}
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q, want %q", got, userAgent)
		}
		io.WriteString(w, `{"data":{"region":"US"},"resp_code":"0000","resp_msg":"ok"}`)
	}))
	defer srv.Close()

	c := testClient(t)
	data, err := c.doEnvelope(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("doEnvelope() error = %v", err)
	}
	if !strings.Contains(string(data), "US") {
		t.Errorf("data = %s, want to contain region US", data)
	}
}

func TestDoEnvelopeProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":null,"resp_code":"9999","resp_msg":"bad request"}`)
	}))
	defer srv.Close()

	c := testClient(t)
	_, err := c.doEnvelope(context.Background(), http.MethodGet, srv.URL, nil)
	var protoErr *ProtocolError
	if err == nil {
		t.Fatal("expected ProtocolError, got nil")
	}
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
	if protoErr.RespCode != "9999" {
		t.Errorf("RespCode = %q, want 9999", protoErr.RespCode)
	}
}

func TestDoEnvelopeBadHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t)
	_, err := c.doEnvelope(context.Background(), http.MethodGet, srv.URL, nil)
	var badErr *BadHTTPResponseError
	if !errors.As(err, &badErr) {
		t.Fatalf("expected *BadHTTPResponseError, got %T: %v", err, err)
	}
}

func TestDownloadPartialContent(t *testing.T) {
	const payload = "hello world firmware bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "bytes=5-" {
			t.Errorf("Range header = %q, want bytes=5-", rng)
		}
		w.Header().Set("Content-Range", "bytes 5-26/27")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, payload[5:])
	}))
	defer srv.Close()

	c := testClient(t)
	manifest := models.FirmwareManifest{BaseURL: srv.URL}
	file := models.FileSpec{Name: "firmware.bin", ServerPath: "/files"}

	body, err := c.Download(context.Background(), manifest, file, 0, 5)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != payload[5:] {
		t.Errorf("body = %q, want %q", data, payload[5:])
	}
}

func TestDownloadAlreadyComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "27")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	c := testClient(t)
	manifest := models.FirmwareManifest{BaseURL: srv.URL}
	file := models.FileSpec{Name: "firmware.bin", ServerPath: "/files"}

	_, err := c.Download(context.Background(), manifest, file, 0, 27)
	var alreadyErr *AlreadyCompleteError
	if !errors.As(err, &alreadyErr) {
		t.Fatalf("expected *AlreadyCompleteError, got %T: %v", err, err)
	}
}

func TestDownloadRangeMismatchIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "10")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	c := testClient(t)
	manifest := models.FirmwareManifest{BaseURL: srv.URL}
	file := models.FileSpec{Name: "firmware.bin", ServerPath: "/files"}

	_, err := c.Download(context.Background(), manifest, file, 0, 27)
	var badErr *BadHTTPResponseError
	if !errors.As(err, &badErr) {
		t.Fatalf("expected *BadHTTPResponseError for mismatched HEAD length, got %T: %v", err, err)
	}
}

func TestBaseURLForEU(t *testing.T) {
	if got := baseURLFor(models.Region("EU")); got != euBaseURL {
		t.Errorf("baseURLFor(EU) = %q, want %q", got, euBaseURL)
	}
	if got := baseURLFor(models.Region("US")); got != defaultBaseURL {
		t.Errorf("baseURLFor(US) = %q, want %q", got, defaultBaseURL)
	}
}
