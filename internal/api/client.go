// Package api is a thin typed facade over the vendor firmware API: region
// autodetection, session GUID, car listing, firmware manifest, and a
// ranged byte-stream download primitive.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/rescale-labs/carfw/internal/cryptoauth"
	"github.com/rescale-labs/carfw/internal/logging"
	"github.com/rescale-labs/carfw/internal/models"
)

const (
	defaultBaseURL = "https://api.map-care.com/api/v3"
	euBaseURL      = "https://apieu.map-care.com/api/v3"

	// userAgent is fixed for every call; the vendor rejects modern UAs
	// on some endpoints.
	userAgent = "curl/7.74.0-DEV"
)

// Client is the vendor HTTPS API facade. It is safe for concurrent use —
// its underlying connection pool is shared across Orchestrator workers.
type Client struct {
	http   *retryablehttp.Client
	logger *logging.Logger
}

// retryLogAdapter bridges retryablehttp's LeveledLogger to our zerolog
// wrapper, the same adaptation the teacher's ApiClient performs.
type retryLogAdapter struct {
	logger *logging.Logger
}

func (a retryLogAdapter) fields(keysAndValues ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			m[key] = keysAndValues[i+1]
		}
	}
	return m
}

func (a retryLogAdapter) Error(msg string, keysAndValues ...interface{}) {
	ev := a.logger.Error()
	for k, v := range a.fields(keysAndValues...) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a retryLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	ev := a.logger.Info()
	for k, v := range a.fields(keysAndValues...) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a retryLogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	ev := a.logger.Debug()
	for k, v := range a.fields(keysAndValues...) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (a retryLogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	ev := a.logger.Warn()
	for k, v := range a.fields(keysAndValues...) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// NewClient builds a Client whose transport retries transient transport
// failures (connection resets, 5xx) up to retries times. Range-request
// retries for the raw-piece-download algorithm are layered by the
// Orchestrator on top, since retryablehttp retrying a ranged GET blindly
// would break AlreadyComplete/resumability semantics.
//
// insecureSkipVerify disables TLS certificate validation (--ignore-tls-validation)
// for environments where the vendor endpoints sit behind an intercepting
// proxy with an untrusted certificate; it is never true by default.
func NewClient(logger *logging.Logger, retries int, insecureSkipVerify bool) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.Logger = retryLogAdapter{logger: logger}
	rc.HTTPClient = &http.Client{
		Timeout:   60 * time.Second,
		Transport: newTransport(insecureSkipVerify),
	}
	// Once retries are exhausted, hand back the last response so callers
	// report its status as a BadHTTPResponseError.
	rc.ErrorHandler = func(resp *http.Response, err error, _ int) (*http.Response, error) {
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}

	return &Client{http: rc, logger: logger}
}

func baseURLFor(region models.Region) string {
	if region.IsEU() {
		return euBaseURL
	}
	return defaultBaseURL
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*retryablehttp.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	authHeader, err := cryptoauth.AuthorizationHeader(time.Now())
	if err != nil {
		return nil, fmt.Errorf("compute authorization header: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doEnvelope performs a request and decodes the {data, resp_code, resp_msg}
// wrapper, surfacing non-zero resp_code as a ProtocolError.
func (c *Client) doEnvelope(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &BadHTTPResponseError{Path: url, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body from %s: %w", url, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope from %s: %w", url, err)
	}
	if !env.ok() {
		return nil, &ProtocolError{Endpoint: url, RespCode: env.RespCode, RespMsg: env.RespMsg}
	}
	return env.Data, nil
}

// GetRegion autodetects the caller's region for a brand, then validates
// it against the platform-list endpoint. An empty platform list means
// the autodetected region is unsupported for this brand.
func (c *Client) GetRegion(ctx context.Context, brand models.Brand) (models.RegionResult, error) {
	url := fmt.Sprintf("%s/region/status/%s", defaultBaseURL, brand.Code())
	data, err := c.doEnvelope(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.RegionResult{}, fmt.Errorf("get_region: %w", err)
	}
	var status wireRegionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return models.RegionResult{}, &MalformedFieldError{Field: "region", Value: string(data)}
	}

	platformURL := fmt.Sprintf("%s/car/platform/%s/%s", baseURLFor(models.Region(status.Region)), brand.Code(), status.Region)
	platformData, err := c.doEnvelope(ctx, http.MethodGet, platformURL, nil)
	if err != nil {
		return models.RegionResult{}, fmt.Errorf("get_region platform check: %w", err)
	}
	var platforms []json.RawMessage
	if err := json.Unmarshal(platformData, &platforms); err != nil {
		return models.RegionResult{}, &MalformedFieldError{Field: "platform", Value: string(platformData)}
	}
	if len(platforms) == 0 {
		return models.RegionResult{Unsupported: true, RawCode: status.Region}, nil
	}
	return models.RegionResult{Region: models.Region(status.Region)}, nil
}

// GetGUID obtains an opaque per-region session token used as an input to
// the car-list call. It is not a UUID despite the name.
func (c *Client) GetGUID(ctx context.Context, region models.Region) (string, error) {
	url := fmt.Sprintf("%s/guid/%s", baseURLFor(region), region)
	data, err := c.doEnvelope(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("get_guid: %w", err)
	}
	var g wireGUID
	if err := json.Unmarshal(data, &g); err != nil {
		return "", &MalformedFieldError{Field: "guid", Value: string(data)}
	}
	return g.GUID, nil
}

func (c *Client) carListRequest(region models.Region, guid string, brand models.Brand) ([]byte, error) {
	body := wireCarListRequest{
		Brand:    brand.Code(),
		GUID:     guid,
		Region:   string(region),
		UserID:   "",
		UserPW:   "",
		UserType: "U",
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal car list request: %w", err)
	}
	return raw, nil
}

// ListCars returns the decoded car list for a brand/region/guid.
func (c *Client) ListCars(ctx context.Context, region models.Region, guid string, brand models.Brand) ([]models.CarInfo, error) {
	body, err := c.carListRequest(region, guid, brand)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/car/list", baseURLFor(region))
	data, err := c.doEnvelope(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("list_cars: %w", err)
	}
	var wireCars []wireCarInfo
	if err := json.Unmarshal(data, &wireCars); err != nil {
		return nil, &MalformedFieldError{Field: "car list", Value: string(data)}
	}
	cars := make([]models.CarInfo, 0, len(wireCars))
	for _, w := range wireCars {
		if len(w.Versions) == 0 {
			return nil, &MalformedFieldError{Field: "versions", Value: w.ID}
		}
		cars = append(cars, models.CarInfo{
			Brand:        models.ParseBrand(w.Brand),
			ID:           w.ID,
			DownloadCode: w.DownloadCode,
			Model:        w.Model,
			Name:         w.Name,
			Versions:     w.Versions,
			MCode:        w.MCode,
		})
	}
	return cars, nil
}

// ListCarsRaw returns the undecoded `data` payload, for `json-raw` pass-through.
func (c *Client) ListCarsRaw(ctx context.Context, region models.Region, guid string, brand models.Brand) (json.RawMessage, error) {
	body, err := c.carListRequest(region, guid, brand)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/car/list", baseURLFor(region))
	data, err := c.doEnvelope(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("list_cars_raw: %w", err)
	}
	return data, nil
}

// GetManifest retrieves the firmware manifest for a car via its
// download_code, translating the wire's signed-32-bit size fields and
// resolving each file's zip naming scheme.
func (c *Client) GetManifest(ctx context.Context, region models.Region, car models.CarInfo) (models.FirmwareManifest, error) {
	url := fmt.Sprintf("%s/car/download/%s", baseURLFor(region), car.DownloadCode)
	data, err := c.doEnvelope(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FirmwareManifest{}, fmt.Errorf("get_manifest: %w", err)
	}
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return models.FirmwareManifest{}, &MalformedFieldError{Field: "manifest", Value: string(data)}
	}

	files := make([]models.FileSpec, 0, len(w.Files))
	for _, wf := range w.Files {
		naming, err := models.ParseZipNaming(wf.ZipFirstName, wf.ZipLastName, wf.ZipCount)
		if err != nil {
			return models.FirmwareManifest{}, fmt.Errorf("file %s: %w", wf.Name, err)
		}
		files = append(files, models.FileSpec{
			CRC32:        uint32(wf.CRC32),
			Directory:    wf.Directory,
			Name:         wf.Name,
			Size:         models.SignExtendWireSize(wf.Size),
			ServerPath:   wf.ServerPath,
			Version:      wf.Version,
			ZipCount:     wf.ZipCount,
			ZipTotalSize: models.SignExtendWireSize(wf.ZipTotalSize),
			ZipNaming:    naming,
		})
	}

	return models.FirmwareManifest{
		TotalSize:     models.SignExtendWireSize(w.TotalSize),
		BaseURL:       w.BaseURL,
		UpdateVersion: w.UpdateVersion,
		Files:         files,
	}, nil
}

// pieceURL builds the remote URL for one piece of a FileSpec.
func pieceURL(manifest models.FirmwareManifest, file models.FileSpec, pieceIndex int) (string, error) {
	name := file.Name
	if file.IsSplit() {
		pieceName, err := file.ZipNaming.PieceName(pieceIndex)
		if err != nil {
			return "", err
		}
		name = pieceName
	}
	return fmt.Sprintf("%s%s/%s", manifest.BaseURL, file.ServerPath, name), nil
}

// Download issues a ranged GET for one piece, starting at startOffset.
// A 206 returns the live byte stream; a 416 whose HEAD Content-Length
// equals startOffset is reported as AlreadyCompleteError, a successful
// early exit at the Orchestrator layer. Any other status is a
// BadHTTPResponseError.
func (c *Client) Download(ctx context.Context, manifest models.FirmwareManifest, file models.FileSpec, pieceIndex int, startOffset int64) (io.ReadCloser, error) {
	url, err := pieceURL(manifest, file, pieceIndex)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startOffset))

	resp, err := c.http.HTTPClient.Do(req.Request)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		headReq, err := c.newRequest(ctx, http.MethodHead, url, nil)
		if err != nil {
			return nil, err
		}
		headResp, err := c.http.Do(headReq)
		if err != nil {
			return nil, fmt.Errorf("head %s after 416: %w", url, err)
		}
		defer headResp.Body.Close()
		contentLength, err := strconv.ParseInt(headResp.Header.Get("Content-Length"), 10, 64)
		if err == nil && contentLength == startOffset {
			return nil, &AlreadyCompleteError{Path: url}
		}
		return nil, &BadHTTPResponseError{Path: url, StatusCode: resp.StatusCode}
	default:
		resp.Body.Close()
		return nil, &BadHTTPResponseError{Path: url, StatusCode: resp.StatusCode}
	}
}
