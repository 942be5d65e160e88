package api

import "encoding/json"

// envelope is the `{data, resp_code, resp_msg}` wrapper every vendor
// response uses. resp_code "0000" means success; anything else is a
// ProtocolError.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	RespCode string          `json:"resp_code"`
	RespMsg  string          `json:"resp_msg"`
}

func (e envelope) ok() bool { return e.RespCode == "0000" }

type wireRegionStatus struct {
	Region string `json:"region"`
}

type wireGUID struct {
	GUID string `json:"guid"`
}

type wireCarListRequest struct {
	Brand    string `json:"brand"`
	GUID     string `json:"guid"`
	Region   string `json:"region"`
	UserID   string `json:"user_id"`
	UserPW   string `json:"user_pw"`
	UserType string `json:"user_type"`
}

type wireCarInfo struct {
	Brand        string   `json:"brand"`
	ID           string   `json:"id"`
	DownloadCode string   `json:"download_code"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	Versions     []string `json:"versions"`
	MCode        string   `json:"mcode"`
}

type wireManifest struct {
	TotalSize     int64          `json:"total_size"`
	BaseURL       string         `json:"base_url"`
	UpdateVersion string         `json:"update_version"`
	Files         []wireFileSpec `json:"files"`
}

type wireFileSpec struct {
	CRC32        int64  `json:"crc32"`
	Directory    string `json:"directory"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ServerPath   string `json:"server_path"`
	Version      string `json:"version"`
	ZipCount     int    `json:"zip_count"`
	ZipTotalSize int64  `json:"zip_total_size"`
	ZipFirstName string `json:"zip_first_name"`
	ZipLastName  string `json:"zip_last_name"`
}
