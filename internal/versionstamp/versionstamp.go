// Package versionstamp writes and parses the per-car `<car.id>.ver`
// manifest file the Orchestrator stamps before any network work starts
// (see §6 of the design: one `+` header line, then one line per file).
package versionstamp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/rescale-labs/carfw/internal/models"
)

// Entry is one parsed file line of a version-stamp file.
type Entry struct {
	CarID       string
	FileDir     string // "\"-separated, empty if the spec had no directory
	FileName    string
	FileVersion string
	CRC32Signed int32
	FileSize    uint64
}

// Stamp is the fully parsed contents of a version-stamp file.
type Stamp struct {
	UpdateVersion string
	CarVersion    string
	BrandCode     string
	CarID         string
	MCode         string
	Files         []Entry
}

// Render formats manifest and car into the version-stamp file body,
// using carVersion as the `<car_version>` field (the car's first listed
// version is the conventional choice; multi-head units may have more).
func Render(manifest models.FirmwareManifest, car models.CarInfo, carVersion string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "+|%s|%s|%s|%s|%s|1\n",
		manifest.UpdateVersion, carVersion, car.Brand.Code(), car.ID, car.MCode)

	for _, f := range manifest.Files {
		dir := strings.ReplaceAll(f.Directory, "/", "\\")
		idPart := car.ID
		if dir != "" {
			idPart = car.ID + "\\" + dir
		}
		crcSigned := int32(f.CRC32)
		fmt.Fprintf(&b, "%s|%s|%s|%d|%d|1\n", idPart, f.Name, f.Version, crcSigned, f.Size)
	}
	return b.String()
}

// Parse reads a version-stamp file body back into a Stamp.
func Parse(body string) (Stamp, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	var stamp Stamp
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if lineNo == 1 {
			if !strings.HasPrefix(line, "+|") || len(fields) != 7 {
				return Stamp{}, fmt.Errorf("versionstamp: malformed header line %q", line)
			}
			stamp.UpdateVersion = fields[1]
			stamp.CarVersion = fields[2]
			stamp.BrandCode = fields[3]
			stamp.CarID = fields[4]
			stamp.MCode = fields[5]
			continue
		}
		if len(fields) != 6 {
			return Stamp{}, fmt.Errorf("versionstamp: malformed file line %q", line)
		}
		carAndDir := fields[0]
		carID, dir, _ := strings.Cut(carAndDir, "\\")
		crc, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil {
			return Stamp{}, fmt.Errorf("versionstamp: bad crc32 field %q: %w", fields[3], err)
		}
		size, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return Stamp{}, fmt.Errorf("versionstamp: bad size field %q: %w", fields[4], err)
		}
		stamp.Files = append(stamp.Files, Entry{
			CarID:       carID,
			FileDir:     dir,
			FileName:    fields[1],
			FileVersion: fields[2],
			CRC32Signed: int32(crc),
			FileSize:    size,
		})
	}
	if err := scanner.Err(); err != nil {
		return Stamp{}, fmt.Errorf("versionstamp: scan: %w", err)
	}
	if stamp.CarID == "" {
		return Stamp{}, fmt.Errorf("versionstamp: empty or missing header line")
	}
	return stamp, nil
}
