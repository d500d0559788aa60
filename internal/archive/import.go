package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

// ImportOptions configures Import and Preview (spec §4.6).
type ImportOptions struct {
	Password string
}

// ImportResult is what Import returns to the caller (spec §4.6 step 6,
// §6 "POST /api/import/{id}").
type ImportResult struct {
	Title     string
	Steps     []*session.Step
	CreatedAt time.Time
}

// PreviewResult is what Preview returns (spec §4.6, §6 "POST
// /api/import/{id}/preview").
type PreviewResult struct {
	Manifest  Manifest `json:"manifest"`
	StepCount int      `json:"stepCount"`
	Encrypted bool     `json:"encrypted"`
}

// detectAndDecrypt implements spec §4.6 steps 1-2: a plain ZIP is used
// as-is; anything else is assumed encrypted and requires a password.
func detectAndDecrypt(buf []byte, password string) (plain []byte, encrypted bool, err error) {
	if looksLikeZip(buf) {
		return buf, false, nil
	}
	if password == "" {
		return nil, true, ErrEncryptedNoPass
	}
	plain, derr := crypto.Decrypt(buf, password)
	if derr != nil {
		return nil, true, ErrDecryptFailed
	}
	return plain, true, nil
}

// Preview runs detection, decryption, and a raw ZIP parse without touching
// the session's step store or working directory (spec §4.6: "Preview ...
// runs steps 1-3 only").
func Preview(buf []byte, opts ImportOptions) (PreviewResult, error) {
	plain, encrypted, err := detectAndDecrypt(buf, opts.Password)
	if err != nil {
		if err == ErrEncryptedNoPass {
			return PreviewResult{Encrypted: true}, nil
		}
		return PreviewResult{}, err
	}

	zr, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if err != nil {
		return PreviewResult{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	manifest, stepCount, _, err := readZip(zr, false)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Manifest: manifest, StepCount: stepCount, Encrypted: encrypted}, nil
}

// Import fully parses, validates, and materializes an archive: screenshots
// are written into workDir/screenshots and step paths rewritten to point at
// them (spec §4.6 steps 1-6).
func Import(buf []byte, workDir string, maxSteps int, opts ImportOptions) (ImportResult, error) {
	plain, _, err := detectAndDecrypt(buf, opts.Password)
	if err != nil {
		if err == ErrEncryptedNoPass {
			return ImportResult{}, ErrEncryptedNoPass
		}
		return ImportResult{}, err
	}

	zr, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	manifest, _, rawSteps, err := readZip(zr, true)
	if err != nil {
		return ImportResult{}, err
	}

	if len(rawSteps) == 0 {
		return ImportResult{}, fmt.Errorf("%w: empty step list", ErrInvalidArchive)
	}
	if maxSteps > 0 && len(rawSteps) > maxSteps {
		return ImportResult{}, ErrTooManySteps
	}
	for _, s := range rawSteps {
		if s.ID == "" || s.Action == "" {
			return ImportResult{}, fmt.Errorf("%w: step missing id or action", ErrInvalidArchive)
		}
	}

	screenshots, err := readScreenshots(zr)
	if err != nil {
		return ImportResult{}, err
	}

	if workDir != "" {
		if err := os.MkdirAll(filepath.Join(workDir, "screenshots"), 0o755); err != nil {
			return ImportResult{}, fmt.Errorf("%w: %v", ErrExportFailed, err)
		}
	}

	for _, s := range rawSteps {
		if s.ScreenshotPath == "" {
			continue
		}
		data, ok := locateScreenshot(screenshots, s.ScreenshotPath)
		if !ok {
			s.ScreenshotPath = ""
			continue
		}
		if workDir == "" {
			continue
		}
		name := filepath.Base(s.ScreenshotPath)
		dest := filepath.Join(workDir, "screenshots", name)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return ImportResult{}, fmt.Errorf("%w: write screenshot: %v", ErrExportFailed, err)
		}
		s.ScreenshotPath = dest
	}

	return ImportResult{Title: manifest.Title, Steps: rawSteps, CreatedAt: manifest.CreatedAt}, nil
}

// readZip extracts manifest.json (tolerant of missing fields) and, when
// strict is true, parses and validates steps.json (spec §4.6 step 3-4).
func readZip(zr *zip.Reader, strict bool) (Manifest, int, []*session.Step, error) {
	var manifest Manifest
	var steps []*session.Step

	for _, f := range zr.File {
		switch f.Name {
		case "manifest.json":
			data, err := readZipFile(f)
			if err != nil {
				continue // manifest parsing is tolerant — fall back to defaults
			}
			_ = json.Unmarshal(data, &manifest)
		case "steps.json":
			data, err := readZipFile(f)
			if err != nil {
				if strict {
					return manifest, 0, nil, fmt.Errorf("%w: read steps.json: %v", ErrInvalidArchive, err)
				}
				continue
			}
			if err := json.Unmarshal(data, &steps); err != nil {
				if strict {
					return manifest, 0, nil, fmt.Errorf("%w: malformed steps.json: %v", ErrInvalidArchive, err)
				}
			}
		}
	}

	if manifest.Version == "" {
		manifest.Version = ManifestVersion
	}
	if manifest.StepCount == 0 {
		manifest.StepCount = len(steps)
	}

	return manifest, len(steps), steps, nil
}

// readScreenshots collects every file under screenshots/ into an in-memory
// map keyed by its archive path (spec §4.6 step 3).
func readScreenshots(zr *zip.Reader) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || filepath.Dir(f.Name) != "screenshots" {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidArchive, f.Name, err)
		}
		out[f.Name] = data
	}
	return out, nil
}

// locateScreenshot tries, in order, the step's screenshotPath as given,
// screenshots/<basename>, and <basename> (spec §4.6 step 5).
func locateScreenshot(screenshots map[string][]byte, screenshotPath string) ([]byte, bool) {
	base := filepath.Base(screenshotPath)
	for _, candidate := range []string{screenshotPath, "screenshots/" + base, base} {
		if data, ok := screenshots[candidate]; ok {
			return data, true
		}
	}
	return nil, false
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
