package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

// ExportOptions configures Export (spec §4.6 "Export(session, {format,
// title, password?, includeScreenshots})").
type ExportOptions struct {
	Format             Format
	Title              string
	Password           string
	IncludeScreenshots bool
}

// Export serializes steps into a ZIP archive, rewriting each step's
// screenshot path to the archive-relative screenshots/<basename> form, and
// optionally wraps the whole buffer in the password envelope from
// internal/crypto (spec §4.1, §4.6).
//
// Only FormatStepwise is implemented; the core has no PDF/DOCX/Markdown/HTML
// renderer — those consume the same Step array as a separate boundary
// component (spec §4.6).
func Export(steps []*session.Step, opts ExportOptions) ([]byte, error) {
	if opts.Format != "" && opts.Format != FormatStepwise {
		return nil, ErrUnsupportedFormat
	}

	exportSteps := make([]*session.Step, len(steps))
	for i, s := range steps {
		cp := *s
		if cp.ScreenshotPath != "" {
			cp.ScreenshotPath = "screenshots/" + filepath.Base(cp.ScreenshotPath)
		}
		// The in-memory data URL is a live-session convenience; it has no
		// business in a portable archive and would bloat steps.json.
		cp.ScreenshotData = ""
		exportSteps[i] = &cp
	}

	stepsJSON, err := json.Marshal(exportSteps)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal steps: %v", ErrExportFailed, err)
	}

	manifest := Manifest{
		Version:   ManifestVersion,
		CreatedAt: time.Now(),
		Title:     opts.Title,
		StepCount: len(exportSteps),
		Encrypted: opts.Password != "",
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal manifest: %v", ErrExportFailed, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeZipEntry(zw, "manifest.json", manifestJSON); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err := writeZipEntry(zw, "steps.json", stepsJSON); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	if opts.IncludeScreenshots {
		for _, s := range steps {
			if s.ScreenshotPath == "" {
				continue
			}
			data, readErr := os.ReadFile(s.ScreenshotPath)
			if readErr != nil {
				// A step whose screenshot file vanished (e.g. a concurrent
				// end-of-session sweep) shouldn't fail the whole export —
				// the step survives in steps.json without its image.
				continue
			}
			name := "screenshots/" + filepath.Base(s.ScreenshotPath)
			if err := writeZipEntry(zw, name, data); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close zip: %v", ErrExportFailed, err)
	}

	raw := buf.Bytes()
	if opts.Password == "" {
		return raw, nil
	}

	envelope, err := crypto.Encrypt(raw, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrExportFailed, err)
	}
	return envelope, nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Filename derives a stable, content-addressed export filename so
// re-exporting an unchanged recording doesn't churn filenames (spec §6:
// POST /api/export/{id} returns {filename}).
func Filename(archiveBytes []byte) string {
	return fmt.Sprintf("export-%s.stepwise", crypto.Fingerprint(archiveBytes))
}
