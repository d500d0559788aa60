// Package archive implements Module F: serializing a session's steps and
// screenshots into a portable, optionally password-encrypted ZIP archive,
// and parsing one back into a session's step list (spec §4.6).
//
// Grounded on the teacher's internal/upload form-assembly helpers for the
// general shape of "stream bytes in, validate, write to the session's
// working directory" (upload_handlers.go's multipart handling), adapted
// from accepting an uploaded file to accepting an archive buffer. The ZIP
// container itself uses stdlib archive/zip — no repo in the retrieved pack
// carries a third-party ZIP library, and archive/zip is the ecosystem's
// idiomatic choice for this, so this is a justified stdlib part (see
// DESIGN.md).
package archive

import (
	"errors"
	"time"
)

// Format names the export format. Only "stepwise" (the portable .stepwise
// ZIP) is implemented by the core; other formats (PDF, DOCX, Markdown,
// HTML) are boundary responsibilities of a separate renderer (spec §4.6).
type Format string

const FormatStepwise Format = "stepwise"

// ManifestVersion is the archive schema version written into every export.
const ManifestVersion = "1.0.0"

// Manifest is manifest.json inside the archive (spec §3).
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Title     string    `json:"title"`
	StepCount int       `json:"stepCount"`
	Encrypted bool      `json:"encrypted"`
}

// Errors surfaced to HTTP handlers (spec §4.6, §7: IO error kind).
var (
	ErrInvalidArchive   = errors.New("IMPORT_INVALID")
	ErrDecryptFailed    = errors.New("IMPORT_DECRYPT_FAILED")
	ErrEncryptedNoPass  = errors.New("ARCHIVE_ENCRYPTED")
	ErrExportFailed     = errors.New("EXPORT_FAILED")
	ErrTooManySteps     = errors.New("IMPORT_TOO_MANY_STEPS")
	ErrUnsupportedFormat = errors.New("EXPORT_UNSUPPORTED_FORMAT")
)

// zipMagic is the two leading bytes of any ZIP local-file-header (spec
// §4.6 step 1: "A plain ZIP starts with bytes 0x50 0x4B").
var zipMagic = [2]byte{0x50, 0x4B}

func looksLikeZip(b []byte) bool {
	return len(b) >= 2 && b[0] == zipMagic[0] && b[1] == zipMagic[1]
}
