package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brennhill/browserctl-gateway/internal/session"
)

func sampleSteps() []*session.Step {
	return []*session.Step{
		{ID: "s1", Index: 0, Action: session.ActionClick, X: 100, Y: 200, Button: "left", CreatedAt: time.Now()},
		{ID: "s2", Index: 1, Action: session.ActionNavigate, FromURL: "https://a", ToURL: "https://b", Trigger: "user", CreatedAt: time.Now()},
	}
}

func TestExportImportRoundTripNoPassword(t *testing.T) {
	steps := sampleSteps()

	raw, err := Export(steps, ExportOptions{Format: FormatStepwise, Title: "demo"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !looksLikeZip(raw) {
		t.Fatal("expected unencrypted export to start with ZIP magic bytes")
	}

	dir := t.TempDir()
	result, err := Import(raw, dir, 500, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Title != "demo" {
		t.Fatalf("expected title %q, got %q", "demo", result.Title)
	}
	if len(result.Steps) != len(steps) {
		t.Fatalf("expected %d steps, got %d", len(steps), len(result.Steps))
	}
	if result.Steps[0].ID != "s1" || result.Steps[1].ID != "s2" {
		t.Fatalf("unexpected step ordering: %+v", result.Steps)
	}
}

func TestExportWithPasswordIsNotPlainZip(t *testing.T) {
	raw, err := Export(sampleSteps(), ExportOptions{Password: "pw"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if looksLikeZip(raw) {
		t.Fatal("expected encrypted export to not start with ZIP magic bytes")
	}
}

func TestPreviewDetectsEncryptionWithoutPassword(t *testing.T) {
	raw, err := Export(sampleSteps(), ExportOptions{Password: "pw"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	preview, err := Preview(raw, ImportOptions{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !preview.Encrypted {
		t.Fatal("expected Preview to report encrypted:true")
	}
	if preview.StepCount != 0 {
		t.Fatalf("expected stepCount 0 for undecrypted preview, got %d", preview.StepCount)
	}
}

func TestPreviewWrongPasswordFails(t *testing.T) {
	raw, err := Export(sampleSteps(), ExportOptions{Password: "right"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := Preview(raw, ImportOptions{Password: "wrong"}); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestImportWithPasswordRoundTrip(t *testing.T) {
	steps := sampleSteps()
	raw, err := Export(steps, ExportOptions{Title: "secret demo", Password: "pw"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dir := t.TempDir()
	result, err := Import(raw, dir, 500, ImportOptions{Password: "pw"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Title != "secret demo" {
		t.Fatalf("unexpected title %q", result.Title)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
}

func TestImportEnforcesMaxSteps(t *testing.T) {
	raw, err := Export(sampleSteps(), ExportOptions{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := Import(raw, t.TempDir(), 1, ImportOptions{}); err != ErrTooManySteps {
		t.Fatalf("expected ErrTooManySteps, got %v", err)
	}
}

func TestImportRejectsMalformedArchive(t *testing.T) {
	if _, err := Import([]byte("not a zip at all but looks encrypted enough"), t.TempDir(), 500, ImportOptions{Password: "pw"}); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestExportIncludesScreenshotFiles(t *testing.T) {
	dir := t.TempDir()
	shot := filepath.Join(dir, "shot1.jpg")
	if err := os.WriteFile(shot, []byte("fake-jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	steps := []*session.Step{
		{ID: "s1", Index: 0, Action: session.ActionClick, ScreenshotPath: shot, CreatedAt: time.Now()},
	}

	raw, err := Export(steps, ExportOptions{IncludeScreenshots: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	outDir := t.TempDir()
	result, err := Import(raw, outDir, 500, ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Steps[0].ScreenshotPath == "" {
		t.Fatal("expected imported step to carry a rewritten screenshot path")
	}
	data, err := os.ReadFile(result.Steps[0].ScreenshotPath)
	if err != nil {
		t.Fatalf("read imported screenshot: %v", err)
	}
	if string(data) != "fake-jpeg-bytes" {
		t.Fatalf("unexpected screenshot contents: %q", data)
	}
}

func TestFilenameIsStableForIdenticalBytes(t *testing.T) {
	raw, _ := Export(sampleSteps(), ExportOptions{})
	if Filename(raw) != Filename(raw) {
		t.Fatal("expected Filename to be deterministic for identical bytes")
	}
}
