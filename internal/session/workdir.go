package session

import (
	"os"
	"path/filepath"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
)

// writeScreenshot writes jpeg bytes under workDir/screenshots/<uuid>.jpg and
// returns the path. The file name is a fresh random UUID, not the id of the
// step the screenshot is attached to.
func writeScreenshot(workDir string, jpegBytes []byte) (string, error) {
	name := crypto.NewUUID() + ".jpg"
	path := filepath.Join(workDir, "screenshots", name)
	if err := os.WriteFile(path, jpegBytes, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
