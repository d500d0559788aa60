// tokens.go — Random session identifiers and constant-time comparison.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// NewToken returns n cryptographically random bytes encoded as unpadded
// urlsafe base64. Used for session auth tokens — callers choose n to size
// the secret (§4.1, SESSION_TOKEN_BYTES).
func NewToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("crypto: token length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewUUID returns a UUID v4 string, used for session, step and outbound
// message ids.
func NewUUID() string {
	return uuid.New().String()
}

// ConstantTimeEqual reports whether a and b are equal without leaking
// timing information about where they first differ. Used at the HTTP and
// WebSocket auth boundaries to compare bearer tokens (§6).
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison so callers can't distinguish a length
		// mismatch from a content mismatch by timing.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
