// envelope.go — Password-based authenticated encryption for portable archives.
//
// The wire format is fixed by the protocol and MUST stay bit-compatible
// with any other implementation: a 32-byte random salt, a 12-byte random
// IV, the AES-256-GCM ciphertext, and the trailing 16-byte GCM tag,
// concatenated in that order into one buffer. Go's cipher.AEAD.Seal
// already appends the tag after the ciphertext, so the envelope is built
// by straight concatenation — no separate tag handling needed.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen       = 32
	ivLen         = 12
	keyLen        = 32
	pbkdf2Rounds  = 100_000
	minEnvelopeLen = saltLen + ivLen + 16 // + at least an empty ciphertext's tag
)

// ErrDecryptFailed is returned by Decrypt for any authentication or parse
// error. Callers must not try to distinguish "wrong password" from
// "corrupt archive" — both are reported identically (§4.1).
var ErrDecryptFailed = errors.New("DECRYPT_FAILED")

func deriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Rounds, keyLen, sha256.New)
}

// Encrypt wraps plaintext in the salt‖iv‖ciphertext‖tag envelope using a
// key derived from password via PBKDF2-HMAC-SHA256.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: read salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: read iv: %w", err)
	}

	key := deriveKey([]byte(password), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	out := make([]byte, 0, saltLen+ivLen+len(sealed))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt unwraps an envelope produced by Encrypt. Any failure — truncated
// buffer, wrong password, corrupted tag — collapses to ErrDecryptFailed.
func Decrypt(envelope []byte, password string) ([]byte, error) {
	if len(envelope) < minEnvelopeLen {
		return nil, ErrDecryptFailed
	}

	salt := envelope[:saltLen]
	iv := envelope[saltLen : saltLen+ivLen]
	ciphertext := envelope[saltLen+ivLen:]

	key := deriveKey([]byte(password), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Fingerprint returns the hex SHA-256 digest of data, truncated to the
// first 12 hex characters. Used to derive a stable, content-addressed
// export filename (export-<fingerprint>.stepwise) so re-exporting an
// unchanged recording doesn't churn filenames.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}
