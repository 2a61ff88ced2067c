// Package secure implements the credential cipher used to protect messaging
// provider tokens at rest. Blobs are AES-256-GCM sealed with a key derived
// from the configured passphrase via Argon2id; each blob carries its own salt
// and nonce so key rotation only requires re-encrypting rows, not schema
// changes.
//
// Blob layout: [16-byte salt][12-byte nonce][ciphertext].
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"habitpulse/internal/types"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// ErrCredentialAbsent is returned when a stored blob cannot be decrypted.
// Callers treat this as "the owner has no usable credential", not as a
// fatal condition; a token re-issue flow repopulates the row.
var ErrCredentialAbsent = errors.New("credential absent or undecryptable")

// CredentialCipher seals and opens credential blobs with a passphrase-derived
// AES-256-GCM key.
type CredentialCipher struct {
	passphrase types.SecretString
}

// NewCredentialCipher creates a cipher bound to the given passphrase.
func NewCredentialCipher(passphrase types.SecretString) *CredentialCipher {
	return &CredentialCipher{passphrase: passphrase}
}

// Encrypt seals the plaintext under a fresh salt and nonce.
func (c *CredentialCipher) Encrypt(plaintext string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. Any structural or authentication
// failure is reported as ErrCredentialAbsent so callers can degrade to the
// "no credential" path instead of aborting.
func (c *CredentialCipher) Decrypt(blob []byte) (string, error) {
	if len(blob) < saltSize+nonceSize+1 {
		return "", ErrCredentialAbsent
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCredentialAbsent
	}
	return string(plaintext), nil
}

// aead derives the AES-256 key for the given salt and returns the GCM AEAD.
func (c *CredentialCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(c.passphrase.Unmask()), salt, argonTime, argonMem, argonPar, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
