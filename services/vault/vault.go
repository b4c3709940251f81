// Package vault encrypts connection secrets at rest. A single symmetric key
// stored in the data directory covers the connection store; backup archives
// use a password-derived key instead so they can move between machines.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/pkg/logger"
)

const (
	keyFileName = "secret.key"
	keySize     = 32 // AES-256
	saltSize    = 16
	// Iteration count matches the archive format produced by earlier
	// releases; changing it breaks existing backups.
	pbkdf2Iterations = 100_000
)

// Vault performs symmetric encryption with the instance key and
// password-derived encryption for portable archives.
type Vault struct {
	aead cipher.AEAD
}

// New loads the vault key from dataDir, generating it on first run. A key
// file that exists but cannot be read or has the wrong length is a fatal
// startup condition and returns an error.
func New(dataDir string) (*Vault, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data directory %s: %w", dataDir, err)
	}
	keyPath := filepath.Join(dataDir, keyFileName)

	key, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		if len(key) != keySize {
			return nil, apperrors.Newf(apperrors.Crypto, "key file %s is corrupt (%d bytes, want %d)", keyPath, len(key), keySize)
		}
	case os.IsNotExist(err):
		key = make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate vault key: %w", err)
		}
		if err := os.WriteFile(keyPath, key, 0o600); err != nil {
			return nil, fmt.Errorf("write vault key %s: %w", keyPath, err)
		}
		logger.Infof("Generated new vault key at %s", keyPath)
	default:
		return nil, apperrors.Wrap(apperrors.Crypto, "key file unreadable", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// NewWithKey builds a vault around an explicit key. Used by tests.
func NewWithKey(key []byte) (*Vault, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

// Encrypt encrypts plaintext with the instance key. Result is a base64 token
// of nonce followed by ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Tampered or foreign tokens fail with a Crypto
// error, never a silently wrong plaintext.
func (v *Vault) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Crypto, "malformed ciphertext", err)
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", apperrors.New(apperrors.Crypto, "ciphertext too short")
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Crypto, "decryption failed", err)
	}
	return string(plain), nil
}

// EncryptWithPassword encrypts plaintext under a key derived from password
// with PBKDF2-HMAC-SHA256 and a fresh random salt. The archive layout is
// base64(salt | nonce | ciphertext).
func EncryptWithPassword(plaintext []byte, password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptWithPassword reverses EncryptWithPassword. A wrong password fails
// the GCM tag check and surfaces as a Crypto error.
func DecryptWithPassword(archive, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(archive)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "archive is not valid base64", err)
	}
	if len(raw) < saltSize {
		return nil, apperrors.New(apperrors.Validation, "archive too short")
	}
	salt := raw[:saltSize]
	aead, err := newAEAD(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New))
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(raw) < saltSize+ns {
		return nil, apperrors.New(apperrors.Validation, "archive too short")
	}
	plain, err := aead.Open(nil, raw[saltSize:saltSize+ns], raw[saltSize+ns:], nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Crypto, "wrong password or corrupted archive", err)
	}
	return plain, nil
}
