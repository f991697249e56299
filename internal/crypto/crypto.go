// Package crypto encrypts GitHub credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for deriving the AES-256 key from ENCRYPTION_KEY.
const (
	kdfSalt   = "repopulse-token-key"
	kdfN      = 1 << 14
	kdfR      = 8
	kdfP      = 1
	kdfKeyLen = 32
)

// ErrDecrypt is returned when stored credential material cannot be opened.
var ErrDecrypt = errors.New("failed to decrypt credential")

// Service encrypts and decrypts tokens. Encrypt returns the ciphertext and
// the nonce needed to decrypt it, both hex encoded; they are stored as two
// columns so either being absent marks the credential unusable.
type Service interface {
	Encrypt(plaintext string) (ciphertext, nonce string, err error)
	Decrypt(ciphertext, nonce string) (string, error)
}

// NoopService passes tokens through without encryption (dev/test mode).
type NoopService struct{}

func (NoopService) Encrypt(plaintext string) (string, string, error) {
	return plaintext, "plain", nil
}

func (NoopService) Decrypt(ciphertext, nonce string) (string, error) {
	if nonce != "plain" {
		return "", fmt.Errorf("%w: unexpected nonce", ErrDecrypt)
	}
	return ciphertext, nil
}

// AESGCMService encrypts with AES-256-GCM using a key derived by scrypt.
type AESGCMService struct {
	gcm cipher.AEAD
}

// NewAESGCMService derives a key from passphrase and prepares the cipher.
func NewAESGCMService(passphrase string) (*AESGCMService, error) {
	if passphrase == "" {
		return nil, errors.New("encryption key must not be empty")
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(kdfSalt), kdfN, kdfR, kdfP, kdfKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMService{gcm: gcm}, nil
}

func (s *AESGCMService) Encrypt(plaintext string) (string, string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(nonce), nil
}

func (s *AESGCMService) Decrypt(ciphertext, nonce string) (string, error) {
	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrDecrypt, err)
	}
	nonceBytes, err := hex.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrDecrypt, err)
	}
	if len(nonceBytes) != s.gcm.NonceSize() {
		return "", fmt.Errorf("%w: nonce is %d bytes, want %d", ErrDecrypt, len(nonceBytes), s.gcm.NonceSize())
	}

	plain, err := s.gcm.Open(nil, nonceBytes, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// RandomState returns a 32 byte random hex string suitable for OAuth state.
func RandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
