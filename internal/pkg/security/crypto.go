package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// MasterKeyEnv names the environment variable holding a hex master key.
const MasterKeyEnv = "REDLOGIC_MASTER_KEY"

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts small files with XChaCha20-Poly1305.
type Sealer struct {
	key []byte
}

// NewSealer returns a sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// InitMasterKey loads the master key from the environment, then from
// keyPath, and otherwise generates one and writes it to keyPath.
// generated reports whether a new key was created.
func InitMasterKey(keyPath string) (s *Sealer, generated bool, err error) {
	if envKey := os.Getenv(MasterKeyEnv); envKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(envKey))
		if err != nil || len(key) != chacha20poly1305.KeySize {
			return nil, false, fmt.Errorf("%s must be %d hex-encoded bytes", MasterKeyEnv, chacha20poly1305.KeySize)
		}
		s, err := NewSealer(key)
		return s, false, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != chacha20poly1305.KeySize {
			return nil, false, fmt.Errorf("invalid master key in %s", keyPath)
		}
		s, err := NewSealer(key)
		return s, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save master key to %s: %w", keyPath, err)
	}

	s, err = NewSealer(key)
	return s, true, err
}

// Encrypt returns nonce + ciphertext.
func (s *Sealer) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens nonce + ciphertext produced by Encrypt.
func (s *Sealer) Decrypt(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// RandomToken returns n random bytes hex-encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
