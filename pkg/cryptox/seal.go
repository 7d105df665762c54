package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used to derive the sealing key from a passphrase.
// These are lighter than interactive login hashing because the key is
// derived on every CLI invocation.
const (
	kdfTime    = 2
	kdfMemory  = 32 * 1024
	kdfThreads = 2
	keyLength  = 32
	saltLength = 16
)

// ErrEmptyPassphrase is returned when a Sealer is built without a passphrase.
var ErrEmptyPassphrase = errors.New("cryptox: passphrase must not be empty")

// Sealer encrypts small blobs (such as stored credentials) with AES-256-GCM
// under a key derived from a passphrase with Argon2id.
//
// Sealed format: [16-byte salt][12-byte nonce][ciphertext][16-byte auth tag]
//
// Derived keys are cached per salt, and Seal reuses the salt of the last
// key it derived or opened, so a process pays for Argon2id once per file.
type Sealer struct {
	passphrase []byte
	derive     func(passphrase, salt []byte) []byte

	mu       sync.Mutex
	keys     map[string]cipher.AEAD
	lastSalt []byte
}

// NewSealer returns a Sealer for the given passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Sealer{
		passphrase: []byte(passphrase),
		derive:     deriveKey,
		keys:       make(map[string]cipher.AEAD),
	}, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, keyLength)
}

// Seal encrypts plaintext using a fresh nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt, err := s.sealSalt()
	if err != nil {
		return nil, err
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLength+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, salt), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength {
		return nil, fmt.Errorf("ciphertext too short")
	}

	salt, rest := sealed[:saltLength], sealed[saltLength:]
	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

func (s *Sealer) sealSalt() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSalt != nil {
		return s.lastSalt, nil
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gcm, ok := s.keys[string(salt)]; ok {
		s.lastSalt = append([]byte(nil), salt...)
		return gcm, nil
	}

	block, err := aes.NewCipher(s.derive(s.passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s.keys[string(salt)] = gcm
	s.lastSalt = append([]byte(nil), salt...)
	return gcm, nil
}
