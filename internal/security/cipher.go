package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// cipherPrefix tags ciphertexts produced by SecretCipher.
const cipherPrefix = "v1:"

// Fixed salt: the key material is already a random secret, scrypt only stretches it to 32 bytes.
var cipherSalt = []byte("strepsil.secret.v1")

var (
	// ErrEmptyKey indicates the encryption key is missing.
	ErrEmptyKey = errors.New("security: empty encryption key")
	// ErrMalformedCiphertext indicates the stored value is not a SecretCipher payload.
	ErrMalformedCiphertext = errors.New("security: malformed ciphertext")
)

// SecretCipher encrypts provider keys and secret settings with XChaCha20-Poly1305.
type SecretCipher struct {
	key []byte
}

// NewSecretCipher derives a 32-byte key from the configured secret.
func NewSecretCipher(secret string) (*SecretCipher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key, err := scrypt.Key([]byte(secret), cipherSalt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	return &SecretCipher{key: key}, nil
}

// Encrypt seals plaintext and returns a printable ciphertext.
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("security: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, errRead := rand.Read(nonce); errRead != nil {
		return "", fmt.Errorf("security: nonce: %w", errRead)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *SecretCipher) Decrypt(ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(strings.TrimSpace(ciphertext), cipherPrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("security: init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt: %w", err)
	}
	return string(plain), nil
}
