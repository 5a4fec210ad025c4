package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSecretCipher_RoundTrip(t *testing.T) {
	c, err := NewSecretCipher("test-encryption-key")
	if err != nil {
		t.Fatalf("NewSecretCipher: %v", err)
	}
	sealed, err := c.Encrypt("sk-live-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(sealed, cipherPrefix) {
		t.Fatalf("expected prefix %q, got %q", cipherPrefix, sealed)
	}
	if strings.Contains(sealed, "sk-live-123") {
		t.Fatalf("ciphertext leaks plaintext")
	}
	again, err := c.Encrypt("sk-live-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if again == sealed {
		t.Fatalf("expected random nonce to change ciphertext")
	}
	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "sk-live-123" {
		t.Fatalf("expected plaintext sk-live-123, got %q", plain)
	}
}

func TestSecretCipher_WrongKeyAndMalformed(t *testing.T) {
	a, _ := NewSecretCipher("key-a")
	b, _ := NewSecretCipher("key-b")
	sealed, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, errDecrypt := b.Decrypt(sealed); errDecrypt == nil {
		t.Fatalf("expected decrypt with wrong key to fail")
	}
	if _, errDecrypt := a.Decrypt("plain-text"); !errors.Is(errDecrypt, ErrMalformedCiphertext) {
		t.Fatalf("expected ErrMalformedCiphertext, got %v", errDecrypt)
	}
	if _, errNew := NewSecretCipher("  "); !errors.Is(errNew, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", errNew)
	}
}

func TestIssueAndParseToken(t *testing.T) {
	now := time.Now()
	raw, err := IssueToken("jwt-secret", "dashboard", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken("jwt-secret", raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "dashboard" {
		t.Fatalf("expected subject dashboard, got %q", claims.Subject)
	}
	if _, errParse := ParseToken("other-secret", raw); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", errParse)
	}

	expired, err := IssueToken("jwt-secret", "dashboard", time.Minute, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, errParse := ParseToken("jwt-secret", expired); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", errParse)
	}
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("GenerateRandomString: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(s))
	}
	if _, errGen := GenerateRandomString(0); errGen == nil {
		t.Fatalf("expected error for zero length")
	}
}
