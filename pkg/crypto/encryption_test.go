package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	sealed, err := enc.Encrypt("super-secret-api-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(sealed, "ENC:") {
		t.Fatalf("sealed value missing prefix: %q", sealed)
	}

	got, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "super-secret-api-key" {
		t.Fatalf("Decrypt=%q, expected original plaintext", got)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, KeySize)
	enc, _ := NewEncryptor(key)

	for _, input := range []string{"", "not-sealed", "ENC:!!!", "ENC:YWJj"} {
		if _, err := enc.Decrypt(input); err == nil {
			t.Fatalf("Decrypt(%q) succeeded, expected error", input)
		}
	}
}

func TestNewEncryptorRejectsShortKey(t *testing.T) {
	if _, err := NewEncryptor([]byte("short")); err != ErrInvalidKey {
		t.Fatalf("err=%v, expected ErrInvalidKey", err)
	}
}
