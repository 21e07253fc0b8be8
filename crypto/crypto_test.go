package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestNewAESEncryptorKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", testKey(0x42), false},
		{"empty", "", true},
		{"not base64", "not-base64!!!", true},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(0x42))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := []byte(`{"access_token":"secret"}`)

	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, []byte("secret")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEncryptNonceVaries(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(0x42))
	a, _ := enc.Encrypt([]byte("same input"))
	b, _ := enc.Encrypt([]byte("same input"))
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext produced identical output")
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(0x42))
	ciphertext, err := enc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF
	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Fatal("tampered ciphertext decrypted without error")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(0x42))
	other, _ := NewAESEncryptor(testKey(0x24))
	ciphertext, _ := enc.Encrypt([]byte("payload"))
	if _, err := other.Decrypt(ciphertext); err == nil {
		t.Fatal("wrong key decrypted without error")
	}
}

func TestDecryptTooShort(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(0x42))
	if _, err := enc.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Fatal("short ciphertext decrypted without error")
	}
}
