package twitchauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/streambot/crypto"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_token.json")
	m := &Manager{ClientID: "cid"}
	m.SetCredential(Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    14400,
		Scope:        []string{"chat:read", "chat:edit"},
		TokenType:    "bearer",
	})

	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file mode = %o, want 0600", perm)
	}

	loaded := &Manager{ClientID: "cid"}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	tok, err := loaded.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if tok != "access" {
		t.Fatalf("token = %q, want access", tok)
	}
}

func TestSaveWithoutCredential(t *testing.T) {
	m := &Manager{ClientID: "cid"}
	err := m.Save(filepath.Join(t.TempDir(), "token.json"))
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	m := &Manager{ClientID: "cid"}
	err := m.Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
	}{
		{"not json", "definitely not json{"},
		{"missing fields", `{"scope":["chat:read"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			m := &Manager{ClientID: "cid"}
			if err := m.Load(path); !errors.Is(err, ErrCorruptToken) {
				t.Fatalf("err = %v, want ErrCorruptToken", err)
			}
		})
	}
}

func TestSaveLoadEncrypted(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}

	path := filepath.Join(t.TempDir(), "oauth_token.json")
	m := &Manager{ClientID: "cid", Encryptor: enc}
	m.SetCredential(Credential{AccessToken: "secret-access", RefreshToken: "r", ExpiresIn: 14400})
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-access")) {
		t.Fatal("token stored in plaintext despite encryptor")
	}

	loaded := &Manager{ClientID: "cid", Encryptor: enc}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok, err := loaded.GetValidToken(context.Background()); err != nil || tok != "secret-access" {
		t.Fatalf("round trip: tok=%q err=%v", tok, err)
	}

	wrongKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x24}, 32))
	wrongEnc, err := crypto.NewAESEncryptor(wrongKey)
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	bad := &Manager{ClientID: "cid", Encryptor: wrongEnc}
	if err := bad.Load(path); !errors.Is(err, ErrCorruptToken) {
		t.Fatalf("err with wrong key = %v, want ErrCorruptToken", err)
	}
}
