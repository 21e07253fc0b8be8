package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TWITCH_CLIENT_ID", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME",
		"TWITCH_SCOPES", "DATA_DIR", "HTTP_ADDR", "TOKEN_ENC_KEY", "WELCOME_DISABLED"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if len(cfg.Scopes) == 0 || cfg.Scopes[0] != "chat:read" {
		t.Errorf("Scopes = %v, want chat defaults", cfg.Scopes)
	}
	if cfg.WelcomeDisabled {
		t.Error("WelcomeDisabled should default to false")
	}
}

func TestLoadScopesSplit(t *testing.T) {
	t.Setenv("TWITCH_SCOPES", "chat:read  chat:edit")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[1] != "chat:edit" {
		t.Fatalf("Scopes = %v", cfg.Scopes)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{ClientID: "cid", Channel: "chan", BotUsername: "bot"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.Channel = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should fail without a channel")
	}
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/bot"}
	if got := cfg.TokenPath(); got != filepath.Join("/tmp/bot", "oauth_token.json") {
		t.Errorf("TokenPath = %q", got)
	}
	if got := cfg.KnownUsersPath(); got != filepath.Join("/tmp/bot", "known_users.txt") {
		t.Errorf("KnownUsersPath = %q", got)
	}
}

func TestWriteEnvExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.example")
	if err := WriteEnvExample(path); err != nil {
		t.Fatalf("WriteEnvExample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, key := range []string{"TWITCH_CLIENT_ID", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TOKEN_ENC_KEY"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("env example missing %s", key)
		}
	}
}
