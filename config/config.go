// Package config loads environment variables into a typed Config used across
// the bot. It applies sensible defaults so the binary runs locally with
// minimal setup; required credentials are checked by Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// Twitch
	ClientID    string
	Channel     string
	BotUsername string
	Scopes      []string

	// Storage
	DataDir string

	// Operational HTTP surface
	HTTPAddr string

	// Optional base64 32-byte key; encrypts the token file at rest.
	TokenEncKey string

	WelcomeDisabled bool
}

// Load reads environment variables and applies defaults. It never fails on
// missing credentials; call Validate before starting the bot.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.Channel = os.Getenv("TWITCH_CHANNEL")
	cfg.BotUsername = os.Getenv("TWITCH_BOT_USERNAME")

	scopes := os.Getenv("TWITCH_SCOPES")
	if scopes == "" {
		// chat scopes plus what Helix needs for user lookup and sends
		scopes = "chat:read chat:edit user:read:email user:write:chat"
	}
	cfg.Scopes = strings.Fields(scopes)

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.TokenEncKey = os.Getenv("TOKEN_ENC_KEY")
	cfg.WelcomeDisabled = os.Getenv("WELCOME_DISABLED") == "1"

	return cfg, nil
}

// Validate checks the fields required to run the bot.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.Channel == "" || c.BotUsername == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CHANNEL, TWITCH_BOT_USERNAME")
	}
	return nil
}

// TokenPath is where the OAuth credential is persisted.
func (c *Config) TokenPath() string {
	return filepath.Join(c.DataDir, "oauth_token.json")
}

// KnownUsersPath is where first-time chatter state is persisted.
func (c *Config) KnownUsersPath() string {
	return filepath.Join(c.DataDir, "known_users.txt")
}

const envExample = `# Your Twitch application client ID (Twitch Developer Dashboard)
TWITCH_CLIENT_ID=your_client_id_here

# The channel to join
TWITCH_CHANNEL=channel_name

# The bot account's username
TWITCH_BOT_USERNAME=your_bot_username

# Optional: space-separated OAuth scopes
# TWITCH_SCOPES=chat:read chat:edit user:read:email user:write:chat

# Optional: data directory for the token file and known-user list
# DATA_DIR=./data

# Optional: operational HTTP listen address (healthz/status/metrics)
# HTTP_ADDR=:8080

# Optional: base64 32-byte key to encrypt the token file at rest
# (generate with: openssl rand -base64 32)
# TOKEN_ENC_KEY=

# Optional: set to 1 to disable first-time chatter greetings
# WELCOME_DISABLED=0
`

// WriteEnvExample writes a starter .env file to path.
func WriteEnvExample(path string) error {
	return os.WriteFile(path, []byte(envExample), 0o644)
}
