package twitchauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Save persists the current credential to path as JSON, written atomically
// (temp file then rename) with owner-only permissions. When an Encryptor is
// configured the body is encrypted at rest.
func (m *Manager) Save(path string) error {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	cred := *m.cred
	m.mu.Unlock()

	data, err := json.MarshalIndent(&cred, "", "  ")
	if err != nil {
		return err
	}
	if m.Encryptor != nil {
		enc, err := m.Encryptor.Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt token: %w", err)
		}
		data = enc
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a previously saved credential into the manager. A missing file
// surfaces as fs.ErrNotExist so callers can treat it as "never
// authenticated"; decrypt or parse failures wrap ErrCorruptToken so callers
// can fall back to a fresh device-code flow instead of crashing.
//
// ObtainedAt is set to load time. Token lifetimes are hours while restarts
// are seconds, so treating the saved token as just-issued only costs an early
// refresh in the worst case.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if m.Encryptor != nil {
		plain, err := m.Encryptor.Decrypt(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptToken, err)
		}
		data = plain
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return fmt.Errorf("%w: missing token fields", ErrCorruptToken)
	}
	cred.ObtainedAt = time.Now()

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()
	return nil
}
