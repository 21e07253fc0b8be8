// Package twitchauth manages the bot's user OAuth credential: first-time
// authentication via the device-code grant, transparent refresh ahead of
// expiry, and persistence of the credential to disk between runs.
//
// The credential is a user (bot account) token carrying chat scopes. App
// access tokens cannot speak in chat, so everything here goes through the
// device-code and refresh-token grants of the id service.
package twitchauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/endpoints"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/streambot/crypto"
	"github.com/onnwee/streambot/telemetry"
)

// expiryMargin is how close to expiry a token may get before GetValidToken
// refreshes it. Absorbs clock skew and in-flight request latency.
const expiryMargin = 10 * time.Minute

// Credential is the token material returned by the id service. ObtainedAt is
// process-local bookkeeping: set whenever the credential is (re)acquired or
// loaded from disk, never serialized.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	Scope        []string  `json:"scope"`
	TokenType    string    `json:"token_type"`
	ObtainedAt   time.Time `json:"-"`
}

// Manager owns the bot's OAuth credential. All token access goes through the
// manager; callers only ever receive copies of the bearer string.
type Manager struct {
	ClientID   string
	Scopes     []string
	HTTPClient *http.Client

	// Encryptor, when set, encrypts the token file at rest.
	Encryptor crypto.Encryptor

	// SavePath, when set, persists the credential after each successful
	// refresh so a rotated refresh token survives a restart.
	SavePath string

	// Endpoint overrides for tests. Zero values use the public Twitch ones.
	DeviceAuthURL string
	TokenURL      string

	mu    sync.Mutex
	cred  *Credential
	group singleflight.Group
}

func (m *Manager) http() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

func (m *Manager) tokenURL() string {
	if m.TokenURL != "" {
		return m.TokenURL
	}
	return endpoints.Twitch.TokenURL
}

func (m *Manager) deviceAuthURL() string {
	if m.DeviceAuthURL != "" {
		return m.DeviceAuthURL
	}
	// Twitch's device endpoint lives next to the token endpoint.
	return strings.TrimSuffix(endpoints.Twitch.TokenURL, "/token") + "/device"
}

// IsAuthenticated reports whether a credential is currently held. It says
// nothing about freshness; GetValidToken handles that.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil
}

// SetCredential installs a credential directly, stamping ObtainedAt if the
// caller left it zero. Used by tests and by the device/load paths.
func (m *Manager) SetCredential(cred Credential) {
	if cred.ObtainedAt.IsZero() {
		cred.ObtainedAt = time.Now()
	}
	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()
}

// freshLocked reports whether the held credential is still comfortably inside
// its lifetime. Callers must hold m.mu.
func (m *Manager) freshLocked() bool {
	lifetime := time.Duration(m.cred.ExpiresIn) * time.Second
	return time.Since(m.cred.ObtainedAt) < lifetime-expiryMargin
}

// GetValidToken returns a bearer token guaranteed to be at least ten minutes
// from expiry, refreshing first when needed. Concurrent callers share one
// refresh request.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if m.freshLocked() {
		tok := m.cred.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// A waiter that queued behind an in-flight refresh arrives here
		// after it completed; don't refresh again.
		m.mu.Lock()
		if m.cred != nil && m.freshLocked() {
			tok := m.cred.AccessToken
			m.mu.Unlock()
			return tok, nil
		}
		m.mu.Unlock()
		return m.refreshNow(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh forces a new access token regardless of the current token's age.
// Transports use this when the platform rejects a token that still looks
// fresh locally. Concurrent callers share one request.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refreshNow(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refreshNow(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred == nil || m.cred.RefreshToken == "" {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	refreshToken := m.cred.RefreshToken
	m.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", m.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http().Do(req)
	if err != nil {
		return "", m.refreshFailed(fmt.Errorf("%w: %v", ErrRefreshFailed, err))
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return "", m.refreshFailed(fmt.Errorf("%w: %s: %s", ErrRefreshFailed, resp.Status, strings.TrimSpace(string(b))))
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return "", m.refreshFailed(fmt.Errorf("%w: decode response: %v", ErrRefreshFailed, err))
	}
	cred.ObtainedAt = time.Now()

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()

	telemetry.CountTokenRefresh()
	slog.Debug("access token refreshed", slog.Int("expires_in", cred.ExpiresIn))

	if m.SavePath != "" {
		if err := m.Save(m.SavePath); err != nil {
			slog.Warn("persisting refreshed token failed", slog.Any("err", err))
		}
	}
	return cred.AccessToken, nil
}

// refreshFailed drops the credential: the refresh token was rejected or the
// response was unusable, so the only way forward is re-authentication.
func (m *Manager) refreshFailed(err error) error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
	telemetry.CountTokenRefreshFailure()
	slog.Warn("token refresh failed; credential cleared", slog.Any("err", err))
	return err
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
