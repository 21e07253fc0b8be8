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
	"time"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// DeviceCode is one device-code authorization session. It is shown to the
// operator once and never persisted.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

// RequestDeviceCode starts a device-code flow: the id service issues a user
// code for the operator to enter at the verification URI.
func (m *Manager) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{}
	form.Set("client_id", m.ClientID)
	form.Set("scopes", strings.Join(m.Scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.deviceAuthURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("device code request failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var dc DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		return nil, fmt.Errorf("device code request failed: decode response: %w", err)
	}
	return &dc, nil
}

// PollForToken polls the token endpoint at the server-supplied interval until
// the user approves the device code, the code's validity window elapses, or
// ctx is cancelled. On success the resulting credential is installed in the
// manager.
func (m *Manager) PollForToken(ctx context.Context, dc *DeviceCode) error {
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)
	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for time.Now().Before(deadline) {
		form := url.Values{}
		form.Set("client_id", m.ClientID)
		form.Set("scopes", strings.Join(m.Scopes, " "))
		form.Set("device_code", dc.DeviceCode)
		form.Set("grant_type", deviceGrantType)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL(), strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := m.http().Do(req)
		if err != nil {
			return fmt.Errorf("device token poll failed: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			var cred Credential
			err := json.NewDecoder(resp.Body).Decode(&cred)
			closeBody(resp)
			if err != nil {
				return fmt.Errorf("device token poll failed: decode response: %w", err)
			}
			m.SetCredential(cred)
			return nil
		}

		b, _ := io.ReadAll(resp.Body)
		closeBody(resp)
		body := string(b)

		// The id service reports "not yet" as an error payload; everything
		// else is fatal.
		if !strings.Contains(body, "authorization_pending") {
			return fmt.Errorf("device token poll failed: %s: %s", resp.Status, strings.TrimSpace(body))
		}
		slog.Debug("authorization pending", slog.Duration("wait", interval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return ErrAuthFlowTimedOut
}

// Authenticate runs the device-code flow end to end, printing the
// verification URL and user code for the operator to act on.
func (m *Manager) Authenticate(ctx context.Context) error {
	dc, err := m.RequestDeviceCode(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("=== Twitch Authentication Required ===")
	fmt.Printf("Please visit: %s\n", dc.VerificationURI)
	fmt.Printf("And enter the code: %s\n", dc.UserCode)
	fmt.Println("Waiting for authentication...")

	slog.Info("polling for device token",
		slog.Int("expires_in", dc.ExpiresIn),
		slog.Int("interval", dc.Interval))

	if err := m.PollForToken(ctx, dc); err != nil {
		return err
	}
	slog.Info("authentication successful")
	return nil
}
