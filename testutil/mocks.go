// Package testutil provides a mock Twitch API server for package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer serves canned Helix and OAuth responses, keyed by path.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a mock Twitch API server that is torn down
// with the test.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse serves /helix/users with a single user.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		})
	}
}

// MockChatMessageResponse serves /helix/chat/messages. A non-empty dropCode
// marks the message as not sent with that drop reason.
func (m *MockTwitchServer) MockChatMessageResponse(messageID, dropCode, dropMessage string) {
	m.Handlers["/helix/chat/messages"] = func(w http.ResponseWriter, _ *http.Request) {
		entry := map[string]any{
			"message_id": messageID,
			"is_sent":    dropCode == "",
		}
		if dropCode != "" {
			entry["drop_reason"] = map[string]string{"code": dropCode, "message": dropMessage}
		}
		writeJSON(w, map[string]any{"data": []map[string]any{entry}})
	}
}

// MockOAuthTokenResponse serves /oauth2/token with a refresh-grant style
// credential.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"scope":         []string{"chat:read", "chat:edit"},
			"token_type":    "bearer",
		})
	}
}

// MockDeviceCodeResponse serves /oauth2/device.
func (m *MockTwitchServer) MockDeviceCodeResponse(deviceCode, userCode string, expiresIn, interval int) {
	m.Handlers["/oauth2/device"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"device_code":      deviceCode,
			"user_code":        userCode,
			"verification_uri": "https://www.twitch.tv/activate",
			"expires_in":       expiresIn,
			"interval":         interval,
		})
	}
}
