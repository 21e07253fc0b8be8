package twitchauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, accessToken string, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"status":400,"message":"Invalid refresh token"}`))
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "new-refresh",
			"expires_in":    14400,
			"scope":         []string{"chat:read", "chat:edit"},
			"token_type":    "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func staleCredential() Credential {
	// 15 minute lifetime obtained 10 minutes ago: inside the safety margin.
	return Credential{
		AccessToken:  "old-token",
		RefreshToken: "old-refresh",
		ExpiresIn:    900,
		ObtainedAt:   time.Now().Add(-10 * time.Minute),
	}
}

func TestGetValidTokenNotAuthenticated(t *testing.T) {
	m := &Manager{ClientID: "cid"}
	if _, err := m.GetValidToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestGetValidTokenFreshSkipsNetwork(t *testing.T) {
	srv, calls := newTokenServer(t, "unused", http.StatusOK)
	m := &Manager{ClientID: "cid", TokenURL: srv.URL}
	m.SetCredential(Credential{AccessToken: "fresh", RefreshToken: "r", ExpiresIn: 3600})

	for i := 0; i < 2; i++ {
		tok, err := m.GetValidToken(context.Background())
		if err != nil {
			t.Fatalf("GetValidToken: %v", err)
		}
		if tok != "fresh" {
			t.Fatalf("token = %q, want fresh", tok)
		}
	}
	if *calls != 0 {
		t.Fatalf("token endpoint calls = %d, want 0", *calls)
	}
}

func TestGetValidTokenRefreshesNearExpiry(t *testing.T) {
	srv, calls := newTokenServer(t, "renewed", http.StatusOK)
	m := &Manager{ClientID: "cid", TokenURL: srv.URL}
	m.SetCredential(staleCredential())

	tok, err := m.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if tok != "renewed" {
		t.Fatalf("token = %q, want renewed", tok)
	}
	if *calls != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", *calls)
	}

	// The renewed credential is fresh; a second call must not hit the network.
	if _, err := m.GetValidToken(context.Background()); err != nil {
		t.Fatalf("second GetValidToken: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("token endpoint calls after second get = %d, want 1", *calls)
	}
}

func TestGetValidTokenConcurrentSingleFlight(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "renewed", "refresh_token": "r2", "expires_in": 14400,
		})
	}))
	t.Cleanup(srv.Close)

	m := &Manager{ClientID: "cid", TokenURL: srv.URL}
	m.SetCredential(staleCredential())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.GetValidToken(context.Background())
			if err != nil {
				t.Errorf("GetValidToken: %v", err)
				return
			}
			if tok != "renewed" {
				t.Errorf("token = %q, want renewed", tok)
			}
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", calls)
	}
}

func TestRefreshFailureClearsCredential(t *testing.T) {
	srv, _ := newTokenServer(t, "", http.StatusBadRequest)
	m := &Manager{ClientID: "cid", TokenURL: srv.URL}
	m.SetCredential(staleCredential())

	_, err := m.GetValidToken(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("err = %v, want ErrRefreshFailed", err)
	}
	if m.IsAuthenticated() {
		t.Fatal("manager still authenticated after failed refresh")
	}
	if _, err := m.GetValidToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err after cleared credential = %v, want ErrNotAuthenticated", err)
	}
}

func TestRefreshForcesNewTokenWhileFresh(t *testing.T) {
	srv, calls := newTokenServer(t, "forced", http.StatusOK)
	m := &Manager{ClientID: "cid", TokenURL: srv.URL}
	// Token looks fresh locally but the platform rejected it.
	m.SetCredential(Credential{AccessToken: "rejected", RefreshToken: "r", ExpiresIn: 3600})

	tok, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok != "forced" {
		t.Fatalf("token = %q, want forced", tok)
	}
	if *calls != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", *calls)
	}
}

func TestRefreshPersistsRotatedCredential(t *testing.T) {
	srv, _ := newTokenServer(t, "renewed", http.StatusOK)
	path := filepath.Join(t.TempDir(), "oauth_token.json")
	m := &Manager{ClientID: "cid", TokenURL: srv.URL, SavePath: path}
	m.SetCredential(staleCredential())

	if _, err := m.GetValidToken(context.Background()); err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}

	loaded := &Manager{ClientID: "cid"}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	tok, err := loaded.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken on loaded manager: %v", err)
	}
	if tok != "renewed" {
		t.Fatalf("persisted token = %q, want renewed", tok)
	}
}
