// Package twitchapi is the Helix REST adapter used for chat delivery: cached
// user id resolution and message send/reply with drop-reason inspection. It
// is both the authoritative path for replies and the fallback path when the
// streaming transport fails.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.twitch.tv"

// ErrUserNotFound means a login resolved to no Helix user.
var ErrUserNotFound = errors.New("user not found")

// DropError reports a message the API accepted over HTTP but declined to
// deliver, carrying the platform's reason verbatim.
type DropError struct {
	Code    string
	Message string
}

func (e *DropError) Error() string {
	return fmt.Sprintf("message dropped: %s: %s", e.Code, e.Message)
}

// BearerSource yields a currently valid user access token.
type BearerSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// defaultHTTPClient bounds every Helix call; chat delivery should fail fast
// rather than hang on a stuck connection.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// HelixClient performs the chat-related Helix calls on behalf of the bot.
// The zero value plus Tokens and ClientID is ready to use.
type HelixClient struct {
	Tokens     BearerSource
	ClientID   string
	HTTPClient *http.Client
	BaseURL    string // test override

	mu        sync.Mutex
	botUserID string
	userIDs   map[string]string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultBaseURL
}

// NormalizeChannel lowercases a channel name and strips any leading '#'.
// Idempotent; applied at every transport boundary so callers never have to
// care which form they hold.
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimPrefix(channel, "#"))
}

// ResolveUserID resolves a login name to its numeric user id. Results are
// cached for the process lifetime; ids never change for a given login.
func (hc *HelixClient) ResolveUserID(ctx context.Context, login string) (string, error) {
	login = NormalizeChannel(login)
	if login == "" {
		return "", fmt.Errorf("login is empty")
	}

	hc.mu.Lock()
	if id, ok := hc.userIDs[login]; ok {
		hc.mu.Unlock()
		return id, nil
	}
	hc.mu.Unlock()

	id, err := hc.lookupUser(ctx, login)
	if err != nil {
		return "", err
	}

	hc.mu.Lock()
	if hc.userIDs == nil {
		hc.userIDs = make(map[string]string)
	}
	hc.userIDs[login] = id
	hc.mu.Unlock()

	slog.Debug("resolved user id", slog.String("login", login), slog.String("id", id))
	return id, nil
}

// BotUserID resolves and caches the id of the user the bearer token belongs
// to, i.e. the bot account itself.
func (hc *HelixClient) BotUserID(ctx context.Context) (string, error) {
	hc.mu.Lock()
	if hc.botUserID != "" {
		id := hc.botUserID
		hc.mu.Unlock()
		return id, nil
	}
	hc.mu.Unlock()

	id, err := hc.lookupUser(ctx, "")
	if err != nil {
		return "", err
	}

	hc.mu.Lock()
	hc.botUserID = id
	hc.mu.Unlock()
	return id, nil
}

// lookupUser calls GET /helix/users. An empty login asks about the token
// owner.
func (hc *HelixClient) lookupUser(ctx context.Context, login string) (string, error) {
	tok, err := hc.Tokens.GetValidToken(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/helix/users", nil)
	if err != nil {
		return "", err
	}
	if login != "" {
		q := req.URL.Query()
		q.Set("login", login)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix user lookup failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("helix user lookup failed: decode response: %w", err)
	}
	if len(body.Data) == 0 {
		if login == "" {
			return "", fmt.Errorf("%w: token owner", ErrUserNotFound)
		}
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return body.Data[0].ID, nil
}

// SendChatMessage delivers text to a channel via POST /helix/chat/messages,
// optionally as a reply to an existing message. HTTP success alone is not
// delivery: the per-message is_sent flag decides, with drops surfaced as a
// *DropError. Returns the platform message id on success.
func (hc *HelixClient) SendChatMessage(ctx context.Context, channel, text, replyTo string) (string, error) {
	channel = NormalizeChannel(channel)

	senderID, err := hc.BotUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve bot user: %w", err)
	}
	broadcasterID, err := hc.ResolveUserID(ctx, channel)
	if err != nil {
		return "", fmt.Errorf("resolve channel %q: %w", channel, err)
	}
	tok, err := hc.Tokens.GetValidToken(ctx)
	if err != nil {
		return "", err
	}

	payload := struct {
		BroadcasterID        string `json:"broadcaster_id"`
		SenderID             string `json:"sender_id"`
		Message              string `json:"message"`
		ReplyParentMessageID string `json:"reply_parent_message_id,omitempty"`
	}{broadcasterID, senderID, text, replyTo}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.base()+"/helix/chat/messages", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix send message failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var body struct {
		Data []struct {
			MessageID  string `json:"message_id"`
			IsSent     bool   `json:"is_sent"`
			DropReason *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"drop_reason"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("helix send message failed: decode response: %w", err)
	}
	if len(body.Data) == 0 {
		return "", errors.New("helix send message failed: empty data")
	}
	d := body.Data[0]
	if !d.IsSent {
		if d.DropReason != nil {
			return "", &DropError{Code: d.DropReason.Code, Message: d.DropReason.Message}
		}
		return "", &DropError{Code: "unknown", Message: "message not sent"}
	}
	return d.MessageID, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
