// Package chat delivers outbound messages to Twitch channels over two
// transports: a persistent IRC connection (cheap per message, primary) and
// the Helix REST API (authoritative, richer failure detail). The client hides
// transport selection and credential-refresh recovery from callers.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
	"github.com/onnwee/streambot/twitchauth"
)

// Message is one inbound chat line, decoupled from the IRC library's types so
// consumers (commands, welcomes) can be exercised without a live connection.
type Message struct {
	ID       string
	Channel  string
	UserID   string
	UserName string
	Text     string
}

// Deliverer is the outbound capability the rest of the bot consumes.
// Production uses *Client; tests substitute doubles.
type Deliverer interface {
	Join(ctx context.Context, channel string) error
	SendMessage(ctx context.Context, channel, text string) error
	SendReply(ctx context.Context, channel, text, replyTo string) error
}

// StreamConn is one live streaming-transport connection, keyed to the token
// it was built with.
type StreamConn interface {
	Join(channel string) error
	Say(channel, text string) error
	Close() error
}

// StreamFactory builds a StreamConn for a login and bearer token. The client
// rebuilds the connection through it whenever the token is refreshed.
type StreamFactory func(username, accessToken string) StreamConn

// Client is the dual-transport delivery client.
type Client struct {
	Username  string
	Tokens    *twitchauth.Manager
	Helix     *twitchapi.HelixClient
	NewStream StreamFactory

	mu     sync.Mutex
	stream StreamConn
}

var _ Deliverer = (*Client)(nil)

// isAuthError matches the streaming library's authentication failure wording.
func isAuthError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "authentication")
}

// conn returns the current stream connection, dialing one on first use.
func (c *Client) conn(ctx context.Context) (StreamConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	return c.rebuildLocked(ctx, false)
}

// rebuild replaces the stream connection with one built on a force-refreshed
// token. Used after the transport rejected a token that still looked fresh.
func (c *Client) rebuild(ctx context.Context) (StreamConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx, true)
}

func (c *Client) rebuildLocked(ctx context.Context, force bool) (StreamConn, error) {
	var tok string
	var err error
	if force {
		tok, err = c.Tokens.Refresh(ctx)
	} else {
		tok, err = c.Tokens.GetValidToken(ctx)
	}
	if err != nil {
		return nil, err
	}
	if c.stream != nil {
		if cerr := c.stream.Close(); cerr != nil {
			slog.Debug("closing stale stream connection", slog.Any("err", cerr))
		}
	}
	c.stream = c.NewStream(c.Username, tok)
	return c.stream, nil
}

// Join joins a channel over the streaming transport. An auth-flavored
// failure triggers one rebuild-and-retry with a refreshed token; a residual
// failure is logged rather than returned, because the bot can still deliver
// through the REST path.
func (c *Client) Join(ctx context.Context, channel string) error {
	channel = twitchapi.NormalizeChannel(channel)

	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	err = conn.Join(channel)
	if err == nil {
		slog.Info("joined channel", slog.String("channel", channel))
		return nil
	}
	slog.Warn("stream join failed", slog.String("channel", channel), slog.Any("err", err))
	if !isAuthError(err) {
		return nil
	}

	conn, err = c.rebuild(ctx)
	if err != nil {
		return err
	}
	if err := conn.Join(channel); err != nil {
		slog.Warn("stream join retry failed after token refresh",
			slog.String("channel", channel), slog.Any("err", err))
	} else {
		slog.Info("joined channel after token refresh", slog.String("channel", channel))
	}
	return nil
}

// SendMessage delivers text to a channel, preferring the streaming transport.
// An auth-flavored stream failure gets one refresh-and-retry; that residual
// failure, or any other stream failure, falls back to the Helix REST path
// exactly once.
func (c *Client) SendMessage(ctx context.Context, channel, text string) error {
	channel = twitchapi.NormalizeChannel(channel)
	ctx, span := telemetry.StartSpan(ctx, "chat", "send_message",
		attribute.String("channel", channel))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.ObserveSendDuration(time.Since(start)) }()

	conn, err := c.conn(ctx)
	if err == nil {
		if err = conn.Say(channel, text); err == nil {
			telemetry.CountStreamSend()
			return nil
		}
		if isAuthError(err) {
			slog.Warn("stream send rejected; refreshing token", slog.Any("err", err))
			if conn, err = c.rebuild(ctx); err == nil {
				if err = conn.Say(channel, text); err == nil {
					telemetry.CountStreamSend()
					return nil
				}
			}
		}
		slog.Warn("stream send failed; falling back to helix", slog.Any("err", err))
	} else {
		slog.Warn("stream unavailable; falling back to helix", slog.Any("err", err))
	}

	telemetry.CountDeliveryFallback()
	if _, herr := c.Helix.SendChatMessage(ctx, channel, text, ""); herr != nil {
		telemetry.RecordError(span, herr)
		return herr
	}
	telemetry.CountHelixSend()
	return nil
}

// SendReply replies to a specific message. The streaming transport has no
// reply primitive, so this is Helix-only with no fallback.
func (c *Client) SendReply(ctx context.Context, channel, text, replyTo string) error {
	if _, err := c.Helix.SendChatMessage(ctx, channel, text, replyTo); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	telemetry.CountHelixSend()
	return nil
}

// Close tears down the stream connection if one is up.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}
