package chat

import (
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// NewIRCStream returns a StreamFactory backed by the Twitch IRC library.
// onMessage, when non-nil, receives every PRIVMSG seen on joined channels.
func NewIRCStream(onMessage func(Message)) StreamFactory {
	return func(username, accessToken string) StreamConn {
		// The IRC PASS line wants the oauth: prefix; Helix wants the bare
		// token. Add it here so the token manager stays transport-agnostic.
		if !strings.HasPrefix(accessToken, "oauth:") {
			accessToken = "oauth:" + accessToken
		}
		client := twitch.NewClient(username, accessToken)
		conn := &ircConn{client: client}

		client.OnConnect(func() {
			slog.Info("irc connected", slog.String("username", username))
		})
		if onMessage != nil {
			client.OnPrivateMessage(func(m twitch.PrivateMessage) {
				onMessage(Message{
					ID:       m.ID,
					Channel:  m.Channel,
					UserID:   m.User.ID,
					UserName: m.User.DisplayName,
					Text:     m.Message,
				})
			})
		}

		go func() {
			// Connect blocks for the connection lifetime. Its error, for
			// example a login authentication failure, is recorded here and
			// surfaced on the next Join or Say attempt.
			if err := client.Connect(); err != nil {
				conn.mu.Lock()
				conn.err = err
				conn.mu.Unlock()
			}
		}()
		return conn
	}
}

type ircConn struct {
	client *twitch.Client
	mu     sync.Mutex
	err    error
}

func (c *ircConn) lastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ircConn) Join(channel string) error {
	if err := c.lastErr(); err != nil {
		return err
	}
	c.client.Join(channel)
	return nil
}

func (c *ircConn) Say(channel, text string) error {
	if err := c.lastErr(); err != nil {
		return err
	}
	c.client.Say(channel, text)
	return nil
}

func (c *ircConn) Close() error {
	return c.client.Disconnect()
}
