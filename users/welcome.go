package users

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/telemetry"
)

var defaultWelcomeMessages = []string{
	"Welcome to the stream, {username}!",
	"Hey {username}, glad you could make it!",
	"{username} has joined the chat, say hi everyone!",
	"A wild {username} appeared!",
	"Welcome aboard, {username}!",
	"Good to see you, {username}!",
	"{username} just showed up, the stream is now complete!",
	"Everyone say hello to {username}!",
	"Look who it is, it's {username}!",
	"Welcome {username}, make yourself at home!",
}

// Welcomer greets first-time chatters with a randomly chosen template.
type Welcomer struct {
	Deliverer chat.Deliverer
	Tracker   *Tracker
	Messages  []string // templates with a {username} placeholder
	Disabled  bool
}

func (w *Welcomer) message(username string) string {
	msgs := w.Messages
	if len(msgs) == 0 {
		msgs = defaultWelcomeMessages
	}
	tmpl := msgs[rand.Intn(len(msgs))] //nolint:gosec // G404: greeting variety, not security
	return strings.ReplaceAll(tmpl, "{username}", username)
}

// HandleMessage greets the sender if this is the first message ever seen
// from their user id.
func (w *Welcomer) HandleMessage(ctx context.Context, msg chat.Message) error {
	if w.Disabled {
		return nil
	}
	if !w.Tracker.MarkSeen(msg.UserID) {
		return nil
	}
	slog.Info("first-time chatter",
		slog.String("user", msg.UserName), slog.String("id", msg.UserID))
	telemetry.CountWelcome()
	return w.Deliverer.SendMessage(ctx, msg.Channel, w.message(msg.UserName))
}
