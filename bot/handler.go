package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/telemetry"
)

// Handler dispatches prefixed chat messages to registered commands. Responses
// go out as replies to the triggering message, falling back to a plain
// channel message when the reply path fails.
type Handler struct {
	Deliverer chat.Deliverer
	Registry  *Registry
	Prefix    string
}

// HandleMessage processes one inbound message. Non-prefixed text and unknown
// commands are ignored; command execution errors are logged, never fatal.
func (h *Handler) HandleMessage(ctx context.Context, msg chat.Message) error {
	content := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(content, h.Prefix) {
		return nil
	}
	parts := strings.Fields(content[len(h.Prefix):])
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := h.Registry.Get(name)
	if !ok {
		slog.Debug("unknown command", slog.String("command", name))
		return nil
	}

	response, err := cmd.Execute(msg, args)
	if err != nil {
		slog.Error("command execution failed",
			slog.String("command", name), slog.Any("err", err))
		return nil
	}
	if response == "" {
		return nil
	}

	telemetry.CountCommand()
	if err := h.Deliverer.SendReply(ctx, msg.Channel, response, msg.ID); err != nil {
		slog.Warn("reply failed; sending as plain message", slog.Any("err", err))
		return h.Deliverer.SendMessage(ctx, msg.Channel, response)
	}
	return nil
}
