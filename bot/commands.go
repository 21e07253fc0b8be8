// Package bot implements prefix command dispatch over the chat delivery
// client: a named command registry plus the built-in commands.
package bot

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/streambot/chat"
)

// Command handles a single named chat command.
type Command interface {
	// Execute returns the response to send, or "" for no response.
	Execute(msg chat.Message, args []string) (string, error)
	// Help is the one-line description shown by the help command.
	Help() string
}

// Registry maps command names to handlers. Names are case-insensitive.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

func (r *Registry) Register(name string, cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[strings.ToLower(name)] = cmd
}

func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[strings.ToLower(name)]
	return cmd, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PingCommand echoes back to confirm the bot sees chat.
type PingCommand struct{}

func (PingCommand) Execute(msg chat.Message, _ []string) (string, error) {
	return fmt.Sprintf("Pong! Received from %s who said: %s", msg.UserName, msg.Text), nil
}

func (PingCommand) Help() string { return "Responds with Pong!" }

// UptimeCommand reports how long the bot process has been running.
type UptimeCommand struct {
	startedAt time.Time
}

func NewUptimeCommand() *UptimeCommand {
	return &UptimeCommand{startedAt: time.Now()}
}

func (c *UptimeCommand) Execute(_ chat.Message, _ []string) (string, error) {
	elapsed := time.Since(c.startedAt)
	h := int(elapsed.Hours())
	m := int(elapsed.Minutes()) % 60
	s := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("Bot has been running for %dh %dm %ds", h, m, s), nil
}

func (c *UptimeCommand) Help() string { return "Shows how long the bot has been running" }

var eightBallAnswers = []string{
	"It is certain",
	"It is decidedly so",
	"Without a doubt",
	"Yes definitely",
	"You may rely on it",
	"As I see it, yes",
	"Most likely",
	"Outlook good",
	"Yes",
	"Signs point to yes",
	"Don't count on it",
	"My reply is no",
	"My sources say no",
	"Outlook not so good",
	"Very doubtful",
	"Reply hazy, try again",
	"Ask again later",
	"Better not tell you now",
	"Cannot predict now",
	"Concentrate and ask again",
}

// EightBallCommand answers yes/no questions with Magic 8-Ball wisdom.
type EightBallCommand struct{}

func (EightBallCommand) Execute(_ chat.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Ask me a question and I shall reveal your fate!", nil
	}
	return eightBallAnswers[rand.Intn(len(eightBallAnswers))], nil //nolint:gosec // G404: chat entertainment, not security
}

func (EightBallCommand) Help() string {
	return "Ask the Magic 8-Ball a yes/no question. Usage: !8ball <question>"
}

// HelpCommand lists commands or describes one of them.
type HelpCommand struct {
	Prefix   string
	Registry *Registry
}

func (c *HelpCommand) Execute(_ chat.Message, args []string) (string, error) {
	if len(args) == 0 {
		names := c.Registry.Names()
		for i := range names {
			names[i] = c.Prefix + names[i]
		}
		return "Available commands: " + strings.Join(names, ", "), nil
	}
	if cmd, ok := c.Registry.Get(args[0]); ok {
		return cmd.Help(), nil
	}
	return fmt.Sprintf("Unknown command: %s%s", c.Prefix, strings.ToLower(args[0])), nil
}

func (c *HelpCommand) Help() string { return "Shows help information for available commands" }
