// Command streambot is a Twitch chat bot. It authenticates with the OAuth
// device-code flow, keeps the credential fresh for the life of the process,
// and delivers messages over IRC with a Helix REST fallback.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/streambot/bot"
	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/config"
	"github.com/onnwee/streambot/crypto"
	"github.com/onnwee/streambot/server"
	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
	"github.com/onnwee/streambot/twitchauth"
	"github.com/onnwee/streambot/users"
)

const version = "1.0.0"

var (
	flagDebug  bool
	flagPrefix string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "streambot",
		Short:        "A Twitch chat bot that runs locally",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), "")
		},
	}
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&flagPrefix, "prefix", "p", "!", "command prefix")

	var startChannel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), startChannel)
		},
	}
	startCmd.Flags().StringVarP(&startChannel, "channel", "c", "", "channel to join (overrides TWITCH_CHANNEL)")

	var authForce bool
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Twitch and save the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd.Context(), authForce)
		},
	}
	authCmd.Flags().BoolVarP(&authForce, "force", "f", false, "re-authenticate even if a saved token exists")

	genEnvCmd := &cobra.Command{
		Use:   "gen-env [path]",
		Short: "Generate a sample .env file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ".env.example"
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.WriteEnvExample(path); err != nil {
				return err
			}
			slog.Info("sample env file generated", slog.String("path", path))
			return nil
		},
	}

	root.AddCommand(startCmd, authCmd, genEnvCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func initLogging() {
	lvl := slog.LevelInfo
	if flagDebug {
		lvl = slog.LevelDebug
	} else {
		switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
		case "debug":
			lvl = slog.LevelDebug
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		}
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

func newTokenManager(cfg *config.Config) (*twitchauth.Manager, error) {
	m := &twitchauth.Manager{
		ClientID: cfg.ClientID,
		Scopes:   cfg.Scopes,
		SavePath: cfg.TokenPath(),
	}
	if cfg.TokenEncKey != "" {
		enc, err := crypto.NewAESEncryptor(cfg.TokenEncKey)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_ENC_KEY: %w", err)
		}
		m.Encryptor = enc
	}
	return m, nil
}

// ensureAuthenticated loads the persisted credential and, when none is
// usable, runs the device-code flow and saves the result. A corrupt token
// file is re-authenticated, not fatal.
func ensureAuthenticated(ctx context.Context, mgr *twitchauth.Manager, path string, force bool) error {
	if !force {
		switch err := mgr.Load(path); {
		case err == nil:
			slog.Info("loaded saved token", slog.String("path", path))
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("no saved token; authentication required", slog.String("path", path))
		case errors.Is(err, twitchauth.ErrCorruptToken):
			slog.Warn("saved token unreadable; re-authenticating", slog.Any("err", err))
		default:
			return err
		}
	}
	if mgr.IsAuthenticated() && !force {
		return nil
	}
	if err := mgr.Authenticate(ctx); err != nil {
		return err
	}
	if err := mgr.Save(path); err != nil {
		return err
	}
	slog.Info("token saved", slog.String("path", path))
	return nil
}

func runAuth(ctx context.Context, force bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.ClientID == "" {
		return errors.New("TWITCH_CLIENT_ID not set")
	}
	mgr, err := newTokenManager(cfg)
	if err != nil {
		return err
	}
	if !force {
		if err := mgr.Load(cfg.TokenPath()); err == nil {
			fmt.Println("Existing token loaded. Use --force to re-authenticate.")
			return nil
		}
	}
	return ensureAuthenticated(ctx, mgr, cfg.TokenPath(), true)
}

func runStart(ctx context.Context, channelOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if channelOverride != "" {
		cfg.Channel = channelOverride
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("streambot", version)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	mgr, err := newTokenManager(cfg)
	if err != nil {
		return err
	}
	// The bot cannot operate without a credential; a failed initial auth
	// aborts startup. Later refresh failures only degrade delivery.
	if err := ensureAuthenticated(ctx, mgr, cfg.TokenPath(), false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	twitchauth.StartRefresher(ctx, mgr, 5*time.Minute)

	helix := &twitchapi.HelixClient{Tokens: mgr, ClientID: cfg.ClientID}

	tracker := users.NewTracker(cfg.KnownUsersPath())
	if err := tracker.Load(); err != nil {
		slog.Warn("loading known users", slog.Any("err", err))
	}

	inbound := make(chan chat.Message, 64)
	client := &chat.Client{
		Username: cfg.BotUsername,
		Tokens:   mgr,
		Helix:    helix,
		NewStream: chat.NewIRCStream(func(m chat.Message) {
			select {
			case inbound <- m:
			default:
				slog.Warn("inbound queue full; dropping message",
					slog.String("channel", m.Channel))
			}
		}),
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("closing chat client", slog.Any("err", err))
		}
	}()

	registry := bot.NewRegistry()
	registry.Register("ping", bot.PingCommand{})
	registry.Register("uptime", bot.NewUptimeCommand())
	registry.Register("8ball", bot.EightBallCommand{})
	registry.Register("help", &bot.HelpCommand{Prefix: flagPrefix, Registry: registry})
	handler := &bot.Handler{Deliverer: client, Registry: registry, Prefix: flagPrefix}
	welcomer := &users.Welcomer{Deliverer: client, Tracker: tracker, Disabled: cfg.WelcomeDisabled}

	if err := client.Join(ctx, cfg.Channel); err != nil {
		return err
	}

	startedAt := time.Now()
	go func() {
		status := func() server.Status {
			return server.Status{
				Authenticated: mgr.IsAuthenticated(),
				Channel:       cfg.Channel,
				StartedAt:     startedAt,
				UptimeSeconds: int64(time.Since(startedAt).Seconds()),
				KnownUsers:    tracker.Count(),
			}
		}
		if err := server.Start(ctx, cfg.HTTPAddr, status); err != nil {
			slog.Error("http server exited", slog.Any("err", err))
		}
	}()

	// Single worker: inbound messages are handled sequentially, so command
	// responses and welcomes never interleave mid-send.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-inbound:
				mctx := telemetry.WithCorrelation(ctx, uuid.New().String())
				log := telemetry.LoggerWithCorr(mctx)
				log.Debug("chat message",
					slog.String("channel", msg.Channel), slog.String("user", msg.UserName))
				if err := welcomer.HandleMessage(mctx, msg); err != nil {
					log.Error("welcome failed", slog.Any("err", err))
				}
				if err := handler.HandleMessage(mctx, msg); err != nil {
					log.Error("command handling failed", slog.Any("err", err))
				}
			}
		}
	}()

	if err := client.SendMessage(ctx, cfg.Channel, "Chat bot is now online!"); err != nil {
		slog.Warn("online greeting failed", slog.Any("err", err))
	}

	slog.Info("bot running",
		slog.String("channel", cfg.Channel), slog.String("prefix", flagPrefix))
	<-ctx.Done()

	slog.Info("shutting down")
	if err := tracker.Save(); err != nil {
		slog.Error("saving known users", slog.Any("err", err))
	}
	return nil
}
