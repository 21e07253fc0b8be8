// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	StreamSends          prometheus.Counter
	HelixSends           prometheus.Counter
	DeliveryFallbacks    prometheus.Counter
	TokenRefreshes       prometheus.Counter
	TokenRefreshFailures prometheus.Counter
	CommandsExecuted     prometheus.Counter
	WelcomesSent         prometheus.Counter

	// Histograms (seconds)
	SendDuration prometheus.Observer
)

// Init registers metrics (idempotent). Packages increment through the nil-safe
// Count helpers below, so tests that never call Init record nothing.
func Init() {
	once.Do(func() {
		StreamSends = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_stream_sends_total", Help: "Messages delivered over the IRC streaming transport"})
		HelixSends = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_helix_sends_total", Help: "Messages delivered over the Helix REST transport"})
		DeliveryFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_delivery_fallbacks_total", Help: "Sends that fell back from streaming to the REST path"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "oauth_token_refreshes_total", Help: "Successful OAuth token refreshes"})
		TokenRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "oauth_token_refresh_failures_total", Help: "Failed OAuth token refreshes (credential cleared)"})
		CommandsExecuted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_commands_executed_total", Help: "Chat commands dispatched"})
		WelcomesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_welcomes_sent_total", Help: "First-time chatter greetings sent"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_send_duration_seconds", Help: "End-to-end message send duration seconds", Buckets: prometheus.DefBuckets})
	})
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func CountStreamSend()          { inc(StreamSends) }
func CountHelixSend()           { inc(HelixSends) }
func CountDeliveryFallback()    { inc(DeliveryFallbacks) }
func CountTokenRefresh()        { inc(TokenRefreshes) }
func CountTokenRefreshFailure() { inc(TokenRefreshFailures) }
func CountCommand()             { inc(CommandsExecuted) }
func CountWelcome()             { inc(WelcomesSent) }

// ObserveSendDuration records one send duration if metrics are initialized.
func ObserveSendDuration(d time.Duration) {
	if SendDuration != nil {
		SendDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or an empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
