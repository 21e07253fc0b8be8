package twitchauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// StartRefresher launches a goroutine that refreshes the credential ahead of
// use so interactive sends rarely pay the refresh round trip. The first wake
// is jittered to avoid synchronized refreshes across restarts. It stops when
// ctx is cancelled.
func StartRefresher(ctx context.Context, m *Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		jitter := time.Duration(rand.Int63n(int64(interval / 2))) //nolint:gosec // G404: scheduling jitter, not security
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
		for {
			m.maybeRefresh(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

func (m *Manager) maybeRefresh(ctx context.Context) {
	m.mu.Lock()
	stale := m.cred != nil && m.cred.RefreshToken != "" && !m.freshLocked()
	m.mu.Unlock()
	if !stale {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := m.Refresh(rctx); err != nil {
		slog.Warn("background token refresh failed", slog.Any("err", err))
		return
	}
	slog.Info("token refreshed ahead of expiry")
}
