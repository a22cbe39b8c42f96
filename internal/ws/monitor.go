package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/chatgalaxy/internal/config"
)

// Monitor evicts connections that stop sending liveness signals. One
// monitor serves the whole registry; it never spawns per-connection timers.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a heartbeat monitor for the registry
func NewMonitor(registry *Registry, cfg config.WebSocketConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		interval: cfg.Interval(),
		timeout:  cfg.Timeout(),
		logger:   logger,
	}
}

// Run sweeps the registry once per interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep probes connections that missed one interval and evicts those past
// the timeout. A failure on one connection never stops the sweep; the probe
// itself evicts on write failure. Probes do not refresh liveness, so a peer
// that only ever absorbs writes still times out.
func (m *Monitor) sweep(now time.Time) {
	for _, conn := range m.registry.snapshot() {
		idle := now.Sub(conn.lastSeen())
		switch {
		case idle > m.timeout:
			m.logger.Warn("heartbeat timeout, evicting connection",
				zap.String("connection_id", conn.ID),
				zap.Duration("idle", idle),
			)
			m.registry.Unregister(conn.ID)
		case idle > m.interval:
			m.registry.probe(conn.ID, signal(KindHeartbeatRequest))
		}
	}
}
