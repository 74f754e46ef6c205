package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketplace-chat/internal/models"
)

// PresenceRefresher extends the presence TTL of users still connected.
type PresenceRefresher interface {
	Refresh(userIDs []string)
}

// Monitor probes every connection on a fixed interval. A connection that
// has not answered the previous probe by the next tick is evicted, so a dead
// peer is dropped within two intervals.
type Monitor struct {
	registry    *Registry
	broadcaster *Broadcaster
	interval    time.Duration
	presence    PresenceRefresher
	now         func() time.Time
	log         *zap.Logger
}

// NewMonitor creates a liveness monitor. presence may be nil.
func NewMonitor(registry *Registry, broadcaster *Broadcaster, interval time.Duration, presence PresenceRefresher, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry:    registry,
		broadcaster: broadcaster,
		interval:    interval,
		presence:    presence,
		now:         time.Now,
		log:         log,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Info("liveness monitor started", zap.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("liveness monitor stopped")
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one probe round and returns the number of evicted connections.
func (m *Monitor) Tick() int {
	now := m.now()
	evicted := 0
	for _, conn := range m.registry.Snapshot() {
		if conn.SessionExpired(now) {
			if m.registry.Evict(conn.ID, ReasonSessionExpired) {
				evicted++
			}
			continue
		}
		if !conn.beginProbe() {
			if m.registry.Evict(conn.ID, ReasonHeartbeatTimeout) {
				evicted++
			}
			continue
		}
		if err := m.broadcaster.SendTo(conn, models.Heartbeat{}); err != nil {
			evicted++
		}
	}

	if m.presence != nil {
		m.presence.Refresh(m.registry.ListOnlineUsers())
	}
	if evicted > 0 {
		m.log.Info("liveness sweep",
			zap.Int("evicted", evicted),
			zap.Int("connections", m.registry.ConnectionCount()))
	}
	return evicted
}
