package replication

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/protocol"
)

func (m *Manager) tick(ctx context.Context, check func()) {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		case <-m.QuitCh():
			return
		}
	}
}

func (m *Manager) checkPrimaryLoop(ctx context.Context) {
	m.Logger.With(log.LogParams{"interval": m.config.HeartbeatInterval.String()}).Debug("Checking primary")
	m.tick(ctx, func() { m.checkPrimary(ctx) })
}

func (m *Manager) checkBackupsLoop(ctx context.Context) {
	m.Logger.With(log.LogParams{"interval": m.config.HeartbeatInterval.String()}).Debug("Checking backups")
	m.tick(ctx, func() { m.checkBackups(ctx) })
}

// checkPrimary sends CHECK to the primary. When it fails and this node is
// next in line, with no replica list update received meanwhile, it takes over.
// Backups further down wait for the promoted node to push the new list.
func (m *Manager) checkPrimary(ctx context.Context) {
	version := m.replicas.Version()
	primary, ok := m.replicas.Primary()
	if !ok || primary == m.self {
		return
	}
	_, err := m.transport.Request(ctx, primary, protocol.Encode(protocol.Check))
	if err == nil || ctx.Err() != nil {
		return
	}
	logger := m.Logger.With(log.LogParams{"primary": primary})
	logger.WithError(err).Warn("Primary unreachable")

	if m.replicas.IndexOf(m.self) != 1 {
		return
	}
	if !m.replicas.RemovePrimaryIf(primary, version) {
		logger.Info("Replica list changed during check, not taking over")
		return
	}
	logger.Info("Promoting self to primary")
	m.takeOver()
	m.spawn(func() { m.broadcastReplicas() })
}

// checkBackups sends CHECK to every backup and drops the ones that fail
// the whole retry budget
func (m *Manager) checkBackups(ctx context.Context) {
	failed := m.sendAll(m.replicas.Others(m.self), protocol.Encode(protocol.Check))
	if len(failed) == 0 || ctx.Err() != nil {
		return
	}
	for _, addr := range failed {
		m.dropBackup(addr, "heartbeat failed")
	}
	m.broadcastReplicas()
}

func (m *Manager) rejoin(primary string) {
	if !atomic.CompareAndSwapInt32(&m.rejoining, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&m.rejoining, 0)

	ctx, cancel := context.WithTimeout(m.runCtx, 10*m.config.HeartbeatInterval)
	defer cancel()
	if err := m.JoinAsBackup(ctx, primary); err != nil {
		m.Logger.WithError(err).Error("Rejoin failed")
	}
}
