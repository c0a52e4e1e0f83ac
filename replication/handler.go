package replication

import (
	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
)

const (
	rejectMalformed  = "malformed-address"
	rejectNotPrimary = "not-primary"
)

// handle answers one replication request. Malformed messages are logged
// and acknowledged without touching any state; a BACKUP this node cannot
// accept is answered with REJECTED.
func (m *Manager) handle(remote string, msg string) string {
	msgType, payload := protocol.Decode(msg)
	logger := m.Logger.With(log.LogParams{
		"remote": remote,
		"type":   msgType,
	})

	switch msgType {
	case protocol.Backup:
		return m.handleBackup(logger, payload)
	case protocol.Names:
		return m.namesMessage()
	case protocol.Sessions:
		return m.sessionsMessage()
	case protocol.Match:
		return m.queuesMessage()
	case protocol.Check:
		return protocol.Ack()
	case protocol.UpdateBackup:
		if payload == "" {
			return m.replicasMessage()
		}
		m.handleReplicaPush(logger, payload)
		return protocol.Ack()
	case protocol.PlayerNames, protocol.GameSessions, protocol.MatchResponse:
		m.handleStatePush(logger, msgType, payload)
		return protocol.Ack()
	}
	logger.Warn("Discarding unknown replication message")
	return protocol.Ack()
}

func (m *Manager) handleBackup(logger *log.Logger, payload string) string {
	addr, err := ParseAddress(payload)
	if err != nil {
		logger.WithError(err).Warn("Discarding BACKUP request")
		return protocol.Encode(protocol.Rejected, rejectMalformed)
	}
	if !m.IsPrimary() {
		logger.Warn("BACKUP request received while not primary")
		return protocol.Encode(protocol.Rejected, rejectNotPrimary)
	}
	if m.replicas.Append(addr) {
		logger.With(log.LogParams{"backup": addr}).Info("Backup joined")
		m.spawn(func() { m.broadcastReplicas(addr) })
	}
	return m.addressMessage()
}

func (m *Manager) handleReplicaPush(logger *log.Logger, payload string) {
	addrs, err := ParseAddresses(payload)
	if err != nil || len(addrs) == 0 {
		logger.WithError(err).Warn("Discarding malformed replica list")
		return
	}
	if m.IsPrimary() && addrs[0] != m.self {
		logger.With(log.LogParams{"claimed_primary": addrs[0]}).Warn("Ignoring replica list from another primary")
		return
	}
	m.replicas.Replace(addrs)
	logger.With(log.LogParams{"replicas": addrs}).Debug("Replica list updated")

	if m.Role() == RoleBackup && m.replicas.IndexOf(m.self) < 0 {
		logger.Warn("Dropped from the replica list, rejoining")
		primary := addrs[0]
		m.spawn(func() { m.rejoin(primary) })
	}
}

func (m *Manager) handleStatePush(logger *log.Logger, msgType, payload string) {
	if m.IsPrimary() {
		logger.Warn("Ignoring state snapshot pushed to a primary")
		return
	}
	var err error
	switch msgType {
	case protocol.PlayerNames:
		err = m.applyNames(payload)
	case protocol.GameSessions:
		err = m.applySessions(payload)
	case protocol.MatchResponse:
		err = m.applyQueues(payload)
	}
	if err != nil {
		logger.WithError(types.NewError(types.ErrBadMessage, err.Error())).Warn("Discarding malformed snapshot")
	}
}

func (m *Manager) addressMessage() string {
	return protocol.Encode(protocol.Address, protocol.JoinList(m.replicas.Snapshot()))
}

func (m *Manager) replicasMessage() string {
	return protocol.Encode(protocol.UpdateBackup, protocol.JoinList(m.replicas.Snapshot()))
}

func (m *Manager) namesMessage() string {
	return protocol.Encode(protocol.PlayerNames, EncodeNames(m.state.Names()))
}

func (m *Manager) sessionsMessage() string {
	return protocol.Encode(protocol.GameSessions, EncodeSessions(m.state.Sessions()))
}

func (m *Manager) queuesMessage() string {
	return protocol.Encode(protocol.MatchResponse, EncodeQueues(m.state.Queues()))
}
