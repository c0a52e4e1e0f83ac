package replication

import (
	"sync"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
)

// Notify queues a push of the collection named by kind. It is a no-op
// unless this node is primary. Pushes leave in the order they were queued.
func (m *Manager) Notify(kind matchmaking.ChangeKind) {
	if !m.IsPrimary() {
		return
	}
	select {
	case m.pushCh <- kind:
	case <-m.QuitCh():
	}
}

func (m *Manager) pushLoop() {
	defer m.wg.Done()
	for {
		select {
		case kind := <-m.pushCh:
			m.pushSnapshot(kind)
		case <-m.QuitCh():
			return
		}
	}
}

func (m *Manager) snapshotMessage(kind matchmaking.ChangeKind) string {
	switch kind {
	case matchmaking.NamesChanged:
		return m.namesMessage()
	case matchmaking.SessionsChanged:
		return m.sessionsMessage()
	default:
		return m.queuesMessage()
	}
}

// pushSnapshot sends the current snapshot of kind to every backup. Backups
// still unreachable after the retry budget are dropped and the new replica
// list is pushed to the remaining members as a separate message.
func (m *Manager) pushSnapshot(kind matchmaking.ChangeKind) {
	if !m.IsPrimary() {
		return
	}
	msg := m.snapshotMessage(kind)
	failed := m.sendAll(m.replicas.Others(m.self), msg)
	if len(failed) == 0 || m.runCtx.Err() != nil {
		return
	}
	for _, addr := range failed {
		m.dropBackup(addr, "push failed")
	}
	m.broadcastReplicas()
}

// broadcastReplicas pushes the replica list to every member except self and
// the addresses in skip. Members that cannot be reached are dropped and the
// shrunken list is pushed again.
func (m *Manager) broadcastReplicas(skip ...string) {
	for {
		targets := make([]string, 0)
		for _, addr := range m.replicas.Others(m.self) {
			if !contains(skip, addr) {
				targets = append(targets, addr)
			}
		}
		if len(targets) == 0 {
			return
		}
		failed := m.sendAll(targets, m.replicasMessage())
		if len(failed) == 0 || !m.IsPrimary() || m.runCtx.Err() != nil {
			return
		}
		for _, addr := range failed {
			m.dropBackup(addr, "replica list push failed")
		}
	}
}

func (m *Manager) dropBackup(addr, reason string) {
	if m.replicas.Remove(addr) {
		m.Logger.With(log.LogParams{
			"backup": addr,
			"reason": reason,
		}).Warn("Removed unreachable backup")
	}
}

// sendAll delivers msg to every target concurrently and returns the
// targets that failed
func (m *Manager) sendAll(targets []string, msg string) []string {
	var wg sync.WaitGroup
	var lock sync.Mutex
	failed := make([]string, 0)

	for _, addr := range targets {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if _, err := m.transport.Request(m.runCtx, addr, msg); err != nil {
				m.Logger.With(log.LogParams{"peer": addr}).WithError(err).Debug("Push failed")
				lock.Lock()
				failed = append(failed, addr)
				lock.Unlock()
			}
		}(addr)
	}
	wg.Wait()
	return failed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
