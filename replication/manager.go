// Package replication keeps the matchmaking state of every backup in step
// with the primary and moves the primary role when the primary fails.
//
// The primary answers pull requests from joining backups and pushes a
// full snapshot of a collection to every backup after each mutation.
// Membership is an ordered ReplicaList whose head is the primary; it is
// rewritten wholesale and pushed to all members whenever it changes.
// Convergence is eventual: a backup may briefly see a snapshot and the
// membership update that follows it in either order.
package replication

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
	"github.com/pkg/errors"
)

// Role of the node within the pool
type Role int

const (
	RoleNone Role = iota
	RoleBackup
	RolePrimary
)

func (r Role) String() string {
	switch r {
	case RoleBackup:
		return "backup"
	case RolePrimary:
		return "primary"
	}
	return "none"
}

// State is the replicated matchmaking state. Reads return snapshots and
// the Replace methods install a primary snapshot atomically.
type State interface {
	Names() []string
	Sessions() []*matchmaking.GameSession
	Queues() map[int][]*matchmaking.WaitingClient
	ReplaceNames(names []string)
	ReplaceSessions(sessions []*matchmaking.GameSession)
	ReplaceQueues(queues map[int][]*matchmaking.WaitingClient)
}

type Config struct {
	// Listen is the address of the replication endpoint
	Listen string
	// AdvertiseHost is combined with the bound port to form this node's
	// ServerAddress
	AdvertiseHost     string
	HeartbeatInterval time.Duration
	Retries           int
	RetryBackoff      time.Duration
	DialTimeout       time.Duration
	RequestTimeout    time.Duration
	MaxMessageBytes   int
}

type Manager struct {
	config    Config
	self      string
	replicas  *ReplicaList
	state     State
	transport *Transport
	server    *Server

	role      Role
	roleLock  *sync.Mutex
	onPromote func()

	pushCh    chan matchmaking.ChangeKind
	rejoining int32

	loopCancel context.CancelFunc
	loopLock   *sync.Mutex
	wg         *sync.WaitGroup

	// runCtx is cancelled by Stop and bounds every outgoing request
	runCtx    context.Context
	runCancel context.CancelFunc

	*types.BaseService
}

func NewManager(config Config, state State, logger *log.Logger) *Manager {
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Manager{
		config:      config,
		replicas:    NewReplicaList(),
		state:       state,
		transport:   NewTransport(config),
		roleLock:    new(sync.Mutex),
		pushCh:      make(chan matchmaking.ChangeKind, 64),
		loopLock:    new(sync.Mutex),
		wg:          new(sync.WaitGroup),
		runCtx:      runCtx,
		runCancel:   runCancel,
		BaseService: types.NewBaseService("ReplicationManager", logger),
	}
}

// Listen binds the replication endpoint and fixes this node's address
func (m *Manager) Listen() error {
	server, err := Listen(m.config.Listen, m.handle, m.config.MaxMessageBytes, m.Logger)
	if err != nil {
		return err
	}
	m.server = server
	port := server.Addr().(*net.TCPAddr).Port
	host := m.config.AdvertiseHost
	if host == "" {
		host = "127.0.0.1"
	}
	m.self = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

// Start implements Service. Listen must have been called.
func (m *Manager) Start() error {
	if m.server == nil {
		return errors.New("replication manager started before Listen")
	}
	m.StartRunning()
	if err := m.server.Start(); err != nil {
		return err
	}
	m.wg.Add(1)
	go m.pushLoop()
	return nil
}

// Stop implements Service
func (m *Manager) Stop() error {
	m.StopRunning()
	m.stopLoop()
	m.runCancel()
	var err error
	if m.server != nil {
		err = m.server.Stop()
	}
	m.wg.Wait()
	return err
}

// Self is the ServerAddress of this node
func (m *Manager) Self() string {
	return m.self
}

func (m *Manager) Replicas() []string {
	return m.replicas.Snapshot()
}

func (m *Manager) Role() Role {
	m.roleLock.Lock()
	defer m.roleLock.Unlock()
	return m.role
}

func (m *Manager) IsPrimary() bool {
	return m.Role() == RolePrimary
}

func (m *Manager) setRole(r Role) {
	m.roleLock.Lock()
	defer m.roleLock.Unlock()
	m.role = r
}

// SetOnPromote registers f to run every time this node becomes primary
func (m *Manager) SetOnPromote(f func()) {
	m.roleLock.Lock()
	defer m.roleLock.Unlock()
	m.onPromote = f
}

// BecomePrimary makes this node the sole member and primary of the pool
func (m *Manager) BecomePrimary() {
	m.replicas.Replace([]string{m.self})
	m.takeOver()
}

func (m *Manager) takeOver() {
	m.roleLock.Lock()
	m.role = RolePrimary
	f := m.onPromote
	m.roleLock.Unlock()

	m.Logger.With(log.LogParams{
		"self":     m.self,
		"replicas": m.replicas.Snapshot(),
	}).Info("Acting as primary")

	m.startLoop(m.checkBackupsLoop)
	if f != nil {
		f()
	}
}

// JoinAsBackup registers with primary and pulls every collection. Each
// response replaces the matching local collection. The whole sequence is
// retried within the transport budget.
func (m *Manager) JoinAsBackup(ctx context.Context, primary string) error {
	m.setRole(RoleBackup)
	var err error
	for attempt := 0; attempt < m.transport.Attempts(); attempt++ {
		if attempt > 0 && !m.transport.wait(ctx) {
			break
		}
		if err = m.join(ctx, primary); err == nil {
			m.Logger.With(log.LogParams{
				"primary":  primary,
				"replicas": m.replicas.Snapshot(),
			}).Info("Joined as backup")
			m.startLoop(m.checkPrimaryLoop)
			return nil
		}
		m.Logger.With(log.LogParams{"primary": primary}).WithError(err).Warn("Join attempt failed")
	}
	if err == nil {
		err = ctx.Err()
	}
	return errors.Wrapf(err, "join primary %s", primary)
}

func (m *Manager) join(ctx context.Context, primary string) error {
	conn, err := m.transport.Dial(ctx, primary)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := conn.Request(protocol.Encode(protocol.Backup, m.self))
	if err != nil {
		return err
	}
	if err := m.expect(resp, protocol.Address, m.applyAddresses); err != nil {
		return err
	}

	steps := []struct {
		request  string
		response string
		apply    func(string) error
	}{
		{protocol.Names, protocol.PlayerNames, m.applyNames},
		{protocol.Sessions, protocol.GameSessions, m.applySessions},
		{protocol.Match, protocol.MatchResponse, m.applyQueues},
	}
	for _, step := range steps {
		resp, err := conn.Request(protocol.Encode(step.request))
		if err != nil {
			return err
		}
		if err := m.expect(resp, step.response, step.apply); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) expect(resp, msgType string, apply func(string) error) error {
	t, payload := protocol.Decode(resp)
	if t == protocol.Rejected {
		return types.NewError(types.ErrBadResponse, "request rejected: "+payload)
	}
	if t != msgType {
		return types.NewError(types.ErrBadResponse, "expected "+msgType+", got "+t)
	}
	return apply(payload)
}

func (m *Manager) applyAddresses(payload string) error {
	addrs, err := ParseAddresses(payload)
	if err != nil {
		return err
	}
	m.replicas.Replace(addrs)
	return nil
}

func (m *Manager) applyNames(payload string) error {
	m.state.ReplaceNames(ParseNames(payload))
	return nil
}

func (m *Manager) applySessions(payload string) error {
	sessions, err := ParseSessions(payload)
	if err != nil {
		return err
	}
	m.state.ReplaceSessions(sessions)
	return nil
}

func (m *Manager) applyQueues(payload string) error {
	queues, err := ParseQueues(payload)
	if err != nil {
		return err
	}
	m.state.ReplaceQueues(queues)
	return nil
}

func (m *Manager) startLoop(loop func(context.Context)) {
	m.loopLock.Lock()
	defer m.loopLock.Unlock()
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
	select {
	case <-m.QuitCh():
		return
	default:
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		loop(ctx)
	}()
}

func (m *Manager) stopLoop() {
	m.loopLock.Lock()
	defer m.loopLock.Unlock()
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
}

// spawn runs f on a goroutine that Stop waits for. It does nothing once
// the manager is stopping.
func (m *Manager) spawn(f func()) {
	m.loopLock.Lock()
	defer m.loopLock.Unlock()
	select {
	case <-m.QuitCh():
		return
	default:
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		f()
	}()
}
