// Package node assembles one lobby server: discovery, replication, the
// matchmaking engine and, while primary, the client acceptor.
package node

import (
	"context"
	"net"
	"sync"

	"github.com/ds-test-framework/lobby/apiserver"
	"github.com/ds-test-framework/lobby/config"
	"github.com/ds-test-framework/lobby/discovery"
	"github.com/ds-test-framework/lobby/frontend"
	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/notifier"
	"github.com/ds-test-framework/lobby/replication"
	"github.com/ds-test-framework/lobby/types"
	"github.com/ds-test-framework/lobby/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Node struct {
	id     string
	config *config.Config
	logger *log.Logger

	engine     *matchmaking.Engine
	manager    *replication.Manager
	discoverer *discovery.Discoverer
	apiServer  *apiserver.APIServer
	notifier   *notifier.Notifier

	frontend     *frontend.Server
	frontendLock *sync.Mutex

	*types.BaseService
}

// New wires the components of a node. Nothing is bound until Start.
func New(c *config.Config, logger *log.Logger) (*Node, error) {
	id := uuid.New().String()
	logger = logger.With(log.LogParams{"node_id": id})

	host := c.Node.AdvertiseHost
	if host == "" {
		ip, err := util.LocalIP()
		if err != nil {
			logger.WithError(err).Warn("Could not detect local address, advertising loopback")
			ip = "127.0.0.1"
		}
		host = ip
	}

	n := &Node{
		id:           id,
		config:       c,
		logger:       logger,
		engine:       matchmaking.NewEngine(c.Client.PeerPortBase, logger),
		frontendLock: new(sync.Mutex),
		BaseService:  types.NewBaseService("Node", logger),
	}
	n.manager = replication.NewManager(replication.Config{
		Listen:            c.Replication.Listen,
		AdvertiseHost:     host,
		HeartbeatInterval: c.Replication.HeartbeatInterval,
		Retries:           c.Replication.Retries,
		RetryBackoff:      c.Replication.RetryBackoff,
		DialTimeout:       c.Replication.DialTimeout,
		RequestTimeout:    c.Replication.RequestTimeout,
		MaxMessageBytes:   c.Replication.MaxMessageBytes,
	}, n.engine, logger)
	n.engine.SetListener(n.manager.Notify)
	n.manager.SetOnPromote(n.onPromote)

	if c.Notifier.NatsURL != "" {
		nt, err := notifier.Connect(c.Notifier.NatsURL, c.Notifier.Subject, id, logger)
		if err != nil {
			return nil, err
		}
		n.notifier = nt
	}
	if c.APIAddr != "" {
		n.apiServer = apiserver.NewAPIServer(c.APIAddr, n, logger)
	}
	return n, nil
}

func (n *Node) ID() string {
	return n.id
}

// Start binds every endpoint, runs discovery and takes the resulting
// role. It returns once the node is primary or a synchronised backup.
func (n *Node) Start(ctx context.Context) error {
	n.StartRunning()
	if err := n.manager.Listen(); err != nil {
		return err
	}
	if err := n.manager.Start(); err != nil {
		return err
	}

	conn, err := discovery.ListenUDP(n.config.Discovery.Listen)
	if err != nil {
		return err
	}
	d, err := discovery.NewDiscoverer(conn, discovery.Config{
		NodeID:          n.id,
		Advertise:       n.manager.Self(),
		Targets:         n.config.Discovery.Targets,
		Timeout:         n.config.Discovery.Timeout,
		ProbeInterval:   n.config.Discovery.ProbeInterval,
		Probes:          n.config.Discovery.Probes,
		ReplicationPort: config.DefaultReplicationPort,
	}, n.manager.IsPrimary, n.logger)
	if err != nil {
		conn.Close()
		return err
	}
	n.discoverer = d
	if err := d.Start(); err != nil {
		return err
	}

	if n.apiServer != nil {
		if err := n.apiServer.Start(); err != nil {
			return errors.Wrap(err, "start api server")
		}
	}

	res, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	switch res.State {
	case discovery.Primary:
		n.manager.BecomePrimary()
	case discovery.Backup:
		if err := n.manager.JoinAsBackup(ctx, res.Primary); err != nil {
			return err
		}
	}
	n.logger.With(log.LogParams{
		"self": n.manager.Self(),
		"role": n.manager.Role().String(),
	}).Info("Node started")
	return nil
}

// onPromote starts the client acceptor the first time the node becomes primary
func (n *Node) onPromote() {
	n.frontendLock.Lock()
	defer n.frontendLock.Unlock()
	if n.frontend != nil {
		return
	}
	var sn frontend.SessionNotifier
	if n.notifier != nil {
		sn = n.notifier
	}
	s, err := frontend.Listen(n.config.Client.Listen, n.engine, sn, n.logger)
	if err != nil {
		n.logger.WithError(err).Error("Cannot accept clients")
		return
	}
	s.Start()
	n.frontend = s
}

// Stop implements Service
func (n *Node) Stop() error {
	n.StopRunning()
	n.frontendLock.Lock()
	if n.frontend != nil {
		n.frontend.Stop()
	}
	n.frontendLock.Unlock()
	if n.apiServer != nil {
		n.apiServer.Stop()
	}
	if n.discoverer != nil {
		n.discoverer.Stop()
	}
	err := n.manager.Stop()
	if n.notifier != nil {
		n.notifier.Close()
	}
	n.logger.Info("Node stopped")
	return err
}

func (n *Node) IsPrimary() bool {
	return n.manager.IsPrimary()
}

// Self is the ServerAddress of the node
func (n *Node) Self() string {
	return n.manager.Self()
}

// ClientAddr is the bound client endpoint, nil until the node is primary
func (n *Node) ClientAddr() net.Addr {
	n.frontendLock.Lock()
	defer n.frontendLock.Unlock()
	if n.frontend == nil {
		return nil
	}
	return n.frontend.Addr()
}

// DiscoveryAddr is the bound discovery socket, nil before Start
func (n *Node) DiscoveryAddr() net.Addr {
	if n.discoverer == nil {
		return nil
	}
	return n.discoverer.Addr()
}

func (n *Node) Engine() *matchmaking.Engine {
	return n.engine
}

// Status implements apiserver.StatusSource
func (n *Node) Status() apiserver.NodeStatus {
	primary, _ := replicaHead(n.manager.Replicas())
	return apiserver.NodeStatus{
		NodeID:        n.id,
		Role:          n.manager.Role().String(),
		Self:          n.manager.Self(),
		Primary:       primary,
		QueuedClients: n.engine.QueuedCount(),
		Sessions:      len(n.engine.Sessions()),
	}
}

func replicaHead(replicas []string) (string, bool) {
	if len(replicas) == 0 {
		return "", false
	}
	return replicas[0], true
}

func (n *Node) Replicas() []string {
	return n.manager.Replicas()
}

func (n *Node) Names() []string {
	return n.engine.Names()
}

func (n *Node) Queues() map[int][]*matchmaking.WaitingClient {
	return n.engine.Queues()
}

func (n *Node) Sessions() []*matchmaking.GameSession {
	return n.engine.Sessions()
}

func (n *Node) Session(id int) (*matchmaking.GameSession, bool) {
	return n.engine.Session(id)
}
