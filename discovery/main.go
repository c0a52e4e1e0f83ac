// Package discovery finds the current primary of the pool over UDP.
//
// A starting node probes with IS_PRIMARY_THERE and any node acting as
// primary answers with PRIMARY_FOUND. The first answer makes the prober a
// backup; when the countdown runs out unanswered the prober becomes
// primary. Two nodes starting together can both time out and both become
// primary, nothing here breaks that tie.
package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
	"github.com/pkg/errors"
)

// State of the discovery state machine
type State int

const (
	Discovering State = iota
	Backup
	Primary
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Backup:
		return "backup"
	case Primary:
		return "primary"
	}
	return "unknown"
}

// Result is the outcome of a discovery round
type Result struct {
	State State
	// Primary is the replication address of the primary when State is Backup
	Primary string
}

type Config struct {
	// NodeID tags every datagram so a node can ignore its own broadcasts
	NodeID string
	// Advertise is the replication address announced in PRIMARY_FOUND
	Advertise string
	// Targets are the addresses probes and answers are sent to
	Targets       []string
	Timeout       time.Duration
	ProbeInterval time.Duration
	Probes        int
	// ReplicationPort is assumed when an answer carries no address
	ReplicationPort int
}

type Discoverer struct {
	conn      net.PacketConn
	targets   []net.Addr
	config    Config
	isPrimary func() bool

	state     State
	stateLock *sync.Mutex
	found     chan string
	done      chan struct{}

	*types.BaseService
}

// ListenUDP opens the discovery socket. The net package enables
// SO_BROADCAST on IPv4 datagram sockets, so the returned socket can send
// to a broadcast address as is.
func ListenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve discovery address %s", addr)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen discovery on %s", addr)
	}
	return conn, nil
}

// NewDiscoverer wraps conn. isPrimary tells the discoverer whether the
// local node currently acts as primary and must answer probes.
func NewDiscoverer(conn net.PacketConn, config Config, isPrimary func() bool, logger *log.Logger) (*Discoverer, error) {
	targets := make([]net.Addr, 0, len(config.Targets))
	for _, t := range config.Targets {
		addr, err := net.ResolveUDPAddr("udp4", t)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve discovery target %s", t)
		}
		targets = append(targets, addr)
	}
	if config.Probes < 1 {
		config.Probes = 1
	}
	return &Discoverer{
		conn:        conn,
		targets:     targets,
		config:      config,
		isPrimary:   isPrimary,
		state:       Discovering,
		stateLock:   new(sync.Mutex),
		found:       make(chan string, 1),
		done:        make(chan struct{}),
		BaseService: types.NewBaseService("Discovery", logger),
	}, nil
}

func (d *Discoverer) Addr() net.Addr {
	return d.conn.LocalAddr()
}

func (d *Discoverer) State() State {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	return d.state
}

func (d *Discoverer) setState(s State) {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	d.state = s
}

// Start implements Service and begins answering datagrams
func (d *Discoverer) Start() error {
	d.StartRunning()
	d.Logger.With(log.LogParams{"addr": d.Addr().String()}).Info("Starting discovery listener")
	go d.readLoop()
	return nil
}

// Stop implements Service
func (d *Discoverer) Stop() error {
	wasRunning := d.Running()
	d.StopRunning()
	err := d.conn.Close()
	if wasRunning {
		<-d.done
	}
	return err
}

// Discover runs one round: probe up to Probes times every ProbeInterval
// until a PRIMARY_FOUND arrives or Timeout elapses
func (d *Discoverer) Discover(ctx context.Context) (Result, error) {
	d.setState(Discovering)
	select {
	case <-d.found:
	default:
	}

	countdown := time.NewTimer(d.config.Timeout)
	defer countdown.Stop()
	probe := time.NewTicker(d.config.ProbeInterval)
	defer probe.Stop()

	d.broadcast(d.encode(protocol.IsPrimaryThere))
	sent := 1

	for {
		select {
		case primary := <-d.found:
			d.setState(Backup)
			d.Logger.With(log.LogParams{"primary": primary}).Info("Primary found")
			return Result{State: Backup, Primary: primary}, nil
		case <-countdown.C:
			d.setState(Primary)
			d.Logger.Info("No primary answered, promoting self")
			return Result{State: Primary}, nil
		case <-probe.C:
			if sent < d.config.Probes {
				d.broadcast(d.encode(protocol.IsPrimaryThere))
				sent++
			}
		case <-ctx.Done():
			return Result{State: Discovering}, ctx.Err()
		case <-d.QuitCh():
			return Result{State: Discovering}, errors.New("discovery stopped")
		}
	}
}

func (d *Discoverer) encode(msgType string, fields ...string) string {
	return protocol.Encode(msgType, append([]string{d.config.NodeID}, fields...)...)
}

func (d *Discoverer) broadcast(msg string) {
	for _, t := range d.targets {
		if _, err := d.conn.WriteTo([]byte(msg), t); err != nil {
			d.Logger.With(log.LogParams{"target": t.String()}).WithError(err).Warn("Failed to send discovery datagram")
		}
	}
}

func (d *Discoverer) readLoop() {
	defer close(d.done)
	buf := make([]byte, 1024)
	for {
		n, from, err := d.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-d.QuitCh():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				continue
			}
			d.Logger.WithError(err).Error("Discovery listener stopped")
			return
		}
		d.handle(string(buf[:n]), from)
	}
}

func (d *Discoverer) handle(msg string, from net.Addr) {
	msgType, payload := protocol.Decode(msg)
	fields := protocol.Fields(payload)
	if len(fields) > 0 && fields[0] == d.config.NodeID {
		return
	}

	switch msgType {
	case protocol.IsPrimaryThere:
		if d.isPrimary != nil && d.isPrimary() {
			d.broadcast(d.encode(protocol.PrimaryFound, d.config.Advertise))
		}
	case protocol.PrimaryFound:
		if d.State() != Discovering {
			return
		}
		primary, err := d.primaryAddress(fields, from)
		if err != nil {
			d.Logger.With(log.LogParams{"from": from.String()}).WithError(err).Warn("Discarding PRIMARY_FOUND")
			return
		}
		select {
		case d.found <- primary:
		default:
		}
	default:
		d.Logger.With(log.LogParams{
			"from": from.String(),
			"type": msgType,
		}).Debug("Discarding unknown discovery datagram")
	}
}

func (d *Discoverer) primaryAddress(fields []string, from net.Addr) (string, error) {
	if len(fields) > 1 {
		if _, _, err := net.SplitHostPort(fields[1]); err != nil {
			return "", errors.Wrap(err, "bad primary address")
		}
		return fields[1], nil
	}
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return "", errors.New("unknown sender address")
	}
	return net.JoinHostPort(udp.IP.String(), strconv.Itoa(d.config.ReplicationPort)), nil
}
