// Package frontend is the client facing TCP acceptor. It parses client
// requests, drives the matchmaking engine and announces formed sessions.
package frontend

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
	"github.com/pkg/errors"
)

// SessionNotifier is told about every session formed through this acceptor
type SessionNotifier interface {
	SessionFormed(s *matchmaking.GameSession)
}

type Server struct {
	listener net.Listener
	engine   *matchmaking.Engine
	notifier SessionNotifier
	maxBytes int

	clients     map[*client]struct{}
	clientsLock *sync.Mutex
	wg          *sync.WaitGroup

	*types.BaseService
}

// Listen binds the client endpoint. notifier may be nil.
func Listen(addr string, engine *matchmaking.Engine, notifier SessionNotifier, logger *log.Logger) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen clients on %s", addr)
	}
	return &Server{
		listener:    l,
		engine:      engine,
		notifier:    notifier,
		maxBytes:    protocol.DefaultMaxMessageBytes,
		clients:     make(map[*client]struct{}),
		clientsLock: new(sync.Mutex),
		wg:          new(sync.WaitGroup),
		BaseService: types.NewBaseService("ClientAcceptor", logger),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start implements Service
func (s *Server) Start() error {
	s.StartRunning()
	s.Logger.With(log.LogParams{"addr": s.Addr().String()}).Info("Accepting clients")
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop implements Service
func (s *Server) Stop() error {
	s.StopRunning()
	err := s.listener.Close()
	s.clientsLock.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clientsLock.Unlock()
	s.wg.Wait()
	return err
}

// Connected is the number of connected clients that are not yet matched
func (s *Server) Connected() int {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	count := 0
	for c := range s.clients {
		if !c.Matched() {
			count++
		}
	}
	return count
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.QuitCh():
				return
			default:
			}
			s.Logger.WithError(err).Warn("Accept failed")
			continue
		}
		c := newClient(conn)
		s.track(c)
		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) track(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	select {
	case <-s.QuitCh():
		c.close()
	default:
	}
	s.clients[c] = struct{}{}
}

func (s *Server) forget(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	delete(s.clients, c)
}

func (s *Server) serve(c *client) {
	defer s.wg.Done()
	defer func() {
		c.close()
		s.forget(c)
	}()

	reader := bufio.NewReader(c.conn)
	for {
		msg, err := protocol.ReadMessage(reader, s.maxBytes)
		if err != nil {
			if err != io.EOF {
				s.Logger.With(log.LogParams{"client": c.host}).WithError(err).Debug("Closing client connection")
			}
			return
		}
		resp := s.dispatch(c, msg)
		if resp == "" {
			continue
		}
		if err := c.Send(resp); err != nil {
			s.Logger.With(log.LogParams{"client": c.host}).WithError(err).Debug("Failed to respond")
			return
		}
	}
}

// announce sends every formed session to its connected members and marks
// them matched
func (s *Server) announce(formed []*matchmaking.FormedSession) {
	for _, f := range formed {
		msg := protocol.SuccessResponse(protocol.VerbGame, SessionPayload(f.Session))
		for i, link := range f.Links {
			if link == nil {
				s.Logger.With(log.LogParams{
					"session_id": f.Session.ID,
					"player":     f.Session.Players[i].Name,
				}).Info("Player has no connection on this node, skipping announcement")
				continue
			}
			if err := link.Send(msg); err != nil {
				s.Logger.With(log.LogParams{
					"session_id": f.Session.ID,
					"player":     f.Session.Players[i].Name,
				}).WithError(err).Warn("Failed to announce session")
			}
			if c, ok := link.(*client); ok {
				c.setMatched()
			}
		}
		if s.notifier != nil {
			s.notifier.SessionFormed(f.Session)
		}
	}
}
