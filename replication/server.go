package replication

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
	"github.com/pkg/errors"
)

// HandlerFunc answers one framed request from remote with an encoded response
type HandlerFunc func(remote string, msg string) string

// Server accepts replication connections, one goroutine per connection.
// Requests on a connection are answered in order.
type Server struct {
	listener net.Listener
	handler  HandlerFunc
	maxBytes int

	conns     map[net.Conn]struct{}
	connsLock *sync.Mutex
	wg        *sync.WaitGroup

	*types.BaseService
}

// Listen binds addr. A bind failure is fatal for the node.
func Listen(addr string, handler HandlerFunc, maxBytes int, logger *log.Logger) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen replication on %s", addr)
	}
	return &Server{
		listener:    l,
		handler:     handler,
		maxBytes:    maxBytes,
		conns:       make(map[net.Conn]struct{}),
		connsLock:   new(sync.Mutex),
		wg:          new(sync.WaitGroup),
		BaseService: types.NewBaseService("ReplicationServer", logger),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start implements Service
func (s *Server) Start() error {
	s.StartRunning()
	s.Logger.With(log.LogParams{"addr": s.Addr().String()}).Info("Starting replication server")
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
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
		s.track(conn, true)
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.track(conn, false)
	}()

	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	for {
		msg, err := protocol.ReadMessage(reader, s.maxBytes)
		if err != nil {
			if err != io.EOF {
				s.Logger.With(log.LogParams{"remote": remote}).WithError(err).Debug("Closing replication connection")
			}
			return
		}
		resp := s.handler(remote, msg)
		if err := protocol.WriteMessage(conn, resp); err != nil {
			s.Logger.With(log.LogParams{"remote": remote}).WithError(err).Debug("Failed to write response")
			return
		}
	}
}

// Stop implements Service
func (s *Server) Stop() error {
	s.StopRunning()
	err := s.listener.Close()
	s.connsLock.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsLock.Unlock()
	s.wg.Wait()
	return err
}
