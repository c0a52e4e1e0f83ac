package frontend

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/util"
)

// client is one accepted connection. It implements matchmaking.Link.
type client struct {
	conn      net.Conn
	host      string
	writeLock *sync.Mutex
	closed    int32
	matched   int32
}

func newClient(conn net.Conn) *client {
	return &client{
		conn:      conn,
		host:      util.HostOf(conn.RemoteAddr().String()),
		writeLock: new(sync.Mutex),
	}
}

func (c *client) Connected() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

func (c *client) Send(msg string) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return protocol.WriteMessage(c.conn, msg)
}

func (c *client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.conn.Close()
	}
}

// Matched reports whether the client was announced a session
func (c *client) Matched() bool {
	return atomic.LoadInt32(&c.matched) == 1
}

func (c *client) setMatched() {
	atomic.StoreInt32(&c.matched, 1)
}
