package replication

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/types"
	"github.com/pkg/errors"
)

// Transport sends replication requests over TCP. A request that fails is
// retried up to the configured number of attempts before the error is
// returned, at which point the caller treats the peer as departed.
type Transport struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
	attempts       int
	backoff        time.Duration
	maxBytes       int
}

func NewTransport(c Config) *Transport {
	attempts := c.Retries
	if attempts < 1 {
		attempts = 1
	}
	return &Transport{
		dialTimeout:    c.DialTimeout,
		requestTimeout: c.RequestTimeout,
		attempts:       attempts,
		backoff:        c.RetryBackoff,
		maxBytes:       c.MaxMessageBytes,
	}
}

// Conn is an open replication connection used for a sequence of requests
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	max     int
}

// Dial opens a connection to addr
func (t *Transport) Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, types.NewError(types.ErrSendFailed, errors.Wrapf(err, "dial %s", addr).Error())
	}
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: t.requestTimeout,
		max:     t.maxBytes,
	}, nil
}

// Request writes msg and waits for the framed response
func (c *Conn) Request(msg string) (string, error) {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if err := protocol.WriteMessage(c.conn, msg); err != nil {
		return "", types.NewError(types.ErrSendFailed, err.Error())
	}
	resp, err := protocol.ReadMessage(c.reader, c.max)
	if err != nil {
		return "", types.NewError(types.ErrResponseReadFail, errors.Wrap(err, "read response").Error())
	}
	return resp, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Request sends a single msg to addr on a fresh connection, retrying
// transient failures
func (t *Transport) Request(ctx context.Context, addr, msg string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 && !t.wait(ctx) {
			break
		}
		resp, err := t.requestOnce(ctx, addr, msg)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", lastErr
}

func (t *Transport) requestOnce(ctx context.Context, addr, msg string) (string, error) {
	conn, err := t.Dial(ctx, addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.Request(msg)
}

// Attempts is the retry budget of the transport
func (t *Transport) Attempts() int {
	return t.attempts
}

func (t *Transport) wait(ctx context.Context) bool {
	if t.backoff <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(t.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
