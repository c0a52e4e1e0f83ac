package frontend

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	lock     sync.Mutex
	sessions []*matchmaking.GameSession
}

func (n *recordingNotifier) SessionFormed(s *matchmaking.GameSession) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.sessions = append(n.sessions, s)
}

func (n *recordingNotifier) count() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.sessions)
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, s *Server) *testClient {
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(verb string, fields ...string) {
	require.NoError(c.t, protocol.WriteMessage(c.conn, protocol.Encode(verb, fields...)))
}

func (c *testClient) read() string {
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := protocol.ReadMessage(c.reader, protocol.DefaultMaxMessageBytes)
	require.NoError(c.t, err)
	return msg
}

func (c *testClient) request(verb string, fields ...string) string {
	c.send(verb, fields...)
	return c.read()
}

func startServer(t *testing.T) (*Server, *matchmaking.Engine, *recordingNotifier) {
	engine := matchmaking.NewEngine(9000, log.DummyLogger())
	notifier := &recordingNotifier{}
	s, err := Listen("127.0.0.1:0", engine, notifier, log.DummyLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s, engine, notifier
}

func queued(engine *matchmaking.Engine, name string) func() bool {
	return func() bool {
		_, ok := engine.IsQueued(name)
		return ok
	}
}

func TestTwoPlayersFormSession(t *testing.T) {
	s, engine, notifier := startServer(t)

	alice := dial(t, s)
	bob := dial(t, s)
	carol := dial(t, s)

	assert.Equal(t, "success checkname Alice\n\n", alice.request(protocol.VerbCheckName, "Alice"))
	assert.Equal(t, "failure checkname This name already exists\n\n", carol.request(protocol.VerbCheckName, "Alice"))

	alice.send(protocol.VerbGame, "Alice", "2")
	require.Eventually(t, queued(engine, "Alice"), time.Second, 10*time.Millisecond)
	bob.send(protocol.VerbGame, "Bob", "2")

	expected := "success game 1 127.0.0.1 9000 Alice 0 1,127.0.0.1 9001 Bob 1 1\n\n"
	assert.Equal(t, expected, alice.read())
	assert.Equal(t, expected, bob.read())

	assert.Equal(t, 0, engine.QueuedCount())
	assert.Equal(t, 1, notifier.count())
	assert.Eventually(t, func() bool { return s.Connected() == 1 }, time.Second, 10*time.Millisecond)

	session, ok := engine.Session(1)
	require.True(t, ok)
	assert.Len(t, session.Players, 2)
}

func TestPlayersAndCancel(t *testing.T) {
	s, engine, _ := startServer(t)

	alice := dial(t, s)
	other := dial(t, s)

	alice.send(protocol.VerbGame, "Alice", "3")
	require.Eventually(t, queued(engine, "Alice"), time.Second, 10*time.Millisecond)

	assert.Equal(t, "success players 1\n\n", other.request(protocol.VerbPlayers))
	assert.Equal(t, "failure game already queued\n\n", other.request(protocol.VerbGame, "Alice", "4"))
	assert.Equal(t, "success cancel Alice\n\n", other.request(protocol.VerbCancel, "Alice"))
	assert.Equal(t, "failure cancel not in queue\n\n", other.request(protocol.VerbCancel, "Alice"))
	assert.Equal(t, "success players 0\n\n", other.request(protocol.VerbPlayers))
}

func TestRejectsBadRequests(t *testing.T) {
	s, _, _ := startServer(t)
	c := dial(t, s)

	assert.Equal(t, "failure game invalid capacity\n\n", c.request(protocol.VerbGame, "Alice", "1"))
	assert.Equal(t, "failure game invalid capacity\n\n", c.request(protocol.VerbGame, "Alice", "2147483647"))
	assert.Equal(t, "failure game invalid capacity\n\n", c.request(protocol.VerbGame, "Alice", "65"))
	assert.Equal(t, "error malformed request\n\n", c.request(protocol.VerbGame, "Alice", "two"))
	assert.Equal(t, "error malformed request\n\n", c.request(protocol.VerbGame, "Alice"))
	assert.Equal(t, "error malformed request\n\n", c.request(protocol.VerbCheckName))
	assert.Equal(t, "error unknown request\n\n", c.request("dance"))
}

func TestReconnectAndRemovePlayer(t *testing.T) {
	s, engine, _ := startServer(t)

	alice := dial(t, s)
	bob := dial(t, s)
	alice.request(protocol.VerbCheckName, "Alice")
	alice.send(protocol.VerbGame, "Alice", "2")
	require.Eventually(t, queued(engine, "Alice"), time.Second, 10*time.Millisecond)
	bob.send(protocol.VerbGame, "Bob", "2")
	alice.read()
	bob.read()

	late := dial(t, s)
	assert.Equal(t,
		"success reconn 1 127.0.0.1 9000 Alice 0 1,127.0.0.1 9001 Bob 1 1\n\n",
		late.request(protocol.VerbReconn, "Alice", "1"))
	assert.Equal(t, "failure reconn session not found\n\n", late.request(protocol.VerbReconn, "Alice", "7"))
	assert.Equal(t, "failure reconn player not in session\n\n", late.request(protocol.VerbReconn, "Carol", "1"))

	assert.Equal(t, "success rmplayer Alice\n\n", late.request(protocol.VerbRmPlayer, "Alice", "1"))
	assert.Equal(t, "failure rmplayer player not in session\n\n", late.request(protocol.VerbRmPlayer, "Alice", "1"))
	assert.Equal(t, "failure rmplayer session not found\n\n", late.request(protocol.VerbRmPlayer, "Bob", "9"))
	assert.False(t, engine.HasName("Alice"))

	// the freed name can be claimed again
	assert.Equal(t, "success checkname Alice\n\n", late.request(protocol.VerbCheckName, "Alice"))
}

func TestDisconnectedClientIsSkipped(t *testing.T) {
	s, engine, _ := startServer(t)

	gone := dial(t, s)
	gone.send(protocol.VerbGame, "Ghost", "2")
	require.Eventually(t, queued(engine, "Ghost"), time.Second, 10*time.Millisecond)
	gone.conn.Close()
	require.Eventually(t, func() bool { return s.Connected() == 0 }, time.Second, 10*time.Millisecond)

	bob := dial(t, s)
	carol := dial(t, s)
	bob.send(protocol.VerbGame, "Bob", "2")
	require.Eventually(t, queued(engine, "Bob"), time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return engine.QueuedCount() == 1 }, time.Second, 10*time.Millisecond)
	carol.send(protocol.VerbGame, "Carol", "2")

	expected := "success game 1 127.0.0.1 9000 Bob 0 1,127.0.0.1 9001 Carol 1 1\n\n"
	assert.Equal(t, expected, bob.read())
	assert.Equal(t, expected, carol.read())
}

func TestDetachedClientResumes(t *testing.T) {
	s, engine, _ := startServer(t)

	restored := matchmaking.NewWaitingClient("10.0.0.5", "Alice", nil)
	engine.ReplaceQueues(map[int][]*matchmaking.WaitingClient{2: {restored}})

	alice := dial(t, s)
	bob := dial(t, s)
	alice.send(protocol.VerbGame, "Alice", "2")
	require.Eventually(t, func() bool {
		q := engine.Queues()[2]
		return len(q) == 1 && !q[0].Detached()
	}, time.Second, 10*time.Millisecond)
	bob.send(protocol.VerbGame, "Bob", "2")

	expected := "success game 1 10.0.0.5 9000 Alice 0 1,127.0.0.1 9001 Bob 1 1\n\n"
	assert.Equal(t, expected, alice.read())
	assert.Equal(t, expected, bob.read())
}

func TestGameClaimsName(t *testing.T) {
	s, engine, _ := startServer(t)

	bob := dial(t, s)
	other := dial(t, s)
	bob.send(protocol.VerbGame, "Bob", "3")
	require.Eventually(t, queued(engine, "Bob"), time.Second, 10*time.Millisecond)

	assert.True(t, engine.HasName("Bob"))
	assert.Equal(t, "failure checkname This name already exists\n\n", other.request(protocol.VerbCheckName, "Bob"))
}

func TestDetachedClientKeepsItsCapacity(t *testing.T) {
	s, engine, _ := startServer(t)

	engine.ReplaceQueues(map[int][]*matchmaking.WaitingClient{
		2: {matchmaking.NewWaitingClient("10.0.0.5", "Alice", nil)},
	})

	alice := dial(t, s)
	assert.Equal(t, "failure game already queued\n\n", alice.request(protocol.VerbGame, "Alice", "3"))

	queues := engine.Queues()
	require.Len(t, queues[2], 1)
	assert.True(t, queues[2][0].Detached())
	assert.Empty(t, queues[3])
}

func TestRemovingEveryPlayerEndsSession(t *testing.T) {
	s, engine, _ := startServer(t)

	alice := dial(t, s)
	bob := dial(t, s)
	alice.send(protocol.VerbGame, "Alice", "2")
	require.Eventually(t, queued(engine, "Alice"), time.Second, 10*time.Millisecond)
	bob.send(protocol.VerbGame, "Bob", "2")
	alice.read()
	bob.read()

	assert.Equal(t, "success rmplayer Alice\n\n", alice.request(protocol.VerbRmPlayer, "Alice", "1"))
	assert.Equal(t, "success rmplayer Bob\n\n", bob.request(protocol.VerbRmPlayer, "Bob", "1"))
	assert.Equal(t, "failure reconn session not found\n\n", bob.request(protocol.VerbReconn, "Bob", "1"))
	assert.Empty(t, engine.Sessions())
}
