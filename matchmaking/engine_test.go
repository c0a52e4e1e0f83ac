package matchmaking

import (
	"sync"
	"testing"

	"github.com/ds-test-framework/lobby/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	lock      sync.Mutex
	connected bool
	sent      []string
}

func newFakeLink() *fakeLink {
	return &fakeLink{connected: true}
}

func (l *fakeLink) Connected() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.connected
}

func (l *fakeLink) Send(msg string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) disconnect() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.connected = false
}

type recorder struct {
	lock  sync.Mutex
	kinds []ChangeKind
}

func (r *recorder) listen(k ChangeKind) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.kinds = append(r.kinds, k)
}

func (r *recorder) seen(k ChangeKind) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, s := range r.kinds {
		if s == k {
			return true
		}
	}
	return false
}

func newTestEngine() *Engine {
	return NewEngine(9000, log.DummyLogger())
}

func enqueue(t *testing.T, e *Engine, name string, capacity int) *fakeLink {
	link := newFakeLink()
	require.NoError(t, e.Enqueue(NewWaitingClient("10.0.0.1", name, link), capacity))
	return link
}

func TestFormSessionForEveryCapacity(t *testing.T) {
	for k := 2; k <= 5; k++ {
		e := newTestEngine()
		names := []string{"p0", "p1", "p2", "p3", "p4"}[:k]
		for i, n := range names {
			enqueue(t, e, n, k)
			if i < k-1 {
				assert.Empty(t, e.TryFormSessions())
			}
		}

		formed := e.TryFormSessions()
		require.Len(t, formed, 1)
		session := formed[0].Session
		require.Len(t, session.Players, k)
		for i, p := range session.Players {
			assert.Equal(t, names[i], p.Name)
			assert.Equal(t, i, p.PlayerID)
			assert.Equal(t, 9000+i, p.Port)
		}
		assert.Len(t, formed[0].Links, k)
		assert.Equal(t, 0, e.QueuedCount())

		stored, ok := e.Session(session.ID)
		require.True(t, ok)
		assert.Equal(t, session, stored)
	}
}

func TestSessionIDsAndPortsIncrease(t *testing.T) {
	e := newTestEngine()
	enqueue(t, e, "a", 2)
	enqueue(t, e, "b", 2)
	first := e.TryFormSessions()
	enqueue(t, e, "c", 2)
	enqueue(t, e, "d", 2)
	second := e.TryFormSessions()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Greater(t, second[0].Session.ID, first[0].Session.ID)
	assert.Equal(t, 9002, second[0].Session.Players[0].Port)
	assert.Equal(t, 9003, second[0].Session.Players[1].Port)
}

func TestQueueLeftoverStaysFIFO(t *testing.T) {
	e := newTestEngine()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		enqueue(t, e, n, 2)
	}
	formed := e.TryFormSessions()
	require.Len(t, formed, 2)
	assert.Equal(t, "a", formed[0].Session.Players[0].Name)
	assert.Equal(t, "b", formed[0].Session.Players[1].Name)
	assert.Equal(t, "c", formed[1].Session.Players[0].Name)
	assert.Equal(t, "d", formed[1].Session.Players[1].Name)

	k, ok := e.IsQueued("e")
	assert.True(t, ok)
	assert.Equal(t, 2, k)
}

func TestDuplicateEnqueueRejected(t *testing.T) {
	e := newTestEngine()
	enqueue(t, e, "a", 3)
	enqueue(t, e, "b", 3)

	err := e.Enqueue(NewWaitingClient("10.0.0.1", "a", newFakeLink()), 2)
	assert.Equal(t, ErrAlreadyQueued, err)

	k, ok := e.IsQueued("a")
	assert.True(t, ok)
	assert.Equal(t, 3, k)
	queues := e.Queues()
	require.Len(t, queues[3], 2)
	assert.Equal(t, "a", queues[3][0].Name)
	assert.Empty(t, queues[2])
}

func TestCancelRequest(t *testing.T) {
	e := newTestEngine()
	enqueue(t, e, "a", 2)
	enqueue(t, e, "b", 4)

	require.NoError(t, e.CancelRequest("b"))
	_, ok := e.IsQueued("b")
	assert.False(t, ok)
	_, ok = e.IsQueued("a")
	assert.True(t, ok)

	before := e.Queues()
	assert.Equal(t, ErrNotQueued, e.CancelRequest("zed"))
	assert.Equal(t, before, e.Queues())
}

func TestCapacityOutOfRangeRejected(t *testing.T) {
	e := newTestEngine()
	for _, k := range []int{-1, 0, 1, MaxCapacity + 1, 2147483647} {
		err := e.Enqueue(NewWaitingClient("10.0.0.1", "a", newFakeLink()), k)
		assert.Equal(t, ErrInvalidCapacity, err, "capacity %d", k)
	}
	assert.Equal(t, 0, e.QueuedCount())
	assert.Empty(t, e.Queues())
	assert.False(t, e.HasName("a"))

	enqueue(t, e, "a", MaxCapacity)
	assert.Empty(t, e.TryFormSessions())
	assert.Equal(t, 1, e.QueuedCount())
}

func TestReplaceSkipsCapacitiesOutOfRange(t *testing.T) {
	e := newTestEngine()
	e.ReplaceQueues(map[int][]*WaitingClient{
		1:          {{Address: "10.0.0.1", Name: "x", Arrival: 1}},
		2:          {{Address: "10.0.0.2", Name: "y", Arrival: 2}},
		2147483647: {{Address: "10.0.0.3", Name: "z", Arrival: 3}},
	})
	queues := e.Queues()
	require.Len(t, queues, 1)
	assert.Equal(t, "y", queues[2][0].Name)
}

func TestEnqueueClaimsName(t *testing.T) {
	e := newTestEngine()
	rec := &recorder{}
	e.SetListener(rec.listen)

	enqueue(t, e, "Bob", 3)
	assert.Equal(t, []string{"Bob"}, e.Names())
	assert.True(t, rec.seen(NamesChanged))
	assert.Equal(t, ErrNameTaken, e.ClaimName("Bob"))

	// a name claimed through checkname first can still queue
	require.NoError(t, e.ClaimName("Alice"))
	enqueue(t, e, "Alice", 3)
	assert.Equal(t, []string{"Alice", "Bob"}, e.Names())

	// a rejected request claims nothing
	assert.Equal(t, ErrAlreadyQueued, e.Enqueue(NewWaitingClient("10.0.0.1", "Bob", newFakeLink()), 2))
	assert.Equal(t, ErrInvalidCapacity, e.Enqueue(NewWaitingClient("10.0.0.1", "Carol", newFakeLink()), 1))
	assert.False(t, e.HasName("Carol"))
}

func TestDisconnectedClientsAreDropped(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.ClaimName("a"))
	linkA := enqueue(t, e, "a", 2)
	enqueue(t, e, "b", 2)
	linkA.disconnect()

	assert.Empty(t, e.TryFormSessions())
	_, ok := e.IsQueued("a")
	assert.False(t, ok)
	assert.False(t, e.HasName("a"))
	_, ok = e.IsQueued("b")
	assert.True(t, ok)

	enqueue(t, e, "c", 2)
	formed := e.TryFormSessions()
	require.Len(t, formed, 1)
	assert.Equal(t, "b", formed[0].Session.Players[0].Name)
	assert.Equal(t, "c", formed[0].Session.Players[1].Name)
}

func TestNames(t *testing.T) {
	e := newTestEngine()
	rec := &recorder{}
	e.SetListener(rec.listen)

	require.NoError(t, e.ClaimName("Alice"))
	assert.Equal(t, ErrNameTaken, e.ClaimName("Alice"))
	assert.Equal(t, ErrInvalidName, e.ClaimName("Al ice"))
	assert.True(t, rec.seen(NamesChanged))
	assert.Equal(t, []string{"Alice"}, e.Names())

	assert.True(t, e.ReleaseName("Alice"))
	assert.False(t, e.ReleaseName("Alice"))
}

func TestRemovePlayer(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.ClaimName("a"))
	require.NoError(t, e.ClaimName("b"))
	enqueue(t, e, "a", 2)
	enqueue(t, e, "b", 2)
	formed := e.TryFormSessions()
	require.Len(t, formed, 1)
	id := formed[0].Session.ID

	rec := &recorder{}
	e.SetListener(rec.listen)

	require.NoError(t, e.RemovePlayer(id, "a"))
	assert.True(t, rec.seen(SessionsChanged))
	assert.False(t, e.HasName("a"))

	s, ok := e.Session(id)
	require.True(t, ok)
	require.Len(t, s.Players, 1)
	assert.Equal(t, "b", s.Players[0].Name)

	assert.Equal(t, ErrPlayerNotInSession, e.RemovePlayer(id, "a"))
	assert.Equal(t, ErrSessionNotFound, e.RemovePlayer(id+100, "b"))
}

func TestLastPlayerEndsSession(t *testing.T) {
	e := newTestEngine()
	enqueue(t, e, "a", 2)
	enqueue(t, e, "b", 2)
	formed := e.TryFormSessions()
	require.Len(t, formed, 1)
	id := formed[0].Session.ID

	require.NoError(t, e.RemovePlayer(id, "a"))
	_, ok := e.Session(id)
	assert.True(t, ok)

	rec := &recorder{}
	e.SetListener(rec.listen)
	require.NoError(t, e.RemovePlayer(id, "b"))
	assert.True(t, rec.seen(SessionsChanged))

	_, ok = e.Session(id)
	assert.False(t, ok)
	assert.Empty(t, e.Sessions())
	assert.Empty(t, e.Names())
	assert.Equal(t, ErrSessionNotFound, e.RemovePlayer(id, "b"))

	// ids are never reused
	enqueue(t, e, "c", 2)
	enqueue(t, e, "d", 2)
	formed = e.TryFormSessions()
	require.Len(t, formed, 1)
	assert.Equal(t, id+1, formed[0].Session.ID)
}

func TestMutationsNotify(t *testing.T) {
	e := newTestEngine()
	rec := &recorder{}
	e.SetListener(rec.listen)

	enqueue(t, e, "a", 2)
	assert.True(t, rec.seen(QueuesChanged))
	enqueue(t, e, "b", 2)
	e.TryFormSessions()
	assert.True(t, rec.seen(SessionsChanged))
}

func TestReplaceKeepsCountersMonotonic(t *testing.T) {
	e := newTestEngine()
	e.ReplaceSessions([]*GameSession{
		{ID: 7, Players: []SessionPlayer{
			{Address: "10.0.0.1", Port: 9010, Name: "x", PlayerID: 0},
			{Address: "10.0.0.2", Port: 9011, Name: "y", PlayerID: 1},
		}},
	})
	e.ReplaceQueues(map[int][]*WaitingClient{
		2: {{Address: "10.0.0.3", Name: "z", Arrival: 40}},
	})

	enqueue(t, e, "w", 2)
	formed := e.TryFormSessions()
	require.Len(t, formed, 1)
	s := formed[0].Session
	assert.Equal(t, 8, s.ID)
	assert.Equal(t, "z", s.Players[0].Name)
	assert.Equal(t, 9012, s.Players[0].Port)
	assert.Nil(t, formed[0].Links[0])
	assert.NotNil(t, formed[0].Links[1])
}

func TestAttachDetachedClient(t *testing.T) {
	e := newTestEngine()
	e.ReplaceQueues(map[int][]*WaitingClient{
		3: {{Address: "10.0.0.3", Name: "z", Arrival: 1}},
	})
	link := newFakeLink()
	assert.Equal(t, ErrAlreadyQueued, e.Attach("z", 2, link))
	assert.NoError(t, e.Attach("z", 3, link))
	assert.Equal(t, ErrNotQueued, e.Attach("z", 3, newFakeLink()))
	assert.Equal(t, ErrNotQueued, e.Attach("nobody", 3, link))

	queues := e.Queues()
	require.Len(t, queues[3], 1)
	assert.False(t, queues[3][0].Detached())
}
