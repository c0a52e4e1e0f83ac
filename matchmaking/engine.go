// Package matchmaking groups waiting clients into game sessions.
//
// The Engine owns three collections: the WaitQueue table keyed by
// capacity, the GameSession registry and the PlayerName registry. Each is
// guarded by its own lock; a session formation mutates the queues and the
// registry as two separate steps. Every committed mutation is reported to
// the registered Listener, which is how replication learns what to push.
package matchmaking

import (
	"sync"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/protocol"
	"github.com/ds-test-framework/lobby/util"
)

type Engine struct {
	queues   *QueueTable
	sessions *SessionRegistry
	names    *NameRegistry

	sessionIDs *util.Counter
	ports      *util.Counter
	arrivals   *util.Counter

	listener     Listener
	listenerLock *sync.Mutex

	logger *log.Logger
}

// NewEngine returns an empty engine handing out peer ports from peerPortBase
func NewEngine(peerPortBase int, logger *log.Logger) *Engine {
	return &Engine{
		queues:       NewQueueTable(),
		sessions:     NewSessionRegistry(),
		names:        NewNameRegistry(),
		sessionIDs:   util.NewCounterFrom(1),
		ports:        util.NewCounterFrom(peerPortBase),
		arrivals:     util.NewCounter(),
		listenerLock: new(sync.Mutex),
		logger:       logger.Service("Matchmaking"),
	}
}

// SetListener registers l to be invoked after every committed mutation.
// Passing nil stops notifications.
func (e *Engine) SetListener(l Listener) {
	e.listenerLock.Lock()
	defer e.listenerLock.Unlock()
	e.listener = l
}

func (e *Engine) notify(kinds ...ChangeKind) {
	e.listenerLock.Lock()
	l := e.listener
	e.listenerLock.Unlock()
	if l == nil {
		return
	}
	for _, k := range kinds {
		l(k)
	}
}

// ClaimName registers name server wide
func (e *Engine) ClaimName(name string) error {
	if !protocol.ValidField(name) {
		return ErrInvalidName
	}
	if !e.names.Claim(name) {
		return ErrNameTaken
	}
	e.notify(NamesChanged)
	return nil
}

// ReleaseName frees name, returning false if it was not claimed
func (e *Engine) ReleaseName(name string) bool {
	if !e.names.Release(name) {
		return false
	}
	e.notify(NamesChanged)
	return true
}

func (e *Engine) HasName(name string) bool {
	return e.names.Has(name)
}

// Enqueue appends client to the WaitQueue of capacity. It is rejected with
// ErrAlreadyQueued when a client with the same name waits in any queue.
// A name nobody claimed yet is claimed for the client; a claimed name is
// taken to belong to the client that claimed it through checkname.
func (e *Engine) Enqueue(client *WaitingClient, capacity int) error {
	if !protocol.ValidField(client.Name) {
		return ErrInvalidName
	}
	if !ValidCapacity(capacity) {
		return ErrInvalidCapacity
	}
	client.Arrival = e.arrivals.Next()
	client.Port = 0
	if err := e.queues.Add(client, capacity); err != nil {
		return err
	}
	claimed := e.names.Claim(client.Name)
	e.logger.With(log.LogParams{
		"name":     client.Name,
		"capacity": capacity,
	}).Debug("Client queued")
	if claimed {
		e.notify(NamesChanged)
	}
	e.notify(QueuesChanged)
	return nil
}

// Attach binds link to a detached client waiting for capacity, which is
// how a client restored from a snapshot resumes on a newly promoted
// primary. See QueueTable.Attach for the errors.
func (e *Engine) Attach(name string, capacity int, link Link) error {
	return e.queues.Attach(name, capacity, link)
}

// CancelRequest removes name from the queue holding it
func (e *Engine) CancelRequest(name string) error {
	if _, ok := e.queues.Remove(name); !ok {
		return ErrNotQueued
	}
	e.notify(QueuesChanged)
	return nil
}

// IsQueued returns the capacity name waits for
func (e *Engine) IsQueued(name string) (int, bool) {
	return e.queues.Find(name)
}

// QueuedCount is the number of waiting clients across every queue
func (e *Engine) QueuedCount() int {
	return e.queues.Len()
}

// TryFormSessions forms every session it can. Capacities are scanned in
// increasing order; a queue with at least k entries first drops its
// disconnected clients and only forms a session when k connected clients
// remain. Members keep their FIFO order and get player ids 0..k-1.
func (e *Engine) TryFormSessions() []*FormedSession {
	formed := make([]*FormedSession, 0)
	queuesChanged := false
	namesChanged := false

	for _, k := range e.queues.Capacities() {
		for {
			members, dropped, ok := e.queues.take(k)
			for _, c := range dropped {
				queuesChanged = true
				e.logger.With(log.LogParams{
					"name":     c.Name,
					"capacity": k,
				}).Info("Dropping disconnected client from queue")
				if e.names.Release(c.Name) {
					namesChanged = true
				}
			}
			if !ok {
				break
			}
			queuesChanged = true
			formed = append(formed, e.register(members))
		}
	}

	if namesChanged {
		e.notify(NamesChanged)
	}
	if queuesChanged {
		e.notify(QueuesChanged)
	}
	if len(formed) > 0 {
		e.notify(SessionsChanged)
	}
	return formed
}

func (e *Engine) register(members []*WaitingClient) *FormedSession {
	session := &GameSession{
		ID:      e.sessionIDs.Next(),
		Players: make([]SessionPlayer, len(members)),
	}
	links := make([]Link, len(members))
	for i, c := range members {
		c.Port = e.ports.Next()
		session.Players[i] = SessionPlayer{
			Address:  c.Address,
			Port:     c.Port,
			Name:     c.Name,
			PlayerID: i,
		}
		links[i] = c.link
	}
	e.sessions.Add(session)

	e.logger.With(log.LogParams{
		"session_id": session.ID,
		"capacity":   len(members),
	}).Info("Formed game session")

	return &FormedSession{
		Session: session.Clone(),
		Links:   links,
	}
}

// Session returns a copy of the session with id
func (e *Engine) Session(id int) (*GameSession, bool) {
	return e.sessions.Get(id)
}

// RemovePlayer removes name from the session with id and frees the name.
// The session ends once its last player is removed.
func (e *Engine) RemovePlayer(sessionID int, name string) error {
	ended, err := e.sessions.RemovePlayer(sessionID, name)
	if err != nil {
		return err
	}
	if ended {
		e.logger.With(log.LogParams{"session_id": sessionID}).Info("Game session ended")
	}
	released := e.names.Release(name)
	e.notify(SessionsChanged)
	if released {
		e.notify(NamesChanged)
	}
	return nil
}

// Names returns the claimed names
func (e *Engine) Names() []string {
	return e.names.Snapshot()
}

// Sessions returns copies of the sessions ordered by id
func (e *Engine) Sessions() []*GameSession {
	return e.sessions.Snapshot()
}

// Queues returns copies of the non empty queues keyed by capacity
func (e *Engine) Queues() map[int][]*WaitingClient {
	return e.queues.Snapshot()
}

// ReplaceNames installs a names snapshot. No notification is emitted.
func (e *Engine) ReplaceNames(names []string) {
	e.names.Replace(names)
}

// ReplaceSessions installs a sessions snapshot and moves the session id
// and peer port counters past the restored values
func (e *Engine) ReplaceSessions(sessions []*GameSession) {
	for _, s := range sessions {
		e.sessionIDs.AdvancePast(s.ID)
		for _, p := range s.Players {
			e.ports.AdvancePast(p.Port)
		}
	}
	e.sessions.Replace(sessions)
}

// ReplaceQueues installs a queues snapshot. Restored clients are detached.
func (e *Engine) ReplaceQueues(queues map[int][]*WaitingClient) {
	for _, q := range queues {
		for _, c := range q {
			e.arrivals.AdvancePast(c.Arrival)
		}
	}
	e.queues.Replace(queues)
}
