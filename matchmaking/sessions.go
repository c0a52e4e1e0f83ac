package matchmaking

import (
	"math"
	"sync"

	"github.com/petar/GoLLRB/llrb"
)

type sessionItem struct {
	session *GameSession
}

func (i sessionItem) Less(than llrb.Item) bool {
	return i.session.ID < than.(sessionItem).session.ID
}

func sessionKey(id int) sessionItem {
	return sessionItem{session: &GameSession{ID: id}}
}

// SessionRegistry maps session ids to sessions, iterated in id order
type SessionRegistry struct {
	tree *llrb.LLRB
	lock *sync.Mutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		tree: llrb.New(),
		lock: new(sync.Mutex),
	}
}

func (r *SessionRegistry) Add(s *GameSession) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tree.ReplaceOrInsert(sessionItem{session: s})
}

// Get returns a copy of the session with id
func (r *SessionRegistry) Get(id int) (*GameSession, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	item := r.tree.Get(sessionKey(id))
	if item == nil {
		return nil, false
	}
	return item.(sessionItem).session.Clone(), true
}

// RemovePlayer drops name from the session with id. A session left with
// no players is deleted and ended is true.
func (r *SessionRegistry) RemovePlayer(id int, name string) (ended bool, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	item := r.tree.Get(sessionKey(id))
	if item == nil {
		return false, ErrSessionNotFound
	}
	s := item.(sessionItem).session
	for i, p := range s.Players {
		if p.Name == name {
			players := make([]SessionPlayer, 0, len(s.Players)-1)
			players = append(players, s.Players[:i]...)
			players = append(players, s.Players[i+1:]...)
			s.Players = players
			if len(players) == 0 {
				r.tree.Delete(sessionKey(id))
				return true, nil
			}
			return false, nil
		}
	}
	return false, ErrPlayerNotInSession
}

func (r *SessionRegistry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.tree.Len()
}

// Snapshot returns copies of every session in increasing id order
func (r *SessionRegistry) Snapshot() []*GameSession {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]*GameSession, 0, r.tree.Len())
	r.tree.AscendGreaterOrEqual(sessionKey(math.MinInt), func(i llrb.Item) bool {
		out = append(out, i.(sessionItem).session.Clone())
		return true
	})
	return out
}

// Replace swaps the whole registry for sessions
func (r *SessionRegistry) Replace(sessions []*GameSession) {
	tree := llrb.New()
	for _, s := range sessions {
		tree.ReplaceOrInsert(sessionItem{session: s.Clone()})
	}
	r.lock.Lock()
	r.tree = tree
	r.lock.Unlock()
}
