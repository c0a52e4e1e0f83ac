package matchmaking

import "errors"

var (
	ErrAlreadyQueued      = errors.New("already queued")
	ErrInvalidCapacity    = errors.New("invalid capacity")
	ErrNotQueued          = errors.New("not in queue")
	ErrNameTaken          = errors.New("name already exists")
	ErrInvalidName        = errors.New("invalid name")
	ErrSessionNotFound    = errors.New("session not found")
	ErrPlayerNotInSession = errors.New("player not in session")
)

const (
	// MinCapacity is the smallest game that is ever matched
	MinCapacity = 2
	// MaxCapacity is the largest game a client may ask for
	MaxCapacity = 64
)

func ValidCapacity(k int) bool {
	return k >= MinCapacity && k <= MaxCapacity
}

// Link is the connection of a waiting client as seen by the engine
type Link interface {
	// Connected reports whether the client can still be reached
	Connected() bool
	// Send delivers an encoded message to the client
	Send(msg string) error
}

// WaitingClient is a client queued for a game of a given capacity
type WaitingClient struct {
	Address string
	// Port stays 0 until the client is matched into a session
	Port    int
	Name    string
	Arrival int

	link Link
}

// NewWaitingClient returns a client bound to link. A nil link yields a
// detached client, the state of every client restored from a snapshot.
func NewWaitingClient(address, name string, link Link) *WaitingClient {
	return &WaitingClient{
		Address: address,
		Name:    name,
		link:    link,
	}
}

func (c *WaitingClient) Link() Link {
	return c.link
}

// Detached reports whether the client has no local connection
func (c *WaitingClient) Detached() bool {
	return c.link == nil
}

// Connected is true for detached clients since nothing proves they left
func (c *WaitingClient) Connected() bool {
	if c.link == nil {
		return true
	}
	return c.link.Connected()
}

func (c *WaitingClient) clone() *WaitingClient {
	cp := *c
	return &cp
}

// SessionPlayer is one member of a formed GameSession
type SessionPlayer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	PlayerID int    `json:"player_id"`
}

// GameSession is a group of matched players
type GameSession struct {
	ID      int             `json:"id"`
	Players []SessionPlayer `json:"players"`
}

func (s *GameSession) Clone() *GameSession {
	players := make([]SessionPlayer, len(s.Players))
	copy(players, s.Players)
	return &GameSession{
		ID:      s.ID,
		Players: players,
	}
}

// Player returns the member called name
func (s *GameSession) Player(name string) (SessionPlayer, bool) {
	for _, p := range s.Players {
		if p.Name == name {
			return p, true
		}
	}
	return SessionPlayer{}, false
}

// FormedSession is a session created by TryFormSessions together with the
// links of its members, in player id order. Detached members have a nil link.
type FormedSession struct {
	Session *GameSession
	Links   []Link
}

// ChangeKind names the collection a mutation touched
type ChangeKind int

const (
	NamesChanged ChangeKind = iota
	QueuesChanged
	SessionsChanged
)

func (k ChangeKind) String() string {
	switch k {
	case NamesChanged:
		return "names"
	case QueuesChanged:
		return "queues"
	case SessionsChanged:
		return "sessions"
	}
	return "unknown"
}

// Listener is invoked after every committed mutation
type Listener func(ChangeKind)
