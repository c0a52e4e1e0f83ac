package frontend

import (
	"strconv"
	"strings"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/protocol"
)

const (
	reasonNameExists      = "This name already exists"
	reasonInvalidName     = "invalid name"
	reasonAlreadyQueued   = "already queued"
	reasonInvalidCapacity = "invalid capacity"
	reasonNotQueued       = "not in queue"
	reasonNoSession       = "session not found"
	reasonNotInSession    = "player not in session"
	reasonMalformed       = "malformed request"
	reasonUnknown         = "unknown request"
)

// SessionPayload renders a session for clients as
// "<id> <addr port name playerId id>,<...>"
func SessionPayload(s *matchmaking.GameSession) string {
	id := strconv.Itoa(s.ID)
	players := make([]string, len(s.Players))
	for i, p := range s.Players {
		players[i] = strings.Join([]string{p.Address, strconv.Itoa(p.Port), p.Name, strconv.Itoa(p.PlayerID), id}, protocol.DefaultSeparator)
	}
	return id + protocol.DefaultSeparator + protocol.JoinList(players)
}

// dispatch answers one client request. An empty response means the client
// gets its answer later, when its session is formed.
func (s *Server) dispatch(c *client, msg string) string {
	verb, payload := protocol.Decode(msg)
	args := protocol.Fields(payload)

	s.Logger.With(log.LogParams{
		"client": c.host,
		"verb":   verb,
	}).Debug("Client request")

	switch verb {
	case protocol.VerbCheckName:
		if len(args) != 1 {
			return protocol.ErrorResponse(reasonMalformed)
		}
		return s.checkName(args[0])
	case protocol.VerbGame:
		if len(args) != 2 {
			return protocol.ErrorResponse(reasonMalformed)
		}
		capacity, err := strconv.Atoi(args[1])
		if err != nil {
			return protocol.ErrorResponse(reasonMalformed)
		}
		return s.game(c, args[0], capacity)
	case protocol.VerbPlayers:
		return protocol.SuccessResponse(protocol.VerbPlayers, strconv.Itoa(s.engine.QueuedCount()))
	case protocol.VerbCancel:
		if len(args) != 1 {
			return protocol.ErrorResponse(reasonMalformed)
		}
		if err := s.engine.CancelRequest(args[0]); err != nil {
			return protocol.FailureResponse(protocol.VerbCancel, reasonNotQueued)
		}
		return protocol.SuccessResponse(protocol.VerbCancel, args[0])
	case protocol.VerbReconn, protocol.VerbRmPlayer:
		if len(args) != 2 {
			return protocol.ErrorResponse(reasonMalformed)
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return protocol.ErrorResponse(reasonMalformed)
		}
		if verb == protocol.VerbReconn {
			return s.reconnect(args[0], id)
		}
		return s.removePlayer(args[0], id)
	}
	return protocol.ErrorResponse(reasonUnknown)
}

func (s *Server) checkName(name string) string {
	switch s.engine.ClaimName(name) {
	case nil:
		return protocol.SuccessResponse(protocol.VerbCheckName, name)
	case matchmaking.ErrInvalidName:
		return protocol.FailureResponse(protocol.VerbCheckName, reasonInvalidName)
	default:
		return protocol.FailureResponse(protocol.VerbCheckName, reasonNameExists)
	}
}

func (s *Server) game(c *client, name string, capacity int) string {
	if !matchmaking.ValidCapacity(capacity) {
		return protocol.FailureResponse(protocol.VerbGame, reasonInvalidCapacity)
	}
	switch err := s.engine.Attach(name, capacity, c); err {
	case nil:
		s.Logger.With(log.LogParams{"name": name}).Info("Client resumed its queued request")
	case matchmaking.ErrAlreadyQueued:
		// restored request for another capacity
		return protocol.FailureResponse(protocol.VerbGame, reasonAlreadyQueued)
	default:
		switch err := s.engine.Enqueue(matchmaking.NewWaitingClient(c.host, name, c), capacity); err {
		case nil:
		case matchmaking.ErrAlreadyQueued:
			return protocol.FailureResponse(protocol.VerbGame, reasonAlreadyQueued)
		case matchmaking.ErrInvalidName:
			return protocol.FailureResponse(protocol.VerbGame, reasonInvalidName)
		case matchmaking.ErrInvalidCapacity:
			return protocol.FailureResponse(protocol.VerbGame, reasonInvalidCapacity)
		default:
			return protocol.FailureResponse(protocol.VerbGame, err.Error())
		}
	}
	s.announce(s.engine.TryFormSessions())
	return ""
}

func (s *Server) reconnect(name string, id int) string {
	session, ok := s.engine.Session(id)
	if !ok {
		return protocol.FailureResponse(protocol.VerbReconn, reasonNoSession)
	}
	if _, ok := session.Player(name); !ok {
		return protocol.FailureResponse(protocol.VerbReconn, reasonNotInSession)
	}
	return protocol.SuccessResponse(protocol.VerbReconn, SessionPayload(session))
}

func (s *Server) removePlayer(name string, id int) string {
	switch s.engine.RemovePlayer(id, name) {
	case nil:
		return protocol.SuccessResponse(protocol.VerbRmPlayer, name)
	case matchmaking.ErrSessionNotFound:
		return protocol.FailureResponse(protocol.VerbRmPlayer, reasonNoSession)
	default:
		return protocol.FailureResponse(protocol.VerbRmPlayer, reasonNotInSession)
	}
}
