// Package notifier publishes formed game sessions on NATS
package notifier

import (
	"encoding/json"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Publisher is satisfied by *nats.Conn
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SessionEvent is the JSON body of a formed session event
type SessionEvent struct {
	NodeID    string                      `json:"node_id"`
	SessionID int                         `json:"session_id"`
	Players   []matchmaking.SessionPlayer `json:"players"`
	FormedAt  time.Time                   `json:"formed_at"`
}

type Notifier struct {
	publisher Publisher
	subject   string
	nodeID    string
	conn      *nats.Conn
	logger    *log.Logger
}

// New wraps an existing publisher. Events go to "<subject>.formed".
func New(publisher Publisher, subject, nodeID string, logger *log.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		subject:   subject,
		nodeID:    nodeID,
		logger:    logger.Service("Notifier"),
	}
}

// Connect dials the NATS server at url
func Connect(url, subject, nodeID string, logger *log.Logger) (*Notifier, error) {
	opts := []nats.Option{
		nats.Name("lobby-" + nodeID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", url)
	}
	n := New(nc, subject, nodeID, logger)
	n.conn = nc
	return n, nil
}

func (n *Notifier) Subject() string {
	return n.subject + ".formed"
}

// SessionFormed publishes s. Failures are logged only.
func (n *Notifier) SessionFormed(s *matchmaking.GameSession) {
	event := SessionEvent{
		NodeID:    n.nodeID,
		SessionID: s.ID,
		Players:   s.Players,
		FormedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.WithError(err).Error("Failed to encode session event")
		return
	}
	if err := n.publisher.Publish(n.Subject(), data); err != nil {
		n.logger.With(log.LogParams{
			"session_id": s.ID,
			"subject":    n.Subject(),
		}).WithError(err).Warn("Failed to publish session event")
	}
}

// Close drains the NATS connection when Connect created it
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
