package replication

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/protocol"
)

// ParseAddress validates a host:port server address
func ParseAddress(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("malformed address %q: %s", addr, err)
	}
	if host == "" {
		return "", fmt.Errorf("malformed address %q: empty host", addr)
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return "", fmt.Errorf("malformed address %q: bad port", addr)
	}
	return addr, nil
}

// ParseAddresses decodes a comma separated address list
func ParseAddresses(payload string) ([]string, error) {
	items := protocol.SplitList(payload)
	out := make([]string, 0, len(items))
	for _, item := range items {
		addr, err := ParseAddress(item)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func encodePlayer(address string, port int, name string, id int) string {
	return strings.Join([]string{address, strconv.Itoa(port), name, strconv.Itoa(id)}, protocol.DefaultSeparator)
}

type playerRecord struct {
	address string
	port    int
	name    string
	id      int
}

func parsePlayer(rec string) (playerRecord, error) {
	fields := protocol.Fields(rec)
	if len(fields) != 4 {
		return playerRecord{}, fmt.Errorf("player record %q: expected 4 fields, got %d", rec, len(fields))
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return playerRecord{}, fmt.Errorf("player record %q: bad port", rec)
	}
	id, err := strconv.Atoi(fields[3])
	if err != nil {
		return playerRecord{}, fmt.Errorf("player record %q: bad id", rec)
	}
	return playerRecord{address: fields[0], port: port, name: fields[2], id: id}, nil
}

// splitKeyed splits a "key p1,p2,..." record into its integer key and player records
func splitKeyed(rec string) (int, []string, error) {
	keyS, rest := protocol.Decode(rec)
	key, err := strconv.Atoi(keyS)
	if err != nil {
		return 0, nil, fmt.Errorf("record %q: bad key", rec)
	}
	return key, protocol.SplitList(rest), nil
}

// EncodeSession renders one session as "id p1,p2,..."
func EncodeSession(s *matchmaking.GameSession) string {
	players := make([]string, len(s.Players))
	for i, p := range s.Players {
		players[i] = encodePlayer(p.Address, p.Port, p.Name, p.PlayerID)
	}
	return strconv.Itoa(s.ID) + protocol.DefaultSeparator + protocol.JoinList(players)
}

func EncodeSessions(sessions []*matchmaking.GameSession) string {
	records := make([]string, len(sessions))
	for i, s := range sessions {
		records[i] = EncodeSession(s)
	}
	return protocol.JoinRecords(records)
}

func ParseSessions(payload string) ([]*matchmaking.GameSession, error) {
	records := protocol.SplitRecords(payload)
	out := make([]*matchmaking.GameSession, 0, len(records))
	for _, rec := range records {
		id, players, err := splitKeyed(rec)
		if err != nil {
			return nil, err
		}
		s := &matchmaking.GameSession{ID: id, Players: make([]matchmaking.SessionPlayer, 0, len(players))}
		for _, p := range players {
			pr, err := parsePlayer(p)
			if err != nil {
				return nil, err
			}
			s.Players = append(s.Players, matchmaking.SessionPlayer{
				Address:  pr.address,
				Port:     pr.port,
				Name:     pr.name,
				PlayerID: pr.id,
			})
		}
		out = append(out, s)
	}
	return out, nil
}

// EncodeQueues renders the queues as "capacity p1,p2,..." records in
// increasing capacity order. The id field of a waiting client carries its
// arrival order.
func EncodeQueues(queues map[int][]*matchmaking.WaitingClient) string {
	capacities := make([]int, 0, len(queues))
	for k, q := range queues {
		if len(q) > 0 {
			capacities = append(capacities, k)
		}
	}
	sort.Ints(capacities)

	records := make([]string, 0, len(capacities))
	for _, k := range capacities {
		players := make([]string, len(queues[k]))
		for i, c := range queues[k] {
			players[i] = encodePlayer(c.Address, c.Port, c.Name, c.Arrival)
		}
		records = append(records, strconv.Itoa(k)+protocol.DefaultSeparator+protocol.JoinList(players))
	}
	return protocol.JoinRecords(records)
}

// ParseQueues decodes a MATCH_RESPONSE payload. Records whose capacity
// lies outside [MinCapacity, MaxCapacity] are discarded.
func ParseQueues(payload string) (map[int][]*matchmaking.WaitingClient, error) {
	out := make(map[int][]*matchmaking.WaitingClient)
	for _, rec := range protocol.SplitRecords(payload) {
		k, players, err := splitKeyed(rec)
		if err != nil {
			return nil, err
		}
		if !matchmaking.ValidCapacity(k) {
			continue
		}
		for _, p := range players {
			pr, err := parsePlayer(p)
			if err != nil {
				return nil, err
			}
			out[k] = append(out[k], &matchmaking.WaitingClient{
				Address: pr.address,
				Port:    pr.port,
				Name:    pr.name,
				Arrival: pr.id,
			})
		}
	}
	return out, nil
}

func EncodeNames(names []string) string {
	return protocol.JoinList(names)
}

func ParseNames(payload string) []string {
	return protocol.SplitList(payload)
}
