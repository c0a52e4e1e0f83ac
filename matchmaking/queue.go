package matchmaking

import (
	"sort"
	"sync"

	"golang.org/x/exp/slices"
)

// QueueTable holds one FIFO WaitQueue per capacity. Empty queues are
// removed from the table.
type QueueTable struct {
	queues map[int][]*WaitingClient
	lock   *sync.Mutex
}

func NewQueueTable() *QueueTable {
	return &QueueTable{
		queues: make(map[int][]*WaitingClient),
		lock:   new(sync.Mutex),
	}
}

func (t *QueueTable) set(capacity int, q []*WaitingClient) {
	if len(q) == 0 {
		delete(t.queues, capacity)
		return
	}
	t.queues[capacity] = q
}

func (t *QueueTable) find(name string) (int, int) {
	for capacity, q := range t.queues {
		idx := slices.IndexFunc(q, func(c *WaitingClient) bool { return c.Name == name })
		if idx >= 0 {
			return capacity, idx
		}
	}
	return -1, -1
}

// Add appends c to the queue of capacity
func (t *QueueTable) Add(c *WaitingClient, capacity int) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if k, _ := t.find(c.Name); k >= 0 {
		return ErrAlreadyQueued
	}
	t.queues[capacity] = append(t.queues[capacity], c)
	return nil
}

// Remove drops the client called name from whichever queue holds it
func (t *QueueTable) Remove(name string) (*WaitingClient, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	k, idx := t.find(name)
	if k < 0 {
		return nil, false
	}
	c := t.queues[k][idx]
	t.set(k, slices.Delete(t.queues[k], idx, idx+1))
	return c, true
}

// Find returns the capacity the client called name is queued for
func (t *QueueTable) Find(name string) (int, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	k, _ := t.find(name)
	return k, k >= 0
}

// Attach binds link to the detached client called name waiting for
// capacity. It fails with ErrNotQueued when no detached client has that
// name and with ErrAlreadyQueued when it waits for another capacity.
func (t *QueueTable) Attach(name string, capacity int, link Link) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	k, idx := t.find(name)
	if k < 0 || !t.queues[k][idx].Detached() {
		return ErrNotQueued
	}
	if k != capacity {
		return ErrAlreadyQueued
	}
	t.queues[k][idx].link = link
	return nil
}

// Capacities returns the capacities that have waiting clients, in
// increasing order
func (t *QueueTable) Capacities() []int {
	t.lock.Lock()
	defer t.lock.Unlock()
	out := make([]int, 0, len(t.queues))
	for k := range t.queues {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// take runs one formation attempt on the queue of capacity k. Disconnected
// clients are dropped and returned. When at least k clients remain the
// first k are dequeued and returned as members.
func (t *QueueTable) take(k int) (members []*WaitingClient, dropped []*WaitingClient, ok bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.queues[k]) < k {
		return nil, nil, false
	}
	kept := make([]*WaitingClient, 0, len(t.queues[k]))
	for _, c := range t.queues[k] {
		if c.Connected() {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	if len(kept) < k {
		t.set(k, kept)
		return nil, dropped, false
	}
	members = kept[:k]
	t.set(k, slices.Clone(kept[k:]))
	return members, dropped, true
}

// Len is the number of queued clients over every capacity
func (t *QueueTable) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	n := 0
	for _, q := range t.queues {
		n += len(q)
	}
	return n
}

// Snapshot returns copies of the non empty queues keyed by capacity
func (t *QueueTable) Snapshot() map[int][]*WaitingClient {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make(map[int][]*WaitingClient)
	for k, q := range t.queues {
		cp := make([]*WaitingClient, len(q))
		for i, c := range q {
			cp[i] = c.clone()
		}
		out[k] = cp
	}
	return out
}

// Replace swaps the whole table for queues. Restored clients are detached
// and capacities outside [MinCapacity, MaxCapacity] are skipped.
func (t *QueueTable) Replace(queues map[int][]*WaitingClient) {
	fresh := make(map[int][]*WaitingClient)
	for k, q := range queues {
		if !ValidCapacity(k) || len(q) == 0 {
			continue
		}
		for _, c := range q {
			cp := c.clone()
			cp.link = nil
			fresh[k] = append(fresh[k], cp)
		}
	}
	t.lock.Lock()
	t.queues = fresh
	t.lock.Unlock()
}
