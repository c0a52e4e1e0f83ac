package replication

import (
	"sync"

	"golang.org/x/exp/slices"
)

// ReplicaList is the ordered, duplicate free membership of the pool.
// Position 0 is the primary, the rest are backups in promotion order.
// Every change bumps a version so a reader can tell whether the list
// moved underneath it.
type ReplicaList struct {
	addrs   []string
	version uint64
	lock    *sync.Mutex
}

func NewReplicaList() *ReplicaList {
	return &ReplicaList{
		addrs: make([]string, 0),
		lock:  new(sync.Mutex),
	}
}

func dedupe(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != "" && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// Replace rewrites the list wholesale
func (l *ReplicaList) Replace(addrs []string) {
	fresh := dedupe(addrs)
	l.lock.Lock()
	defer l.lock.Unlock()
	l.addrs = fresh
	l.version++
}

// Append adds addr at the end unless it is already a member
func (l *ReplicaList) Append(addr string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if slices.Contains(l.addrs, addr) {
		return false
	}
	l.addrs = append(l.addrs, addr)
	l.version++
	return true
}

func (l *ReplicaList) Remove(addr string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	idx := slices.Index(l.addrs, addr)
	if idx < 0 {
		return false
	}
	l.addrs = slices.Delete(slices.Clone(l.addrs), idx, idx+1)
	l.version++
	return true
}

// RemovePrimaryIf drops position 0 only if it is still primary and the
// list has not changed since version was read
func (l *ReplicaList) RemovePrimaryIf(primary string, version uint64) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.version != version || len(l.addrs) == 0 || l.addrs[0] != primary {
		return false
	}
	l.addrs = slices.Clone(l.addrs[1:])
	l.version++
	return true
}

func (l *ReplicaList) Snapshot() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Clone(l.addrs)
}

func (l *ReplicaList) Version() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.version
}

func (l *ReplicaList) Primary() (string, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.addrs) == 0 {
		return "", false
	}
	return l.addrs[0], true
}

func (l *ReplicaList) IndexOf(addr string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Index(l.addrs, addr)
}

// Others returns every member except self
func (l *ReplicaList) Others(self string) []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	out := make([]string, 0, len(l.addrs))
	for _, a := range l.addrs {
		if a != self {
			out = append(out, a)
		}
	}
	return out
}
