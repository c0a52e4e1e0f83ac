package matchmaking

import (
	"sort"
	"sync"
)

// NameRegistry is the set of player names claimed server wide
type NameRegistry struct {
	names map[string]struct{}
	lock  *sync.Mutex
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{
		names: make(map[string]struct{}),
		lock:  new(sync.Mutex),
	}
}

// Claim adds name, returning false when it is already taken
func (r *NameRegistry) Claim(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.names[name]; ok {
		return false
	}
	r.names[name] = struct{}{}
	return true
}

func (r *NameRegistry) Release(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.names[name]; !ok {
		return false
	}
	delete(r.names, name)
	return true
}

func (r *NameRegistry) Has(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.names[name]
	return ok
}

// Snapshot returns the names in sorted order
func (r *NameRegistry) Snapshot() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the whole set for names
func (r *NameRegistry) Replace(names []string) {
	fresh := make(map[string]struct{}, len(names))
	for _, n := range names {
		fresh[n] = struct{}{}
	}
	r.lock.Lock()
	r.names = fresh
	r.lock.Unlock()
}
