package relay

import (
	"sync"

	"github.com/samber/lo"
)

// Recipient is an opted-in principal (Telegram user id).
type Recipient int64

// Registry is the set of recipients. There is no removal.
type Registry struct {
	mu      sync.RWMutex
	members map[Recipient]struct{}
}

func NewRegistry() *Registry {
	return &Registry{members: map[Recipient]struct{}{}}
}

// Register adds p and reports whether it was new.
func (r *Registry) Register(p Recipient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[p]; ok {
		return false
	}
	r.members[p] = struct{}{}
	return true
}

// Snapshot returns a copy of the membership. Order is unspecified.
func (r *Registry) Snapshot() []Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
