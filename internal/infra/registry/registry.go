// Package registry holds the coordinator's set of known workers.
//
// Peers are keyed by IP address; two entries differing only by port collide.
// Membership changes only between dispatch rounds: the dispatcher snapshots
// the set, performs network I/O against the snapshot, and applies removals
// after every exchange in the round has finished.
package registry

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
)

// Registry is a set of peers owned by one coordinator run.
type Registry struct {
	mu    sync.RWMutex
	peers map[netip.Addr]domain.Peer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[netip.Addr]domain.Peer)}
}

// Add inserts p. Adding a peer whose address is already known is a no-op and
// returns false.
func (r *Registry) Add(p domain.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	if _, ok := r.peers[key]; ok {
		return false
	}
	r.peers[key] = p
	metrics.PeersKnown.Set(float64(len(r.peers)))
	return true
}

// RemoveAll deletes every listed peer and returns how many were present.
// Absent peers are ignored.
func (r *Registry) RemoveAll(peers []domain.Peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, p := range peers {
		key := p.Key()
		if _, ok := r.peers[key]; ok {
			delete(r.peers, key)
			removed++
		}
	}
	metrics.PeersKnown.Set(float64(len(r.peers)))
	return removed
}

// IsEmpty reports whether no peers are known.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns a copy of the current members ordered by address.
// The caller may iterate it while performing I/O; the registry is not held.
func (r *Registry) Snapshot() []domain.Peer {
	r.mu.RLock()
	out := make([]domain.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out
}
