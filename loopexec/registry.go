package loopexec

import (
	"sync"

	"github.com/flowmesh/reactor/future"
)

// promiseRegistry tracks every promise created by EventLoop.Schedule so
// shutdown can force-fail anything still outstanding. A ring buffer of
// IDs is scavenged a bounded batch at a time per tick, pruning entries
// that have already settled, rather than walking the whole set on
// every tick. Adapted from the teacher's eventloop.registry (ring
// buffer scavenging), generalized from its JS-promise type to
// future.Promise and from weak-pointer GC-tracking (not applicable
// here: future.Promise is an interface, not a type the registry can
// hold a weak reference to) to straightforward strong references
// pruned by settlement state.
type promiseRegistry struct {
	mu         sync.RWMutex
	data       map[uint64]future.Promise
	ring       []uint64
	head       int
	nextID     uint64
	scavengeMu sync.Mutex
}

func newPromiseRegistry() *promiseRegistry {
	return &promiseRegistry{
		data:   make(map[uint64]future.Promise),
		ring:   make([]uint64, 0, 1024),
		nextID: 1,
	}
}

func (r *promiseRegistry) Track(p future.Promise) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.data[id] = p
	r.ring = append(r.ring, id)
	return id
}

// Scavenge drops entries whose promise has already settled, advancing
// through at most batchSize ring slots per call.
func (r *promiseRegistry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}
	start := r.head
	end := start + batchSize
	if end > ringLen {
		end = ringLen
	}

	type item struct {
		id  uint64
		idx int
	}
	var toRemove []item
	for i := start; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		p, ok := r.data[id]
		if !ok || p.State() != future.Pending {
			toRemove = append(toRemove, item{id, i})
		}
	}
	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range toRemove {
		delete(r.data, it.id)
		if it.idx < len(r.ring) && r.ring[it.idx] == it.id {
			r.ring[it.idx] = 0
		}
	}
	r.head = nextHead

	if nextHead == 0 {
		active := len(r.data)
		capacity := len(r.ring)
		if capacity > 256 && float64(active) < float64(capacity)*0.25 {
			r.compactLocked()
		}
	}
}

func (r *promiseRegistry) compactLocked() {
	newRing := make([]uint64, 0, len(r.data))
	newData := make(map[uint64]future.Promise, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if p, ok := r.data[id]; ok {
			newRing = append(newRing, id)
			newData[id] = p
		}
	}
	r.ring = newRing
	r.data = newData
	r.head = 0
}

// RejectAll fails every promise still Pending, per the explicit-reject
// shutdown policy: nothing scheduled on a terminated loop is left to
// hang forever.
func (r *promiseRegistry) RejectAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.data {
		p.TryFail(err)
		delete(r.data, id)
	}
	r.ring = r.ring[:0]
	r.head = 0
}
