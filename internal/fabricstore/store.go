package fabricstore

import (
	"sync"

	"github.com/coregrid/shardfabric/internal/placement"
)

// Result is the sum type every routed Store operation returns: either the
// request was served locally (Local true) or it belongs to a remote owner
// (Local false, Owner set).
type Result[R any] struct {
	Local bool
	Value R
	Found bool
	Owner placement.NodeID
}

func localResult[R any](v R, found bool) Result[R] {
	return Result[R]{Local: true, Value: v, Found: found}
}

func remoteResult[R any](owner placement.NodeID) Result[R] {
	return Result[R]{Local: false, Owner: owner}
}

// Pair is a single migrated (or migrating) key-value entry.
type Pair[V any] struct {
	Key   string
	Value V
}

// Store holds the mapping from key to value for the shard a node owns,
// consulting a shared placement.Placement to decide what is local.
type Store[V any] struct {
	mu    sync.RWMutex
	data  map[string]V
	self  placement.NodeID
	place *placement.Placement
}

// New creates an empty Store scoped to self, routing every operation
// through place.
func New[V any](self placement.NodeID, place *placement.Placement) *Store[V] {
	return &Store[V]{
		data:  make(map[string]V),
		self:  self,
		place: place,
	}
}

// Upsert runs f over the entry for key when key routes to this node,
// creating a zero-valued entry first if none exists.
//
// Behavior:
//   - Local key, entry present: f mutates the existing value in place.
//   - Local key, entry absent: a zero value is created, f runs over it,
//     and the result is stored — the write path always lands.
//   - Remote key: the store is untouched and the owner is reported back
//     so the caller can forward.
//
// Thread-safety:
//   - Safe for concurrent calls; f runs under the store's write lock
//     and must not call back into the store.
//
// Parameters:
//   - s: the store to operate on
//   - key: the key being written
//   - f: the mutation to apply; its return value is opaque to Upsert
//
// Returns:
//   - Local(f's result) when the key routed here, Remote(owner)
//     otherwise.
func Upsert[V any, R any](s *Store[V], key string, f func(v *V) R) Result[R] {
	owner, ok := s.place.Owner(key)
	if !ok || owner != s.self {
		return remoteResult[R](owner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.data[key] // zero value if absent
	result := f(&v)
	s.data[key] = v
	return localResult(result, true)
}

// GetMut runs f over the entry for key when key routes to this node and
// the entry exists.
//
// Behavior:
//   - Local key, entry present: f runs and Found is true.
//   - Local key, entry absent: nothing is created and Found is false —
//     this is the read path's "local, absent" answer.
//   - Remote key: the store is untouched and the owner is reported back
//     so the caller can forward.
//
// Thread-safety:
//   - Safe for concurrent calls; f runs under the store's write lock
//     and must not call back into the store.
//
// Parameters:
//   - s: the store to operate on
//   - key: the key being read
//   - f: applied to the entry when it exists; may mutate it
//
// Returns:
//   - Local(f's result, Found=true) for an existing local entry,
//     Local(zero, Found=false) for a missing one, Remote(owner) for a
//     remote key.
func GetMut[V any, R any](s *Store[V], key string, f func(v *V) R) Result[R] {
	owner, ok := s.place.Owner(key)
	if !ok || owner != s.self {
		return remoteResult[R](owner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, existed := s.data[key]
	if !existed {
		var zero R
		return localResult(zero, false)
	}
	result := f(&v)
	s.data[key] = v
	return localResult(result, true)
}

// Insert is an unconditional local write.
//
// It exists for the migration receiver, which must not re-check
// ownership: the sender already decided the pair belongs here, and the
// receiver's own placement is guaranteed to agree by the time any
// reader asks.
//
// Parameters:
//   - key: the key to store
//   - value: the value to store, overwriting any existing entry
func (s *Store[V]) Insert(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key unconditionally.
//
// Used by the migration sender after an acknowledged transfer. Deleting
// only on ack is what keeps a key from existing on both sides, or
// neither, when a transfer fails midway.
//
// Behavior:
//   - Idempotent: deleting an absent key is a no-op.
//
// Parameters:
//   - key: the key to remove
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len reports the number of locally held keys, the input to the
// should-scale-up predicate.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// KeysToMigrate returns every locally held key whose current owner
// under the Store's Placement is not this node.
//
// Behavior:
//   - A stable snapshot: later writes to the store do not retroactively
//     change the returned slice.
//   - Empty when the placement still assigns every held key here.
//
// Returns:
//   - The keys that must move, in map-iteration order.
func (s *Store[V]) KeysToMigrate() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0)
	for key := range s.data {
		if owner, ok := s.place.Owner(key); ok && owner != s.self {
			out = append(out, key)
		}
	}
	return out
}

// DrainMigrationBatch materializes KeysToMigrate as owned (key, value)
// pairs, ready to hand to the migration codec.
//
// Behavior:
//   - Deletes nothing: the sender deletes a pair only after the chunk
//     carrying it is acknowledged, so an aborted migration leaves the
//     store intact.
//
// Returns:
//   - One pair per migrating key, values copied out of the store.
func (s *Store[V]) DrainMigrationBatch() []Pair[V] {
	keys := s.KeysToMigrate()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Pair[V], 0, len(keys))
	for _, k := range keys {
		out = append(out, Pair[V]{Key: k, Value: s.data[k]})
	}
	return out
}
