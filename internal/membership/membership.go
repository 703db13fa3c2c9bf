package membership

import (
	"slices"
	"sync"

	"github.com/coregrid/shardfabric/internal/placement"
)

// Membership is the insertion-ordered, duplicate-free sequence of node
// identities a node currently knows about, plus the prev/next pointers
// that record who created whom during scale-up. Safe for concurrent use.
type Membership struct {
	mu    sync.RWMutex
	order []placement.NodeID
	set   map[placement.NodeID]struct{}
	prev  *placement.NodeID
	next  *placement.NodeID
}

// New creates a Membership containing only self; a node's own id is in
// its membership from construction onward.
func New(self placement.NodeID) *Membership {
	m := &Membership{set: make(map[placement.NodeID]struct{})}
	m.add(self)
	return m
}

// Add appends id to the membership if it is not already present.
//
// Behavior:
//   - Idempotent: a duplicate Add changes nothing.
//   - New ids are appended, preserving insertion order.
//
// Used both by local scale-up and by the NodeCreated gossip handler; the
// caller decides whether to rebroadcast based on the return value,
// rebroadcasting only what was actually news to it.
//
// Parameters:
//   - id: the identity to record
//
// Returns:
//   - true iff the id was new to this membership.
func (m *Membership) Add(id placement.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(id)
}

func (m *Membership) add(id placement.NodeID) bool {
	if _, ok := m.set[id]; ok {
		return false
	}
	m.set[id] = struct{}{}
	m.order = append(m.order, id)
	return true
}

// Remove evicts id from the membership.
//
// Behavior:
//   - Idempotent: removing an unknown id is a no-op.
//   - Preserves the insertion order of the remaining members.
//
// Parameters:
//   - id: the identity to evict
//
// Returns:
//   - true iff the id was present.
func (m *Membership) Remove(id placement.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.set[id]; !ok {
		return false
	}
	delete(m.set, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return true
}

// Contains reports whether id is currently known.
func (m *Membership) Contains(id placement.NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[id]
	return ok
}

// Members returns the current membership in insertion order.
//
// Returns:
//   - A freshly allocated copy; later Add/Remove calls do not affect it.
func (m *Membership) Members() []placement.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]placement.NodeID, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of known members.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Prev returns the node that created this one, if any.
func (m *Membership) Prev() (placement.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prev == nil {
		return "", false
	}
	return *m.prev, true
}

// Next returns the child this node has provisioned, if any.
func (m *Membership) Next() (placement.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.next == nil {
		return "", false
	}
	return *m.next, true
}

// SetPrev records the node that created this one.
func (m *Membership) SetPrev(id placement.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev = &id
}

// SetNext records the child this node has provisioned, or clears it when
// id is empty (used when the child is deleted from the fabric).
func (m *Membership) SetNext(id placement.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		m.next = nil
		return
	}
	m.next = &id
}

// Reset replaces the entire membership and the parentage pointers in one
// step. Used by a freshly created node, which receives the full peer
// list from its creator rather than growing the set incrementally.
//
// Behavior:
//   - members is deduplicated, preserving the given order.
//   - prev is recorded as handed in; next is cleared, since a node that
//     is being (re)initialized cannot have provisioned a child yet.
//
// Parameters:
//   - members: the complete replacement membership, in order
//   - prev: the creator of this node, or nil for a root node
func (m *Membership) Reset(members []placement.NodeID, prev *placement.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.set = make(map[placement.NodeID]struct{}, len(members))
	for _, id := range members {
		m.add(id)
	}
	m.prev = prev
	m.next = nil
}
