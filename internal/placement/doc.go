// Package placement implements the deterministic key-to-node routing
// function shared by every node in the fabric: a bounded anchor array of
// slots, each owned by the active node holding the strongest keyed-hash
// claim on it.
//
// # Overview
//
// Every node in the fabric runs an identical Placement built from the
// same (seed, capacity) pair. As long as two nodes agree on the active
// node set, they agree on the owner of every key: placement is a pure
// function of (seed, capacity, active set, key), with no dependence on
// the order in which membership changes arrived at a given node.
//
// # Architecture
//
// Keys route through two fixed hops:
//
//	          hash(key) mod capacity
//	key ──────────────────────────────► anchor slot
//	                                        │
//	                                        │ strongest claim on slot
//	                                        ▼
//	slot:   0     1     2     3    ...    99
//	node:  N2    N2    N1    N2    ...    N1
//	                                        │
//	                                        ▼
//	                                     NodeID
//
// Each slot is owned by the active node whose slotHash(seed, node, slot)
// is highest; a key is owned by the owner of the slot it hashes to. The
// slot table is maintained incrementally: Add(x) claims exactly the
// slots x wins, Remove(x) reassigns exactly the slots x held.
//
// # Disruption under membership change
//
// Because an Add can only transfer a slot to the new node, a key either
// keeps its previous owner or moves to the newcomer — never between two
// pre-existing nodes — bounding churn to roughly the newcomer's 1/n
// share of the key space. A Remove reassigns only the departed node's
// slots, each to the runner-up claimant, so keys owned by surviving
// nodes do not move at all. See TestMinimalDisruptionAcrossGrowingSet
// and TestRemovalDisturbsOnlyTheRemovedNodesKeys.
//
// # Determinism and ordering
//
// The slot table never depends on insertion history: any sequence of
// Add/Remove calls arriving in any order converges to the same table
// once the surviving set matches, which is what lets gossip-delivered
// membership updates arrive in different orders at different nodes
// without breaking routing agreement (see TestOrderIndependence).
//
// # Capacity
//
// The anchor holds at most capacity nodes; Add refuses further growth.
// Ownership granularity is one slot, so the useful fleet size is well
// below the anchor size — the default of 100 slots targets fabrics of
// up to a few tens of nodes.
package placement
