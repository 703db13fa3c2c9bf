// Package membership tracks the ordered, duplicate-free view of node
// identities a node has learned about, plus the prev/next pointers that
// record provisioning parentage during scale-up.
//
// # Overview
//
// Each node keeps its own Membership; there is no shared registry. The
// gossip protocol in the fabric package is what drives the per-node
// views toward eventual agreement — this package only guarantees that
// the local bookkeeping is correct: insertion order is preserved, no
// identity appears twice, and a node's own id is present from
// construction onward.
//
// # Parentage chain
//
// Scale-up links nodes into a chain of provisioning parentage: prev
// points at the node that created this one, next at the child this node
// has provisioned (at most one; next is recorded once a scale-up
// completes, and a node with next set does not scale up again).
//
//	        prev              prev              prev
//	┌────┐ ◄───── ┌────┐ ◄───── ┌────┐ ◄───── ┌────┐
//	│ N1 │        │ N2 │        │ N3 │        │ N4 │
//	└────┘ ─────► └────┘ ─────► └────┘ ─────► └────┘
//	        next              next              next
//
// A root node has no prev; the most recently created node has no next
// until it provisions a child of its own.
//
// # Thread safety
//
// All methods are safe for concurrent use; reads take a shared lock.
package membership
