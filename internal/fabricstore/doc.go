// Package fabricstore holds the shard of key-value data a single node
// currently owns, and the helpers that identify which locally held keys
// must migrate away after a membership change.
//
// # Overview
//
// Store is the only place data lives in the fabric: each key exists in
// exactly one node's Store, the node its key hashes to under the shared
// placement. Store never routes a request on its own initiative — every
// entry point consults the current placement.Placement and reports back
// whether the operation landed locally or belongs to a remote owner, via
// Result, rather than hiding routing inside the store.
//
// # Architecture
//
//	            Upsert / GetMut
//	request ───────────────────────┐
//	                               ▼
//	                     ┌──────────────────┐
//	                     │ placement.Owner  │
//	                     └──────────────────┘
//	                       │              │
//	              owner == self    owner != self
//	                       ▼              ▼
//	              ┌────────────┐   ┌───────────────┐
//	              │ local map  │   │ Result{Owner} │
//	              │ read/write │   │ (caller       │
//	              └────────────┘   │  forwards)    │
//	                               └───────────────┘
//
// Insert and Delete bypass the routing check entirely: they exist for
// the migration path, where the sending node has already decided where
// a pair belongs and the receiving node must accept it unconditionally.
//
// # Migration helpers
//
// After a membership change, KeysToMigrate lists every locally held key
// whose owner is no longer this node, and DrainMigrationBatch
// materializes those keys as owned pairs for the wire codec. Neither
// deletes anything: the sender deletes a pair only after the chunk
// carrying it has been acknowledged, so a failed transfer leaves the
// data where it was.
//
// # Thread safety
//
// All operations are safe for concurrent use; reads take a shared lock.
package fabricstore
