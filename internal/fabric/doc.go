// Package fabric implements the per-node CanisterManager: the lifecycle
// state machine, the event bus used for both membership gossip and data
// migration, and single-hop request routing for get/put.
//
// # Overview
//
// Every node in the fabric runs one Manager. A Manager owns one
// placement.Placement, one membership.Membership, and one
// fabricstore.Store, and drives them through a fabrichost.Host — the
// abstract async create-node/install-code/call surface a real host
// platform provides.
//
// # Architecture
//
//	┌─────────────────────────────────────────────┐
//	│                  Manager                    │
//	│                                             │
//	│  ┌───────────┐ ┌────────────┐ ┌──────────┐  │
//	│  │ Placement │ │ Membership │ │  Store   │  │
//	│  │ key→owner │ │ peers,     │ │ owned    │  │
//	│  │           │ │ prev/next  │ │ shard    │  │
//	│  └───────────┘ └────────────┘ └──────────┘  │
//	│        ▲              ▲             ▲       │
//	│        └──────────────┼─────────────┘       │
//	│                       │                     │
//	│   InitWasm  Heartbeat  HandleEvent  Get/Put │
//	└───────────┬─────────────────────────────────┘
//	            │ fabrichost.Host
//	            ▼
//	┌─────────────────────────────────────────────┐
//	│               host platform                 │
//	│   CreateNode · InstallCode · Call(peer)     │
//	└─────────────────────────────────────────────┘
//
// # Lifecycle
//
// A node moves through a fixed set of states; Error is reachable from
// any non-terminal state and Reset returns it to Ready:
//
//	            init_wasm(last chunk)
//	Initialized ────────────────────► Ready
//	                                    │ heartbeat ∧ should_scale_up
//	                                    ▼
//	                                 ScaleUp ──► Migrating ──► Ready
//	                                    │             │
//	                                    ▼             ▼
//	                                 Error(kind, msg) ◄── any failed step
//
// The scale-up owner provisions a child through the host, installs and
// replays the code image, hands over the membership, migrates the
// child's share of the shard chunk by chunk, and only then broadcasts
// the child's existence to the rest of the fabric.
//
// # Event bus
//
// HandleEvent is the uniform entry point peers call: NodeCreated and
// NodeDeleted adjust placement and membership and re-gossip (only when
// the event was actually news, which bounds fan-out), and Migrate
// carries a chunk of key-value pairs into the local store.
//
// # Concurrency model
//
// Manager assumes the host's cooperative scheduling model: one logical
// handler frame active at a time, suspending only at Host calls. Go's
// real goroutine scheduler is used to host that model, not to add extra
// parallelism inside a single node's state transitions. An internal
// mutex guards the lifecycle status and the code-image buffer; the
// placement, membership and store each carry their own lock. No lock is
// ever held across a Host call, and calls into one Manager from several
// goroutines are not serialized as a whole.
package fabric
