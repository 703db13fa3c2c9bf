package fabric

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/coregrid/shardfabric/internal/fabrichost"
	"github.com/coregrid/shardfabric/internal/fabriclog"
	"github.com/coregrid/shardfabric/internal/fabricmetrics"
	"github.com/coregrid/shardfabric/internal/fabricstore"
	"github.com/coregrid/shardfabric/internal/membership"
	"github.com/coregrid/shardfabric/internal/migration"
	"github.com/coregrid/shardfabric/internal/placement"
)

// Config is the construction-time configuration a Manager accepts.
type Config struct {
	SelfID placement.NodeID

	// ShouldScaleUp is the pluggable load predicate. It
	// receives the current Store size and decides whether Heartbeat
	// should initiate a scale-up sequence. Required; a nil value is
	// treated as "never scale up" and logged as a misconfiguration
	// rather than panicking, since a manager with no scale-up policy is
	// still a valid (if static) deployment.
	ShouldScaleUp func(storeSize int) bool

	// AnchorCapacity sizes the underlying placement.Placement. Zero
	// defaults to placement.DefaultCapacity. Must be identical across
	// every node sharing this fabric, or nodes disagree on ownership.
	AnchorCapacity int

	// HasherSeed must be identical across every node sharing this
	// fabric, or nodes disagree on ownership.
	HasherSeed placement.Seed

	// MigrationChunkSize bounds how many pairs travel in one migration
	// message. Zero defaults to, and any larger value is clamped to,
	// migration.MaxChunkPairs.
	MigrationChunkSize int

	// ChildCyclesBudget is passed to CreateNode when provisioning a
	// child during scale-up.
	ChildCyclesBudget uint64
}

// Manager is the per-node CanisterManager: lifecycle state machine,
// event bus, and single-hop request router, wrapping a
// placement.Placement, a membership.Membership, and a fabricstore.Store.
// A single Manager instance corresponds to one running node.
type Manager[V any] struct {
	mu     sync.Mutex
	status Status

	cfg   Config
	place *placement.Placement
	mem   *membership.Membership
	store *fabricstore.Store[V]
	host  fabrichost.Host

	log     *fabriclog.Logger
	metrics *fabricmetrics.Metrics

	wasmBuf     []byte
	wasmStarted bool
}

// New constructs a freshly initialized Manager: Membership = {self},
// Placement built from {self}, status = Initialized.
//
// Behavior:
//   - Zero AnchorCapacity and MigrationChunkSize fall back to their
//     defaults; an out-of-range chunk size is clamped.
//   - A nil ShouldScaleUp disables scale-up (with a logged warning)
//     rather than panicking — a static deployment is still valid.
//   - A nil logger is replaced with a no-op logger; metrics may be nil.
//
// Parameters:
//   - cfg: the construction-time configuration; SelfID is required
//   - host: the platform surface used for all outbound calls
//   - log: structured logger, or nil
//   - metrics: instrumentation sink, or nil
//
// Returns:
//   - A Manager in status Initialized, awaiting its code image.
func New[V any](cfg Config, host fabrichost.Host, log *fabriclog.Logger, metrics *fabricmetrics.Metrics) *Manager[V] {
	if cfg.AnchorCapacity <= 0 {
		cfg.AnchorCapacity = placement.DefaultCapacity
	}
	if cfg.MigrationChunkSize <= 0 || cfg.MigrationChunkSize > migration.MaxChunkPairs {
		cfg.MigrationChunkSize = migration.MaxChunkPairs
	}
	if cfg.ShouldScaleUp == nil {
		if log != nil {
			log.Warn("manager constructed without a ShouldScaleUp predicate; scale-up is disabled")
		}
		cfg.ShouldScaleUp = func(int) bool { return false }
	}
	if log == nil {
		log = fabriclog.NewNop()
	}

	place := placement.New(cfg.HasherSeed, cfg.AnchorCapacity)
	place.Add(cfg.SelfID)
	mem := membership.New(cfg.SelfID)
	store := fabricstore.New[V](cfg.SelfID, place)

	return &Manager[V]{
		status:  initializedStatus(),
		cfg:     cfg,
		place:   place,
		mem:     mem,
		store:   store,
		host:    host,
		log:     log,
		metrics: metrics,
	}
}

// SelfID reports this node's own identity.
func (m *Manager[V]) SelfID() placement.NodeID { return m.cfg.SelfID }

// Placement exposes the manager's placement.Placement, for wiring a host
// implementation or inspecting routing in tests.
func (m *Manager[V]) Placement() *placement.Placement { return m.place }

// Membership exposes the manager's membership.Membership.
func (m *Manager[V]) Membership() *membership.Membership { return m.mem }

// Status returns the manager's current lifecycle status.
func (m *Manager[V]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager[V]) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetStoreSize(m.store.Len())
	}
}

func (m *Manager[V]) fail(kind ErrorKind, err error) error {
	m.setStatus(errorStatus(kind, err.Error()))
	if m.metrics != nil {
		m.metrics.ObserveStatusError(kind.String())
	}
	m.log.Error("manager entered error status",
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	return err
}

// Reset returns status to Ready from any Error state without touching
// Membership, Store, or Placement, re-arming the heartbeat after an
// operator has dealt with whatever failed.
//
// Behavior:
//   - A no-op when status is not currently Error.
func (m *Manager[V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Kind == StatusError {
		m.status = readyStatus()
	}
}

// InitWasm implements the init_wasm chunking state machine, assembling
// the code image this node installs on future children.
//
// Behavior:
//   - Position 0 starts a fresh buffer, 1 appends, 2 appends and
//     transitions status to Ready.
//   - Out-of-order positions, or an append before a start, return false
//     and leave the buffer untouched.
//   - Rejected entirely once the node has left Initialized.
//
// Parameters:
//   - position: 0, 1, or 2 as above
//   - chunk: the next slice of the image; may be empty
//
// Returns:
//   - true iff the chunk was accepted.
func (m *Manager[V]) InitWasm(position int, chunk []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Kind != StatusInitialized {
		return false
	}

	switch position {
	case 0:
		m.wasmBuf = append([]byte(nil), chunk...)
		m.wasmStarted = true
		return true
	case 1:
		if !m.wasmStarted {
			return false
		}
		m.wasmBuf = append(m.wasmBuf, chunk...)
		return true
	case 2:
		if !m.wasmStarted {
			return false
		}
		m.wasmBuf = append(m.wasmBuf, chunk...)
		m.status = readyStatus()
		return true
	default:
		return false
	}
}

// InitNode implements init_canister_manager on a freshly created child.
//
// Behavior:
//   - Replaces Membership with allNodes ∪ {self} in the order given.
//   - Records prev as the last entry of allNodes, which the creator
//     orders to be itself.
//   - Seeds Placement with every member, so this node's own routing
//     agrees with the rest of the fabric before it accepts any get/put.
//   - Broadcasts NodeCreated(self) to every peer it just learned of.
//
// Parameters:
//   - ctx: propagated to the broadcast calls
//   - allNodes: the existing membership, creator last; nil for a root
//
// Returns:
//   - The first broadcast failure, if any; membership and placement are
//     already updated by then.
func (m *Manager[V]) InitNode(ctx context.Context, allNodes []placement.NodeID) error {
	var prev *placement.NodeID
	if len(allNodes) > 0 {
		last := allNodes[len(allNodes)-1]
		prev = &last
	}

	m.mem.Reset(append(append([]placement.NodeID{}, allNodes...), m.cfg.SelfID), prev)
	for _, id := range allNodes {
		m.place.Add(id)
	}

	return m.broadcast(ctx, NodeCreated(m.cfg.SelfID))
}

// Heartbeat is the periodic tick that drives autonomous growth.
//
// Behavior:
//   - A no-op unless status is Ready, no child has been provisioned yet
//     (next unset), and the configured load predicate fires for the
//     current store size.
//   - On a positive decision, runs the full scale-up sequence before
//     returning.
//
// Parameters:
//   - ctx: propagated to every host call the scale-up makes
//
// Returns:
//   - nil when nothing was attempted or the scale-up completed; the
//     recorded failure otherwise (status then carries the Error).
func (m *Manager[V]) Heartbeat(ctx context.Context) error {
	m.mu.Lock()
	ready := m.status.Kind == StatusReady
	m.mu.Unlock()
	if !ready {
		return nil
	}
	if _, hasNext := m.mem.Next(); hasNext {
		return nil
	}
	if !m.cfg.ShouldScaleUp(m.store.Len()) {
		return nil
	}
	return m.scaleUp(ctx)
}

// scaleUp provisions a child node, hands it the code image and the
// current membership, and migrates its share of the shard. Any failed step
// rolls the child back out of Placement/Membership and records the
// corresponding Error status; remaining steps are not attempted.
func (m *Manager[V]) scaleUp(ctx context.Context) error {
	m.setStatus(scaleUpStatus())
	if m.metrics != nil {
		m.metrics.IncScaleUp()
	}

	childID, err := m.host.CreateNode(ctx, fabrichost.CreateNodeParams{
		CyclesBudget: m.cfg.ChildCyclesBudget,
	})
	if err != nil {
		return m.fail(ErrorScaleUp, fmt.Errorf("create_node: %w", err))
	}

	m.place.Add(childID)
	m.mem.Add(childID)

	m.mu.Lock()
	wasmCode := append([]byte(nil), m.wasmBuf...)
	m.mu.Unlock()

	if err := m.host.InstallCode(ctx, childID, fabrichost.Install, wasmCode, nil); err != nil {
		m.rollbackChild(childID)
		return m.fail(ErrorInitialize, fmt.Errorf("install_code(%s): %w", childID, err))
	}

	if err := m.forwardWasm(ctx, childID, wasmCode); err != nil {
		m.rollbackChild(childID)
		return m.fail(ErrorInitialize, err)
	}

	// The child appends itself to the list, so it is sent the membership
	// without the child in it, ordered with this node last: the child
	// records last(all_nodes) as its prev, and prev must be its creator.
	members := m.mem.Members()
	allNodes := make([]placement.NodeID, 0, len(members))
	for _, id := range members {
		if id != childID && id != m.cfg.SelfID {
			allNodes = append(allNodes, id)
		}
	}
	allNodes = append(allNodes, m.cfg.SelfID)
	if err := m.host.Call(ctx, childID, fabrichost.MethodInitCanisterManager, InitNodeArgs{AllNodes: allNodes}, nil); err != nil {
		m.rollbackChild(childID)
		return m.fail(ErrorInitialize, fmt.Errorf("init_canister_manager(%s): %w", childID, err))
	}

	m.setStatus(migratingStatus())
	if err := m.migrateToTarget(ctx, childID); err != nil {
		m.rollbackChild(childID)
		return m.fail(ErrorMigration, err)
	}

	m.mem.SetNext(childID)
	m.setStatus(readyStatus())
	return m.broadcast(ctx, NodeCreated(childID))
}

func (m *Manager[V]) rollbackChild(childID placement.NodeID) {
	m.place.Remove(childID)
	m.mem.Remove(childID)
}

// wasmForwardChunkBytes bounds how much of the code image travels in a
// single init_wasm call when a parent replays its buffer to a child.
const wasmForwardChunkBytes = 1 << 20

// forwardWasm replays this node's buffered code image to a freshly
// installed child over init_wasm, so the child ends up holding the same
// image for its own future scale-ups and reaches Ready through the same
// chunking state machine every node does. The protocol mirrors the
// external uploader: position 0 carries the first chunk, 1 each middle
// chunk, and an empty position 2 seals the buffer.
func (m *Manager[V]) forwardWasm(ctx context.Context, child placement.NodeID, code []byte) error {
	send := func(position int, chunk []byte) error {
		var accepted bool
		args := WasmInitArgs{Position: position, Chunk: chunk}
		if err := m.host.Call(ctx, child, fabrichost.MethodInitWasm, args, &accepted); err != nil {
			return fmt.Errorf("init_wasm(%s, position=%d): %w", child, position, err)
		}
		if !accepted {
			return fmt.Errorf("init_wasm(%s, position=%d): chunk rejected", child, position)
		}
		return nil
	}

	first := code
	if len(first) > wasmForwardChunkBytes {
		first = code[:wasmForwardChunkBytes]
	}
	if err := send(0, first); err != nil {
		return err
	}
	for off := len(first); off < len(code); off += wasmForwardChunkBytes {
		end := off + wasmForwardChunkBytes
		if end > len(code) {
			end = len(code)
		}
		if err := send(1, code[off:end]); err != nil {
			return err
		}
	}
	return send(2, nil)
}

// migrateToTarget drains every locally held key now owned by target and
// ships it over, deleting each key only once its chunk is acknowledged.
func (m *Manager[V]) migrateToTarget(ctx context.Context, target placement.NodeID) error {
	batch := m.store.DrainMigrationBatch()
	filtered := make([]fabricstore.Pair[V], 0, len(batch))
	for _, p := range batch {
		if owner, ok := m.place.Owner(p.Key); ok && owner == target {
			filtered = append(filtered, p)
		}
	}
	return m.migrateDrained(ctx, filtered, target)
}

// drainAndMigrateAll drains every locally held key whose owner under the
// current Placement is no longer self, grouping by new owner, and ships
// each group over. Used by the NodeCreated and NodeDeleted event
// handlers, where more than one destination is possible in principle
// even though the common case (a single freshly added or removed node)
// has exactly one.
func (m *Manager[V]) drainAndMigrateAll(ctx context.Context) error {
	batch := m.store.DrainMigrationBatch()
	byOwner := make(map[placement.NodeID][]fabricstore.Pair[V])
	for _, p := range batch {
		owner, ok := m.place.Owner(p.Key)
		if !ok || owner == m.cfg.SelfID {
			continue
		}
		byOwner[owner] = append(byOwner[owner], p)
	}
	for owner, pairs := range byOwner {
		if err := m.migrateDrained(ctx, pairs, owner); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager[V]) migrateDrained(ctx context.Context, pairs []fabricstore.Pair[V], target placement.NodeID) error {
	if len(pairs) == 0 {
		return nil
	}

	wire := migration.FromStorePairs(pairs)
	chunks := migration.SplitIntoChunks(wire, m.cfg.MigrationChunkSize)
	for _, chunk := range chunks {
		encoded, err := migration.EncodeChunk(chunk)
		if err != nil {
			if m.metrics != nil {
				m.metrics.ObserveMigrationChunk("encode_failure")
			}
			return fmt.Errorf("encode migration chunk for %s: %w", target, err)
		}

		if err := m.host.Call(ctx, target, fabrichost.MethodHandleEvent, Migrate(encoded), nil); err != nil {
			if m.metrics != nil {
				m.metrics.ObserveMigrationChunk("transport_failure")
			}
			return fmt.Errorf("migrate chunk to %s: %w", target, err)
		}
		if m.metrics != nil {
			m.metrics.ObserveMigrationChunk("success")
		}

		for _, p := range chunk.Pairs {
			m.store.Delete(p.Key)
		}
	}
	return nil
}

// broadcast sends ev to every member of Membership except self. On the
// first per-recipient failure it records Error(Broadcast, recipient) and
// stops; remaining recipients are not attempted.
func (m *Manager[V]) broadcast(ctx context.Context, ev Event) error {
	for _, node := range m.mem.Members() {
		if node == m.cfg.SelfID {
			continue
		}
		if err := m.host.Call(ctx, node, fabrichost.MethodHandleEvent, ev, nil); err != nil {
			if m.metrics != nil {
				m.metrics.ObserveBroadcastFailure(ev.Kind.String())
			}
			return m.fail(ErrorBroadcast, fmt.Errorf("broadcast to %s: %w", node, err))
		}
	}
	return nil
}

// HandleEvent is the uniform entry point peers invoke for both
// membership gossip and data migration.
//
// Behavior:
//   - NodeCreated(x), x ≠ self: placement and membership absorb x, any
//     keys x now owns are drained to it, and the event is rebroadcast
//     only when x was previously unknown here.
//   - NodeCreated(self): ignored — the loop-termination rule.
//   - NodeDeleted(x): the mirror image; x is dropped and orphaned keys
//     are drained to their new owners.
//   - Migrate(chunk): the chunk is decoded and every pair inserted
//     unconditionally.
//
// Parameters:
//   - ctx: propagated to any drain or rebroadcast calls
//   - ev: the event envelope
//
// Returns:
//   - nil on success; the recorded failure otherwise.
func (m *Manager[V]) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventNodeCreated:
		return m.handleNodeCreated(ctx, ev.NodeID)
	case EventNodeDeleted:
		return m.handleNodeDeleted(ctx, ev.NodeID)
	case EventMigrate:
		return m.handleMigrate(ev.Chunk)
	default:
		return fmt.Errorf("fabric: unknown event kind %d", ev.Kind)
	}
}

func (m *Manager[V]) handleNodeCreated(ctx context.Context, x placement.NodeID) error {
	if x == m.cfg.SelfID {
		return nil // self-ignore is the sole loop-termination rule
	}

	m.place.Add(x)
	isNew := m.mem.Add(x)

	if err := m.drainAndMigrateAll(ctx); err != nil {
		return m.fail(ErrorMigration, err)
	}

	if !isNew {
		// Already known: re-add was idempotent, do not rebroadcast —
		// that is what keeps a join from amplifying into O(N^2) traffic.
		return nil
	}
	return m.broadcast(ctx, NodeCreated(x))
}

func (m *Manager[V]) handleNodeDeleted(ctx context.Context, x placement.NodeID) error {
	if x == m.cfg.SelfID {
		return nil
	}

	m.place.Remove(x)
	wasKnown := m.mem.Remove(x)
	if next, ok := m.mem.Next(); ok && next == x {
		m.mem.SetNext("")
	}

	if err := m.drainAndMigrateAll(ctx); err != nil {
		return m.fail(ErrorMigration, err)
	}

	if !wasKnown {
		// Already removed here: do not rebroadcast, or the deletion would
		// bounce between the surviving members forever.
		return nil
	}
	return m.broadcast(ctx, NodeDeleted(x))
}

func (m *Manager[V]) handleMigrate(chunk []byte) error {
	decoded, err := migration.DecodeChunk[V](chunk)
	if err != nil {
		return fmt.Errorf("fabric: decode migrate chunk: %w", err)
	}
	for _, p := range decoded.Pairs {
		m.store.Insert(p.Key, p.Value)
	}
	return nil
}

// Get implements get_data.
//
// Behavior:
//   - Owner is self: served from the local store; Found reports whether
//     the key exists.
//   - Owner is remote: forwarded to the owner, whose reply is returned
//     unchanged. The owner serves the forwarded request through its own
//     Get, which consults its own placement; the request carries no hop
//     marker, so when the two placements disagree the request is
//     forwarded again rather than reported as an error.
//   - A forwarding failure is reported in the reply's Err field, not as
//     a state-machine error.
//
// Parameters:
//   - ctx: propagated to the forwarded call
//   - key: the key to read
//
// Returns:
//   - The reply record, with From naming the node that answered.
func (m *Manager[V]) Get(ctx context.Context, key string) DataReply[V] {
	result := fabricstore.GetMut(m.store, key, func(v *V) V { return *v })
	if result.Local {
		return DataReply[V]{Value: result.Value, Found: result.Found, From: m.cfg.SelfID}
	}

	var reply DataReply[V]
	if err := m.host.Call(ctx, result.Owner, fabrichost.MethodGetData, GetArgs{Key: key}, &reply); err != nil {
		return DataReply[V]{Err: err.Error(), From: result.Owner}
	}
	return reply
}

// Put implements update_data, routing exactly like Get: local writes
// land in the store, remote writes are forwarded single-hop, and a
// forwarding failure is reported in the reply's Err field.
//
// Parameters:
//   - ctx: propagated to the forwarded call
//   - key: the key to write
//   - value: the value to associate with key
//
// Returns:
//   - The reply record, with From naming the node that performed the
//     write.
func (m *Manager[V]) Put(ctx context.Context, key string, value V) DataReply[V] {
	result := fabricstore.Upsert(m.store, key, func(v *V) V {
		*v = value
		return *v
	})
	if result.Local {
		return DataReply[V]{Value: result.Value, Found: true, From: m.cfg.SelfID}
	}

	var reply DataReply[V]
	if err := m.host.Call(ctx, result.Owner, fabrichost.MethodUpdateData, UpdateArgs[V]{Key: key, Value: value}, &reply); err != nil {
		return DataReply[V]{Err: err.Error(), From: result.Owner}
	}
	return reply
}

// NodeInfo implements the node_info query.
//
// Returns:
//   - The full known membership, the current store size, and the
//     current lifecycle status including any recorded error.
func (m *Manager[V]) NodeInfo() NodeInfoRecord {
	members := m.mem.Members()
	all := make([]string, len(members))
	for i, id := range members {
		all[i] = string(id)
	}
	return NodeInfoRecord{
		AllNodes:           all,
		CurrentMemoryUsage: uint64(m.store.Len()),
		Status:             m.Status(),
	}
}
