package simhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coregrid/shardfabric/internal/fabric"
	"github.com/coregrid/shardfabric/internal/fabrichost"
	"github.com/coregrid/shardfabric/internal/placement"
)

// NewManagerFunc builds a fabric.Manager for a newly minted node, given
// its identity and a fabrichost.Host view already bound to that
// identity. Callers supply this so Host can construct children with the
// same Config template (ShouldScaleUp, AnchorCapacity, HasherSeed, ...)
// the parent used.
type NewManagerFunc[V any] func(self placement.NodeID, host fabrichost.Host) *fabric.Manager[V]

// Host is a single-process fabrichost.Host implementation shared by
// every fabric.Manager in a simulated fabric. Each Manager sees it
// through a small per-node view (Host.For) that binds SelfID, so
// CreateNode/InstallCode/Call all operate on the one shared registry.
type Host[V any] struct {
	mu         sync.RWMutex
	nodes      map[placement.NodeID]*fabric.Manager[V]
	code       map[placement.NodeID][]byte
	newManager NewManagerFunc[V]
}

// New creates an empty Host. newManager is invoked once per node,
// including every node CreateNode mints during simulated scale-up.
func New[V any](newManager NewManagerFunc[V]) *Host[V] {
	return &Host[V]{
		nodes:      make(map[placement.NodeID]*fabric.Manager[V]),
		code:       make(map[placement.NodeID][]byte),
		newManager: newManager,
	}
}

// For returns the fabrichost.Host view a Manager with identity self
// should be constructed with.
func (h *Host[V]) For(self placement.NodeID) fabrichost.Host {
	return &nodeHost[V]{host: h, self: self}
}

// Seed registers a pre-built Manager (typically the fabric's first,
// manually constructed node) under its own identity, so peers can
// address it by NodeID.
func (h *Host[V]) Seed(m *fabric.Manager[V]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[m.SelfID()] = m
}

// Manager looks up a registered node by identity, for test assertions.
func (h *Host[V]) Manager(id placement.NodeID) (*fabric.Manager[V], bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.nodes[id]
	return m, ok
}

// InstalledCode returns the WASM bytes last installed on node, for test
// assertions.
func (h *Host[V]) InstalledCode(id placement.NodeID) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.code[id]
}

func (h *Host[V]) createNode(_ context.Context, _ fabrichost.CreateNodeParams) (placement.NodeID, error) {
	id := placement.NodeID(uuid.NewString())

	h.mu.Lock()
	m := h.newManager(id, h.For(id))
	h.nodes[id] = m
	h.mu.Unlock()

	return id, nil
}

func (h *Host[V]) installCode(_ context.Context, node placement.NodeID, code []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[node]; !ok {
		return fmt.Errorf("simhost: install_code: unknown node %s", node)
	}
	h.code[node] = append([]byte(nil), code...)
	return nil
}

func (h *Host[V]) call(ctx context.Context, node placement.NodeID, method string, args any, reply any) error {
	h.mu.RLock()
	target, ok := h.nodes[node]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("simhost: call %s: unknown node %s", method, node)
	}

	switch method {
	case fabrichost.MethodInitCanisterManager:
		a, ok := args.(fabric.InitNodeArgs)
		if !ok {
			return fmt.Errorf("simhost: %s: bad args type %T", method, args)
		}
		return target.InitNode(ctx, a.AllNodes)

	case fabrichost.MethodInitWasm:
		a, ok := args.(fabric.WasmInitArgs)
		if !ok {
			return fmt.Errorf("simhost: %s: bad args type %T", method, args)
		}
		accepted := target.InitWasm(a.Position, a.Chunk)
		if ptr, ok := reply.(*bool); ok {
			*ptr = accepted
		}
		return nil

	case fabrichost.MethodHeartbeat:
		return target.Heartbeat(ctx)

	case fabrichost.MethodNodeInfo:
		ptr, ok := reply.(*fabric.NodeInfoRecord)
		if !ok {
			return fmt.Errorf("simhost: %s: reply type mismatch, got %T", method, reply)
		}
		*ptr = target.NodeInfo()
		return nil

	case fabrichost.MethodHandleEvent:
		ev, ok := args.(fabric.Event)
		if !ok {
			return fmt.Errorf("simhost: %s: bad args type %T", method, args)
		}
		return target.HandleEvent(ctx, ev)

	case fabrichost.MethodGetData:
		a, ok := args.(fabric.GetArgs)
		if !ok {
			return fmt.Errorf("simhost: %s: bad args type %T", method, args)
		}
		return assignReply(reply, target.Get(ctx, a.Key))

	case fabrichost.MethodUpdateData:
		a, ok := args.(fabric.UpdateArgs[V])
		if !ok {
			return fmt.Errorf("simhost: %s: bad args type %T", method, args)
		}
		return assignReply(reply, target.Put(ctx, a.Key, a.Value))

	default:
		return fmt.Errorf("simhost: unknown method %q", method)
	}
}

func assignReply[V any](reply any, result fabric.DataReply[V]) error {
	if reply == nil {
		return nil
	}
	ptr, ok := reply.(*fabric.DataReply[V])
	if !ok {
		return fmt.Errorf("simhost: reply type mismatch, got %T", reply)
	}
	*ptr = result
	return nil
}

// BroadcastHeartbeat fires Heartbeat concurrently on every registered
// node, the way a real deployment's independent per-node timers would,
// fanning the calls out with an errgroup and returning the first error
// encountered (if any) once all have completed.
func (h *Host[V]) BroadcastHeartbeat(ctx context.Context) error {
	h.mu.RLock()
	targets := make([]*fabric.Manager[V], 0, len(h.nodes))
	for _, m := range h.nodes {
		targets = append(targets, m)
	}
	h.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range targets {
		m := m
		g.Go(func() error {
			return m.Heartbeat(gctx)
		})
	}
	return g.Wait()
}

// nodeHost is the per-node fabrichost.Host view handed to each Manager.
type nodeHost[V any] struct {
	host *Host[V]
	self placement.NodeID
}

func (n *nodeHost[V]) SelfID() placement.NodeID { return n.self }

func (n *nodeHost[V]) CreateNode(ctx context.Context, params fabrichost.CreateNodeParams) (placement.NodeID, error) {
	return n.host.createNode(ctx, params)
}

func (n *nodeHost[V]) InstallCode(ctx context.Context, node placement.NodeID, _ fabrichost.InstallMode, code []byte, _ []byte) error {
	return n.host.installCode(ctx, node, code)
}

func (n *nodeHost[V]) Call(ctx context.Context, node placement.NodeID, method string, args any, reply any) error {
	return n.host.call(ctx, node, method, args, reply)
}
