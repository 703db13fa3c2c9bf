package fabrichost

import (
	"context"

	"github.com/coregrid/shardfabric/internal/placement"
)

// InstallMode mirrors the host's code-installation mode argument. Only
// Install is used by this module; Reinstall/Upgrade are named for
// completeness with the host contract but never issued by fabric.Manager.
type InstallMode int

const (
	Install InstallMode = iota
	Reinstall
	Upgrade
)

// CreateNodeParams describes the resources a new child node should be
// provisioned with.
type CreateNodeParams struct {
	Controllers       []string
	ComputeAllocation *uint64
	MemoryAllocation  *uint64
	FreezingThreshold *uint64
	CyclesBudget      uint64
}

// Method names a node exposes to its peers. fabric.Manager dispatches
// Call by method name using these constants rather than magic strings.
const (
	MethodInitCanisterManager = "init_canister_manager"
	MethodInitWasm            = "init_wasm"
	MethodHeartbeat           = "heartbeat"
	MethodHandleEvent         = "handle_event"
	MethodGetData             = "get_data"
	MethodUpdateData          = "update_data"
	MethodNodeInfo            = "node_info"
)

// Host is the contract a host platform must satisfy. Every method is
// async from the node's point of view — on a real platform it suspends
// the calling node's single-threaded execution at an await point.
type Host interface {
	// CreateNode provisions an empty child node under this node's
	// control and returns its identity.
	CreateNode(ctx context.Context, params CreateNodeParams) (placement.NodeID, error)

	// InstallCode installs a WASM (or equivalent) code image on node.
	InstallCode(ctx context.Context, node placement.NodeID, mode InstallMode, code []byte, arg []byte) error

	// Call issues a request/response call to method on node, passing args
	// and decoding the reply into the value reply points to. A
	// transport or remote-side error is returned as err; the caller
	// must not distinguish transport failure from a remote error record
	// beyond what err conveys.
	Call(ctx context.Context, node placement.NodeID, method string, args any, reply any) error

	// SelfID reports this node's own identity.
	SelfID() placement.NodeID
}
