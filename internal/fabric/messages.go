package fabric

import "github.com/coregrid/shardfabric/internal/placement"

// GetArgs is the argument record for get_data.
type GetArgs struct {
	Key string
}

// UpdateArgs is the argument record for update_data.
type UpdateArgs[V any] struct {
	Key   string
	Value V
}

// InitNodeArgs is the argument record for init_canister_manager: the
// full membership a freshly created child should start from.
type InitNodeArgs struct {
	AllNodes []placement.NodeID
}

// WasmInitArgs is the argument record for init_wasm. Position
// 0 starts a fresh buffer, 1 appends, 2 appends and seals it.
type WasmInitArgs struct {
	Position int
	Chunk    []byte
}

// DataReply is the response record get_data/update_data return, and what
// a forwarded get/put carries back to the originating node. Err is
// non-empty exactly when the operation could not be completed; a
// forwarding failure is reported in the record itself rather than as a
// transport error, since it has no meaningful caller to propagate to
// beyond the response.
type DataReply[V any] struct {
	Value V
	Found bool
	Err   string
	From  placement.NodeID
}

// NodeInfoRecord is the response record node_info returns.
type NodeInfoRecord struct {
	AllNodes           []string
	CurrentMemoryUsage uint64
	Status             Status
}
