package fabric

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregrid/shardfabric/internal/fabrichost"
	"github.com/coregrid/shardfabric/internal/fabriclog"
	"github.com/coregrid/shardfabric/internal/migration"
	"github.com/coregrid/shardfabric/internal/placement"
)

type pairT struct {
	key   string
	value string
}

func migrationTestChunk(t *testing.T, pairs []pairT) []byte {
	t.Helper()
	wire := make([]migration.Pair[string], len(pairs))
	for i, p := range pairs {
		wire[i] = migration.Pair[string]{Key: p.key, Value: p.value}
	}
	chunks := migration.SplitIntoChunks(wire, migration.MaxChunkPairs)
	require.Len(t, chunks, 1)
	encoded, err := migration.EncodeChunk(chunks[0])
	require.NoError(t, err)
	return encoded
}

type recordedCall struct {
	node   placement.NodeID
	method string
	args   any
}

// mockHost is a hand-written fabrichost.Host used to drive each failure
// branch of the scale-up sequence and the event bus deterministically,
// without needing a full simhost wiring.
type mockHost struct {
	self placement.NodeID

	createErr  error
	installErr error
	callFunc   func(method string, args any, reply any) error

	createdCount int
	calls        []recordedCall
}

func (h *mockHost) SelfID() placement.NodeID { return h.self }

func (h *mockHost) CreateNode(_ context.Context, _ fabrichost.CreateNodeParams) (placement.NodeID, error) {
	if h.createErr != nil {
		return "", h.createErr
	}
	h.createdCount++
	return placement.NodeID(fmt.Sprintf("child-%d", h.createdCount)), nil
}

func (h *mockHost) InstallCode(_ context.Context, _ placement.NodeID, _ fabrichost.InstallMode, _ []byte, _ []byte) error {
	return h.installErr
}

func (h *mockHost) Call(_ context.Context, node placement.NodeID, method string, args any, reply any) error {
	h.calls = append(h.calls, recordedCall{node: node, method: method, args: args})
	// Accept forwarded wasm chunks unless the test's callFunc overrides
	// the call with an error of its own.
	if method == fabrichost.MethodInitWasm {
		if ptr, ok := reply.(*bool); ok {
			*ptr = true
		}
	}
	if h.callFunc != nil {
		return h.callFunc(method, args, reply)
	}
	return nil
}

func testConfig(self placement.NodeID, threshold int) Config {
	return Config{
		SelfID:         self,
		ShouldScaleUp:  func(n int) bool { return n > threshold },
		AnchorCapacity: placement.DefaultCapacity,
		HasherSeed:     placement.Seed{0, 1},
	}
}

func TestInitWasmChunkingTransitionsToReady(t *testing.T) {
	m := New[string](testConfig("N1", 2), &mockHost{self: "N1"}, fabriclog.NewNop(), nil)

	assert.Equal(t, StatusInitialized, m.Status().Kind)
	assert.True(t, m.InitWasm(0, nil))
	assert.Equal(t, StatusInitialized, m.Status().Kind)
	assert.True(t, m.InitWasm(1, nil))
	assert.Equal(t, StatusInitialized, m.Status().Kind)
	assert.True(t, m.InitWasm(2, nil))
	assert.Equal(t, StatusReady, m.Status().Kind)
}

func TestInitWasmLonePositionOneFails(t *testing.T) {
	m := New[string](testConfig("N1", 2), &mockHost{self: "N1"}, fabriclog.NewNop(), nil)
	assert.False(t, m.InitWasm(1, nil))
	assert.Equal(t, StatusInitialized, m.Status().Kind)
}

func TestInitWasmRejectedOnceReady(t *testing.T) {
	m := New[string](testConfig("N1", 2), &mockHost{self: "N1"}, fabriclog.NewNop(), nil)
	require.True(t, m.InitWasm(0, nil))
	require.True(t, m.InitWasm(2, nil))
	assert.False(t, m.InitWasm(0, nil))
}

func readyManager(t *testing.T, self placement.NodeID, threshold int, host fabrichost.Host) *Manager[string] {
	t.Helper()
	m := New[string](testConfig(self, threshold), host, fabriclog.NewNop(), nil)
	require.True(t, m.InitWasm(0, nil))
	require.True(t, m.InitWasm(2, nil))
	require.Equal(t, StatusReady, m.Status().Kind)
	return m
}

func fillKeys(t *testing.T, m *Manager[string], prefix string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		reply := m.Put(ctx, fmt.Sprintf("%s_%d", prefix, i), "v")
		require.True(t, reply.From == m.SelfID() || reply.Err != "")
	}
}

func TestHeartbeatNoScaleUpWhenBelowThreshold(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 10, host)
	fillKeys(t, m, "k", 3)

	require.NoError(t, m.Heartbeat(context.Background()))
	assert.Equal(t, 0, host.createdCount)
	assert.Equal(t, StatusReady, m.Status().Kind)
}

func TestHeartbeatScaleUpSucceeds(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	require.NoError(t, m.Heartbeat(context.Background()))

	assert.Equal(t, StatusReady, m.Status().Kind)
	next, ok := m.Membership().Next()
	require.True(t, ok)
	assert.Equal(t, placement.NodeID("child-1"), next)
	assert.True(t, m.Placement().Contains("child-1"))

	var sawBroadcast bool
	for _, c := range host.calls {
		if c.method == fabrichost.MethodHandleEvent {
			if ev, ok := c.args.(Event); ok && ev.Kind == EventNodeCreated && ev.NodeID == "child-1" {
				sawBroadcast = true
			}
		}
	}
	assert.True(t, sawBroadcast, "expected NodeCreated(child-1) broadcast")
}

func TestHeartbeatScaleUpSkippedWhenNextAlreadySet(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)
	m.Membership().SetNext("existing-child")

	require.NoError(t, m.Heartbeat(context.Background()))
	assert.Equal(t, 0, host.createdCount)
}

func TestScaleUpRollsBackOnCreateNodeFailure(t *testing.T) {
	host := &mockHost{self: "N1", createErr: errors.New("no capacity")}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	err := m.Heartbeat(context.Background())
	require.Error(t, err)
	status := m.Status()
	assert.Equal(t, StatusError, status.Kind)
	assert.Equal(t, ErrorScaleUp, status.ErrKind)
}

func TestScaleUpRollsBackOnInstallCodeFailure(t *testing.T) {
	host := &mockHost{self: "N1", installErr: errors.New("install failed")}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	err := m.Heartbeat(context.Background())
	require.Error(t, err)
	status := m.Status()
	assert.Equal(t, StatusError, status.Kind)
	assert.Equal(t, ErrorInitialize, status.ErrKind)
	assert.False(t, m.Placement().Contains("child-1"))
	assert.False(t, m.Membership().Contains("child-1"))
}

func TestScaleUpRollsBackOnWasmForwardFailure(t *testing.T) {
	host := &mockHost{self: "N1", callFunc: func(method string, _ any, _ any) error {
		if method == fabrichost.MethodInitWasm {
			return errors.New("chunk lost")
		}
		return nil
	}}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	err := m.Heartbeat(context.Background())
	require.Error(t, err)
	status := m.Status()
	assert.Equal(t, StatusError, status.Kind)
	assert.Equal(t, ErrorInitialize, status.ErrKind)
	assert.False(t, m.Placement().Contains("child-1"))
	assert.False(t, m.Membership().Contains("child-1"))
}

func TestScaleUpForwardsWasmImageToChild(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := New[string](testConfig("N1", 2), host, fabriclog.NewNop(), nil)
	require.True(t, m.InitWasm(0, []byte("node-image-part-1")))
	require.True(t, m.InitWasm(2, []byte("part-2")))
	fillKeys(t, m, "data_key", 10)

	require.NoError(t, m.Heartbeat(context.Background()))

	var positions []int
	var forwarded []byte
	for _, c := range host.calls {
		if c.method != fabrichost.MethodInitWasm {
			continue
		}
		a, ok := c.args.(WasmInitArgs)
		require.True(t, ok)
		positions = append(positions, a.Position)
		forwarded = append(forwarded, a.Chunk...)
	}
	assert.Equal(t, []int{0, 2}, positions)
	assert.Equal(t, []byte("node-image-part-1part-2"), forwarded)
}

func TestScaleUpRollsBackOnInitCanisterManagerFailure(t *testing.T) {
	host := &mockHost{self: "N1", callFunc: func(method string, _ any, _ any) error {
		if method == fabrichost.MethodInitCanisterManager {
			return errors.New("child unreachable")
		}
		return nil
	}}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	err := m.Heartbeat(context.Background())
	require.Error(t, err)
	status := m.Status()
	assert.Equal(t, StatusError, status.Kind)
	assert.Equal(t, ErrorInitialize, status.ErrKind)
	assert.False(t, m.Placement().Contains("child-1"))
}

func TestScaleUpRollsBackOnMigrationFailure(t *testing.T) {
	host := &mockHost{self: "N1", callFunc: func(method string, args any, _ any) error {
		if method == fabrichost.MethodHandleEvent {
			if ev, ok := args.(Event); ok && ev.Kind == EventMigrate {
				return errors.New("transport error")
			}
		}
		return nil
	}}
	m := readyManager(t, "N1", 2, host)
	fillKeys(t, m, "data_key", 10)

	err := m.Heartbeat(context.Background())
	require.Error(t, err)
	status := m.Status()
	assert.Equal(t, StatusError, status.Kind)
	assert.Equal(t, ErrorMigration, status.ErrKind)
	assert.False(t, m.Placement().Contains("child-1"))
}

func TestHandleEventNodeCreatedSelfIsNoop(t *testing.T) {
	m := readyManager(t, "N1", 100, &mockHost{self: "N1"})
	require.NoError(t, m.HandleEvent(context.Background(), NodeCreated("N1")))
	assert.Equal(t, []placement.NodeID{"N1"}, m.Membership().Members())
}

func TestHandleEventNodeCreatedRebroadcastsOnlyWhenNew(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 100, host)
	m.Membership().Add("N3") // a third peer already known, to observe fan-out

	require.NoError(t, m.HandleEvent(context.Background(), NodeCreated("N2")))
	firstCount := len(host.calls)
	assert.Greater(t, firstCount, 0, "expected a rebroadcast to other known members")

	// Re-delivering the same NodeCreated must not rebroadcast again.
	require.NoError(t, m.HandleEvent(context.Background(), NodeCreated("N2")))
	assert.Equal(t, firstCount, len(host.calls))
}

func TestHandleEventNodeCreatedMigratesOwnedKeys(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 100, host)
	fillKeys(t, m, "data_key", 10)
	before := m.store.Len()
	require.Greater(t, before, 0)

	require.NoError(t, m.HandleEvent(context.Background(), NodeCreated("N2")))

	after := m.store.Len()
	assert.Less(t, after, before)
	for _, c := range host.calls {
		if ev, ok := c.args.(Event); ok && ev.Kind == EventMigrate {
			return
		}
	}
	t.Fatal("expected at least one Migrate call to N2")
}

func TestHandleEventNodeDeletedEvictsAndRebroadcasts(t *testing.T) {
	host := &mockHost{self: "N1"}
	m := readyManager(t, "N1", 100, host)
	m.Placement().Add("N2")
	m.Membership().Add("N2")
	m.Membership().Add("N3") // a surviving peer, to observe the rebroadcast
	m.Membership().SetNext("N2")

	require.NoError(t, m.HandleEvent(context.Background(), NodeDeleted("N2")))
	assert.False(t, m.Placement().Contains("N2"))
	assert.False(t, m.Membership().Contains("N2"))
	_, hasNext := m.Membership().Next()
	assert.False(t, hasNext)

	var rebroadcast bool
	for _, c := range host.calls {
		if ev, ok := c.args.(Event); ok && ev.Kind == EventNodeDeleted && ev.NodeID == "N2" {
			rebroadcast = true
		}
	}
	assert.True(t, rebroadcast)
}

func TestHandleEventMigrateInsertsPairs(t *testing.T) {
	m := readyManager(t, "N1", 100, &mockHost{self: "N1"})

	chunk := migrationTestChunk(t, []pairT{{"a", "1"}, {"b", "2"}})
	require.NoError(t, m.HandleEvent(context.Background(), Migrate(chunk)))

	result := m.Get(context.Background(), "a")
	assert.True(t, result.Found)
	assert.Equal(t, "1", result.Value)
}

func TestGetPutSingleNodeServesLocally(t *testing.T) {
	m := readyManager(t, "N1", 100, &mockHost{self: "N1"})

	put := m.Put(context.Background(), "k", "v")
	assert.Equal(t, placement.NodeID("N1"), put.From)
	assert.Empty(t, put.Err)

	get := m.Get(context.Background(), "k")
	assert.Equal(t, placement.NodeID("N1"), get.From)
	assert.True(t, get.Found)
	assert.Equal(t, "v", get.Value)
}

func TestGetForwardsToRemoteOwner(t *testing.T) {
	host := &mockHost{self: "N1", callFunc: func(method string, _ any, reply any) error {
		if method == fabrichost.MethodGetData {
			if r, ok := reply.(*DataReply[string]); ok {
				*r = DataReply[string]{Value: "remote-value", Found: true, From: "N2"}
			}
		}
		return nil
	}}
	m := readyManager(t, "N1", 100, host)
	m.Placement().Add("N2")

	var remoteKey string
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("data_key_%d", i)
		if owner, _ := m.Placement().Owner(k); owner == "N2" {
			remoteKey = k
			break
		}
	}
	require.NotEmpty(t, remoteKey)

	reply := m.Get(context.Background(), remoteKey)
	assert.Equal(t, placement.NodeID("N2"), reply.From)
	assert.Equal(t, "remote-value", reply.Value)
}

func TestResetClearsErrorStatus(t *testing.T) {
	m := readyManager(t, "N1", 2, &mockHost{self: "N1", createErr: errors.New("boom")})
	fillKeys(t, m, "data_key", 10)
	require.Error(t, m.Heartbeat(context.Background()))
	require.True(t, m.Status().IsError())

	m.Reset()
	assert.Equal(t, StatusReady, m.Status().Kind)
}
