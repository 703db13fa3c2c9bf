// Command fabricnode is a minimal single-process demo of the fabric: it
// wires a fabric.Manager to a simhost.Host, runs the heartbeat loop, and
// prints node_info on a timer. It is not a production node service — the
// real per-node request handler and host-platform integration live
// outside this module; this command only exists to exercise the wiring
// end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregrid/shardfabric/internal/fabric"
	"github.com/coregrid/shardfabric/internal/fabricconfig"
	"github.com/coregrid/shardfabric/internal/fabrichost"
	"github.com/coregrid/shardfabric/internal/fabriclog"
	"github.com/coregrid/shardfabric/internal/fabricmetrics"
	"github.com/coregrid/shardfabric/internal/placement"
	"github.com/coregrid/shardfabric/internal/simhost"
)

var defaultConfigPath = "config/fabricnode.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	heartbeatEvery := flag.Duration("heartbeat", 2*time.Second, "heartbeat tick interval")
	flag.Parse()

	cfg, err := fabricconfig.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zlog, err := fabriclog.NewDevelopment(cfg.SelfID)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	metrics := fabricmetrics.NewMetrics()

	host := simhost.New(func(self placement.NodeID, h fabrichost.Host) *fabric.Manager[string] {
		return fabric.New[string](fabric.Config{
			SelfID:             self,
			ShouldScaleUp:      cfg.ShouldScaleUp(),
			AnchorCapacity:     cfg.AnchorCapacity,
			HasherSeed:         cfg.Seed(),
			MigrationChunkSize: cfg.MigrationChunkSize,
			ChildCyclesBudget:  cfg.ChildCyclesBudget,
		}, h, zlog, metrics)
	})

	selfID := cfg.NodeID()
	manager := fabric.New[string](fabric.Config{
		SelfID:             selfID,
		ShouldScaleUp:      cfg.ShouldScaleUp(),
		AnchorCapacity:     cfg.AnchorCapacity,
		HasherSeed:         cfg.Seed(),
		MigrationChunkSize: cfg.MigrationChunkSize,
		ChildCyclesBudget:  cfg.ChildCyclesBudget,
	}, host.For(selfID), zlog, metrics)
	host.Seed(manager)

	// A real deployment streams the node image in over init_wasm before
	// the node starts serving; the demo seals a placeholder image the
	// same way so the lifecycle runs end to end.
	if !manager.InitWasm(0, []byte("fabricnode-demo-image")) || !manager.InitWasm(2, nil) {
		log.Fatal("init_wasm bootstrap rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*heartbeatEvery)
	defer ticker.Stop()

	zlog.Info("fabricnode started")
	var seq int
	for {
		select {
		case <-ctx.Done():
			zlog.Info("fabricnode stopping")
			return
		case <-ticker.C:
			// Synthetic write load so the scale-up predicate has
			// something to react to.
			key := fmt.Sprintf("data_key_%d", seq)
			seq++
			if reply := manager.Put(ctx, key, key); reply.Err != "" {
				zlog.Warn("put failed")
			}

			if err := host.BroadcastHeartbeat(ctx); err != nil {
				zlog.Warn("heartbeat error")
			}
			info := manager.NodeInfo()
			log.Printf("node_info: nodes=%v memory=%d status=%s", info.AllNodes, info.CurrentMemoryUsage, info.Status.Kind)
		}
	}
}
