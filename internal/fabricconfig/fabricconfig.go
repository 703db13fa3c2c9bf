package fabricconfig

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/coregrid/shardfabric/internal/placement"
)

// Config is the on-disk shape of a node's construction-time
// configuration. ShouldScaleUpThreshold is the YAML-serializable stand-in
// for the should_scale_up predicate: ShouldScaleUp builds the actual
// closure as "store size > threshold".
type Config struct {
	SelfID                 string `yaml:"self_id"`
	ShouldScaleUpThreshold int    `yaml:"should_scale_up_threshold"`
	AnchorCapacity         int    `yaml:"anchor_capacity"`
	HasherSeedHi           uint64 `yaml:"hasher_seed_hi"`
	HasherSeedLo           uint64 `yaml:"hasher_seed_lo"`
	MigrationChunkSize     int    `yaml:"migration_chunk_size"`
	ChildCyclesBudget      uint64 `yaml:"child_cycles_budget"`
}

// LoadConfig reads and parses a Config from a YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fabricconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fabricconfig: parse %s: %w", path, err)
	}

	if cfg.SelfID == "" {
		cfg.SelfID = uuid.NewString()
	}
	return &cfg, nil
}

// Validate reports whether cfg describes a usable configuration.
func (cfg *Config) Validate() error {
	if cfg.AnchorCapacity < 0 {
		return fmt.Errorf("fabricconfig: anchor_capacity must be >= 0, got %d", cfg.AnchorCapacity)
	}
	if cfg.MigrationChunkSize < 0 {
		return fmt.Errorf("fabricconfig: migration_chunk_size must be >= 0, got %d", cfg.MigrationChunkSize)
	}
	return nil
}

// Seed returns the 128-bit hasher seed as a placement.Seed.
func (cfg *Config) Seed() placement.Seed {
	return placement.Seed{cfg.HasherSeedHi, cfg.HasherSeedLo}
}

// ShouldScaleUp builds the scale-up predicate this config describes: the
// local store grows past ShouldScaleUpThreshold keys.
func (cfg *Config) ShouldScaleUp() func(storeSize int) bool {
	threshold := cfg.ShouldScaleUpThreshold
	return func(storeSize int) bool {
		return storeSize > threshold
	}
}

// NodeID returns cfg's SelfID as a placement.NodeID.
func (cfg *Config) NodeID() placement.NodeID {
	return placement.NodeID(cfg.SelfID)
}
