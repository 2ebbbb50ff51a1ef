package config

// Package config provides a reusable loader for node configuration files and
// environment variables. The on-disk format is TOML; viper merges environment
// overrides on top.

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"aurachain/pkg/utils"
)

// Node types accepted by the [node] table.
const (
	NodeTypeFullNode  = "FullNode"
	NodeTypeValidator = "Validator"
)

// Config mirrors the node's config.toml.
type Config struct {
	Node struct {
		Public       string   `mapstructure:"public"`
		Secret       string   `mapstructure:"secret"`
		NodeType     string   `mapstructure:"node_type"`
		GenesisBlock bool     `mapstructure:"genesis_block"`
		P2PPort      uint16   `mapstructure:"p2p_port"`
		DiscoveryTag string   `mapstructure:"discovery_tag"`
		DBPath       string   `mapstructure:"dbpath"`
		ClientHost   string   `mapstructure:"client_host"`
		ClientPort   uint16   `mapstructure:"client_port"`
		PeerBridges  []string `mapstructure:"peer_bridges"`
	} `mapstructure:"node"`

	Block struct {
		// microseconds spent waiting for transactions before sealing
		BlockCreationTimeLimit uint64 `mapstructure:"block_creation_time_limit"`
	} `mapstructure:"block"`

	Consensus struct {
		ValidatorSet  []string `mapstructure:"validator_set"`
		ValidatorIDs  []uint64 `mapstructure:"validator_ids"`
		StepTime      uint64   `mapstructure:"step_time"`
		StartTime     uint64   `mapstructure:"start_time"`
		RoundNumber   uint64   `mapstructure:"round_number"`
		BlockListSize int      `mapstructure:"block_list_size"`
		ForceSealing  bool     `mapstructure:"force_sealing"`
	} `mapstructure:"consensus"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// Load reads the TOML configuration at path and applies environment
// overrides. The returned configuration has been validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("node.node_type", NodeTypeFullNode)
	v.SetDefault("node.client_host", "127.0.0.1")
	v.SetDefault("node.client_port", 8089)
	v.SetDefault("node.dbpath", "aurachain-db")
	v.SetDefault("block.block_creation_time_limit", 5_000_000)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the configuration named by AURACHAIN_CONFIG, defaulting
// to ./config.toml.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("AURACHAIN_CONFIG", "config.toml"))
}

// Validate enforces the startup invariants. A broken identity or validator
// table is fatal misconfiguration.
func (c *Config) Validate() error {
	secret, err := hex.DecodeString(c.Node.Secret)
	if err != nil {
		return fmt.Errorf("node secret is not valid hex: %w", err)
	}
	if len(secret) != 32 {
		return fmt.Errorf("node secret must be 32 bytes, got %d", len(secret))
	}
	if _, err := hex.DecodeString(c.Node.Public); err != nil {
		return fmt.Errorf("node public key is not valid hex: %w", err)
	}
	switch c.Node.NodeType {
	case NodeTypeFullNode, NodeTypeValidator:
	default:
		return fmt.Errorf("unknown node_type %q", c.Node.NodeType)
	}
	if len(c.Consensus.ValidatorSet) != len(c.Consensus.ValidatorIDs) {
		return fmt.Errorf("validator_set and validator_ids lengths differ")
	}
	if c.Consensus.StepTime == 0 {
		return fmt.Errorf("consensus step_time must be positive")
	}
	seen := make(map[uint64]struct{}, len(c.Consensus.ValidatorIDs))
	for _, id := range c.Consensus.ValidatorIDs {
		if id >= uint64(len(c.Consensus.ValidatorIDs)) {
			return fmt.Errorf("validator id %d out of range", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("validator id %d assigned twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
