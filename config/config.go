// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the node configuration: bootstrap seeds, cover
// traffic timing, and quorum parameters, loadable from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ochra/core/dht"
	"github.com/ochra/core/onion"
)

// NodeConfig is the node-local section.
type NodeConfig struct {
	// DataDir is where the node keeps its state.
	DataDir string `yaml:"dataDir"`

	// ListenAddr is the transport listen address ("ip:port").
	ListenAddr string `yaml:"listenAddr"`
}

// BootstrapSection configures the DHT join procedure.
type BootstrapSection struct {
	Seeds              []dht.SeedNode `yaml:"seeds"`
	MaxRetries         int            `yaml:"maxRetries"`
	TimeoutSecs        int            `yaml:"timeoutSecs"`
	MinResponsiveSeeds int            `yaml:"minResponsiveSeeds"`
}

// QuorumSection configures threshold-signing participation.
type QuorumSection struct {
	Threshold        uint16 `yaml:"threshold"`
	MaxChurnPerEpoch int    `yaml:"maxChurnPerEpoch"`
}

// Config is the full node configuration.
type Config struct {
	Node      NodeConfig               `yaml:"node"`
	Bootstrap BootstrapSection         `yaml:"bootstrap"`
	Cover     onion.CoverTrafficConfig `yaml:"cover"`
	Quorum    QuorumSection            `yaml:"quorum"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Node: NodeConfig{
			DataDir:    ".ochra",
			ListenAddr: "0.0.0.0:4433",
		},
		Bootstrap: BootstrapSection{
			MaxRetries:         dht.DefaultBootstrapRetries,
			TimeoutSecs:        int(dht.DefaultBootstrapTimeout / time.Second),
			MinResponsiveSeeds: 1,
		},
		Cover: onion.DefaultCoverTrafficConfig(),
		Quorum: QuorumSection{
			Threshold:        3,
			MaxChurnPerEpoch: 2,
		},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Node.ListenAddr == "" {
		return fmt.Errorf("node.listenAddr must be set")
	}
	if c.Bootstrap.MaxRetries < 1 {
		return fmt.Errorf("bootstrap.maxRetries must be >= 1")
	}
	if c.Bootstrap.TimeoutSecs < 1 {
		return fmt.Errorf("bootstrap.timeoutSecs must be >= 1")
	}
	if len(c.Bootstrap.Seeds) > 0 && c.Bootstrap.MinResponsiveSeeds > len(c.Bootstrap.Seeds) {
		return fmt.Errorf("bootstrap.minResponsiveSeeds (%d) exceeds seed count (%d)",
			c.Bootstrap.MinResponsiveSeeds, len(c.Bootstrap.Seeds))
	}
	if c.Cover.MeanIntervalMs < onion.MinCoverIntervalMs || c.Cover.MeanIntervalMs > onion.MaxCoverIntervalMs {
		return fmt.Errorf("cover.meanIntervalMs must be in [%d, %d]",
			onion.MinCoverIntervalMs, onion.MaxCoverIntervalMs)
	}
	if c.Quorum.Threshold == 0 {
		return fmt.Errorf("quorum.threshold must be >= 1")
	}
	return nil
}

// BootstrapConfig converts the section into the dht package's form.
func (c *Config) BootstrapConfig() dht.BootstrapConfig {
	return dht.BootstrapConfig{
		Seeds:              c.Bootstrap.Seeds,
		MaxRetries:         c.Bootstrap.MaxRetries,
		Timeout:            time.Duration(c.Bootstrap.TimeoutSecs) * time.Second,
		MinResponsiveSeeds: c.Bootstrap.MinResponsiveSeeds,
	}
}
