// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/ochra/core/crypto/hashing"
	"github.com/luxfi/ids"
)

const (
	// DefaultBootstrapRetries is the per-seed probe retry budget.
	DefaultBootstrapRetries = 3

	// DefaultBootstrapTimeout bounds each probe attempt.
	DefaultBootstrapTimeout = 10 * time.Second
)

// SeedNode is a configured bootstrap endpoint.
type SeedNode struct {
	Addr       string   `yaml:"addr"`
	SigningKey [32]byte `yaml:"signingKey"`
}

// NodeID derives the seed's expected node ID from its signing key.
func (s SeedNode) NodeID() ids.ID {
	return ids.ID(hashing.Hash(s.SigningKey[:]))
}

// BootstrapConfig configures the join procedure.
type BootstrapConfig struct {
	Seeds              []SeedNode
	MaxRetries         int
	Timeout            time.Duration
	MinResponsiveSeeds int
}

// DefaultBootstrapConfig returns a config with the given seeds and default
// retry parameters.
func DefaultBootstrapConfig(seeds []SeedNode) BootstrapConfig {
	return BootstrapConfig{
		Seeds:              seeds,
		MaxRetries:         DefaultBootstrapRetries,
		Timeout:            DefaultBootstrapTimeout,
		MinResponsiveSeeds: 1,
	}
}

// Validate checks the configuration for consistency.
func (c *BootstrapConfig) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if c.MinResponsiveSeeds > len(c.Seeds) {
		return &BootstrapFailedError{
			Reason: fmt.Sprintf("minResponsiveSeeds (%d) exceeds total seed nodes (%d)",
				c.MinResponsiveSeeds, len(c.Seeds)),
		}
	}
	return nil
}

// BootstrapResult reports the outcome of a bootstrap run.
type BootstrapResult struct {
	ResponsiveSeeds int
	PeersDiscovered int
}

// Transport is the network I/O needed by bootstrap. Implementations plug
// in QUIC or any other channel; only the contract matters here, which also
// keeps the bootstrap logic testable without real networking.
type Transport interface {
	// Probe contacts a node at addr and returns its NodeInfo.
	Probe(ctx context.Context, addr string, timeout time.Duration) (NodeInfo, error)

	// FindNode runs an iterative FIND_NODE for target starting from
	// seedNodes, returning all nodes discovered.
	FindNode(ctx context.Context, target ids.ID, seedNodes []NodeInfo, timeout time.Duration) ([]NodeInfo, error)
}

// Bootstrap joins the DHT: it probes each configured seed (with retries),
// adds responders to the routing table, and, once enough seeds responded,
// performs a self-lookup to populate nearby buckets.
func Bootstrap(
	ctx context.Context,
	logger log.Logger,
	config BootstrapConfig,
	table *RoutingTable,
	transport Transport,
) (BootstrapResult, error) {
	if err := config.Validate(); err != nil {
		return BootstrapResult{}, err
	}

	logger.Info("starting DHT bootstrap", zap.Int("seedCount", len(config.Seeds)))

	responsive := 0
	for _, seed := range config.Seeds {
		connected := false
		for attempt := 0; attempt < config.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return BootstrapResult{}, err
			}

			logger.Debug("probing seed node",
				zap.String("addr", seed.Addr),
				zap.Int("attempt", attempt+1),
			)
			info, err := transport.Probe(ctx, seed.Addr, config.Timeout)
			if err != nil {
				logger.Warn("seed probe failed",
					zap.String("addr", seed.Addr),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				continue
			}

			table.Add(info)
			responsive++
			connected = true
			logger.Info("seed node responded", zap.String("addr", seed.Addr))
			break
		}
		if !connected {
			logger.Warn("seed unreachable after all retries",
				zap.String("addr", seed.Addr),
				zap.Stringer("nodeID", seed.NodeID()),
			)
		}
	}

	if responsive < config.MinResponsiveSeeds {
		return BootstrapResult{}, &BootstrapFailedError{
			Reason: fmt.Sprintf("only %d of %d required seed nodes responded",
				responsive, config.MinResponsiveSeeds),
		}
	}

	// Self-lookup to discover peers near our own ID.
	localID := table.LocalID()
	discovered := 0
	peers, err := transport.FindNode(ctx, localID, table.FindClosest(localID, K), config.Timeout)
	if err != nil {
		logger.Warn("self-lookup during bootstrap failed", zap.Error(err))
	} else {
		discovered = len(peers)
		for _, peer := range peers {
			table.Add(peer)
		}
	}

	result := BootstrapResult{
		ResponsiveSeeds: responsive,
		PeersDiscovered: discovered,
	}
	logger.Info("bootstrap complete",
		zap.Int("responsiveSeeds", result.ResponsiveSeeds),
		zap.Int("peersDiscovered", result.PeersDiscovered),
	)
	return result, nil
}
