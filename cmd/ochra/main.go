// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ochra/core/crypto/identity"
	"github.com/ochra/core/posrv"
)

var rootCmd = &cobra.Command{
	Use:   "ochra",
	Short: "Ochra core utilities for identity and scoring",
	Long: `The ochra command provides offline utilities for working with the
Ochra core: identity key generation, node ID derivation, and PoSrv
score computation.`,
}

func main() {
	rootCmd.AddCommand(
		keygenCmd(),
		nodeIDCmd(),
		scoreCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair and print its node ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := identity.GenerateSigningKeyPair()
			if err != nil {
				return err
			}
			pk := kp.PublicKeyBytes()
			cmd.Printf("public key: %s\n", hex.EncodeToString(pk[:]))
			cmd.Printf("node id:    %s\n", kp.NodeID())
			return nil
		},
	}
}

func nodeIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node-id <hex-public-key>",
		Short: "Derive the node ID from a signing public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("decode public key: %w", err)
			}
			if len(raw) != identity.PublicKeyLen {
				return fmt.Errorf("public key must be %d bytes, got %d", identity.PublicKeyLen, len(raw))
			}
			var pk [identity.PublicKeyLen]byte
			copy(pk[:], raw)
			cmd.Println(identity.NodeIDFromPublicKey(pk))
			return nil
		},
	}
}

func scoreCmd() *cobra.Command {
	var input posrv.Input
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute a PoSrv composite score from raw metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			breakdown, err := posrv.ComputeBreakdown(input)
			if err != nil {
				return err
			}
			cmd.Printf("gbs served (normalized): %.4f\n", breakdown.GBsServedNormalized)
			cmd.Printf("uptime:                  %.4f\n", breakdown.UptimeScore)
			cmd.Printf("zk-por pass rate:        %.4f\n", breakdown.ZKPoRScore)
			cmd.Printf("trust weight:            %.4f\n", breakdown.TrustScore)
			cmd.Printf("composite:               %.4f\n", breakdown.Composite)
			cmd.Printf("quorum eligible:         %t\n", breakdown.QuorumEligible)
			return nil
		},
	}
	cmd.Flags().Float64Var(&input.GBsServed, "gbs", 0, "gigabytes served")
	cmd.Flags().Float64Var(&input.UptimeFraction, "uptime", 0, "uptime fraction [0,1]")
	cmd.Flags().Float64Var(&input.ZKPoRPassRate, "zkpor", 0, "zk-PoR pass rate [0,1]")
	cmd.Flags().Float64Var(&input.TrustWeight, "trust", 0, "trust weight [0,1]")
	return cmd
}
