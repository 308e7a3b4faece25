// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/ochra/core/utils/set"
)

// ReshareState is the phase of a resharing ceremony.
type ReshareState uint8

const (
	// ReshareIdle means the ceremony is initialized but not started.
	ReshareIdle ReshareState = iota
	// ResharePhase1Commitments collects commitments from old members.
	ResharePhase1Commitments
	// ResharePhase2Distribution distributes new shares to new members.
	ResharePhase2Distribution
	// ResharePhase3Verification collects verifications from new members.
	ResharePhase3Verification
	// ReshareComplete means every new member verified successfully.
	ReshareComplete
	// ReshareFailed means some verification failed or the ceremony was
	// aborted.
	ReshareFailed
)

func (s ReshareState) String() string {
	switch s {
	case ReshareIdle:
		return "idle"
	case ResharePhase1Commitments:
		return "phase1_commitments"
	case ResharePhase2Distribution:
		return "phase2_distribution"
	case ResharePhase3Verification:
		return "phase3_verification"
	case ReshareComplete:
		return "complete"
	case ReshareFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ReshareCommitment is an old member's Phase 1 commitment to a fresh
// sharing of its key share.
type ReshareCommitment struct {
	ParticipantID ids.ID
	Commitment    []byte
}

// ReshareSharePackage carries a new share from an old member to a new
// member.
type ReshareSharePackage struct {
	SenderID       ids.ID
	RecipientID    ids.ID
	EncryptedShare []byte
}

// ReshareVerification is a new member's report that its share verifies and
// the group public key is unchanged.
type ReshareVerification struct {
	ParticipantID  ids.ID
	Verified       bool
	PublicKeyShare []byte
}

// ReshareCeremony migrates signing authority from an old quorum to a new
// quorum while preserving the group public key. Quorums may overlap.
type ReshareCeremony struct {
	oldQuorum    set.Set[ids.ID]
	newQuorum    set.Set[ids.ID]
	newThreshold uint16
	state        ReshareState

	commitments   map[ids.ID]ReshareCommitment
	distributions map[ids.ID][]ReshareSharePackage
	verifications map[ids.ID]ReshareVerification

	log log.Logger
}

// InitiateReshare sets up a resharing ceremony in the Idle state.
func InitiateReshare(logger log.Logger, oldQuorum, newQuorum []ids.ID, newThreshold uint16) (*ReshareCeremony, error) {
	if len(oldQuorum) == 0 {
		return nil, &ReshareError{Reason: "old quorum is empty"}
	}
	if len(newQuorum) == 0 {
		return nil, &ReshareError{Reason: "new quorum is empty"}
	}
	if newThreshold == 0 || int(newThreshold) > len(newQuorum) {
		return nil, &ReshareError{
			Reason: fmt.Sprintf("invalid threshold %d for %d new members", newThreshold, len(newQuorum)),
		}
	}

	ceremony := &ReshareCeremony{
		oldQuorum:     set.Of(oldQuorum...),
		newQuorum:     set.Of(newQuorum...),
		newThreshold:  newThreshold,
		state:         ReshareIdle,
		commitments:   make(map[ids.ID]ReshareCommitment),
		distributions: make(map[ids.ID][]ReshareSharePackage),
		verifications: make(map[ids.ID]ReshareVerification),
		log:           logger,
	}

	logger.Info("initiating reshare ceremony",
		zap.Int("oldSize", ceremony.oldQuorum.Len()),
		zap.Int("newSize", ceremony.newQuorum.Len()),
		zap.Uint16("newThreshold", newThreshold),
	)
	return ceremony, nil
}

// State returns the ceremony's phase.
func (c *ReshareCeremony) State() ReshareState {
	return c.state
}

// NewThreshold returns the new quorum's signing threshold.
func (c *ReshareCeremony) NewThreshold() uint16 {
	return c.newThreshold
}

// OldQuorumSize returns the old quorum size.
func (c *ReshareCeremony) OldQuorumSize() int {
	return c.oldQuorum.Len()
}

// NewQuorumSize returns the new quorum size.
func (c *ReshareCeremony) NewQuorumSize() int {
	return c.newQuorum.Len()
}

// Start transitions from Idle to Phase 1.
func (c *ReshareCeremony) Start() error {
	if c.state != ReshareIdle {
		return &InvalidStateError{Expected: ReshareIdle.String(), Actual: c.state.String()}
	}
	c.state = ResharePhase1Commitments
	c.log.Info("reshare ceremony started: Phase 1 (commitments)")
	return nil
}

// SubmitCommitment accepts one Phase 1 commitment per old member. When all
// old members have committed, the ceremony advances to Phase 2.
func (c *ReshareCeremony) SubmitCommitment(commitment ReshareCommitment) error {
	if c.state != ResharePhase1Commitments {
		return &InvalidStateError{Expected: ResharePhase1Commitments.String(), Actual: c.state.String()}
	}
	if !c.oldQuorum.Contains(commitment.ParticipantID) {
		return &UnknownSignerError{Signer: commitment.ParticipantID}
	}
	if _, ok := c.commitments[commitment.ParticipantID]; ok {
		return &DuplicateContributionError{Participant: commitment.ParticipantID}
	}

	c.commitments[commitment.ParticipantID] = commitment
	if len(c.commitments) == c.oldQuorum.Len() {
		c.state = ResharePhase2Distribution
		c.log.Info("reshare advancing to Phase 2 (distribution)")
	}
	return nil
}

// SubmitDistribution accepts a Phase 2 share package from an old member to
// a new member. The ceremony advances once every old member has covered
// all new members. Retransmitted packages are tolerated: coverage is
// measured per recipient, so replays never count a recipient twice.
func (c *ReshareCeremony) SubmitDistribution(pkg ReshareSharePackage) error {
	if c.state != ResharePhase2Distribution {
		return &InvalidStateError{Expected: ResharePhase2Distribution.String(), Actual: c.state.String()}
	}
	if !c.oldQuorum.Contains(pkg.SenderID) {
		return &UnknownSignerError{Signer: pkg.SenderID}
	}
	if !c.newQuorum.Contains(pkg.RecipientID) {
		return &UnknownSignerError{Signer: pkg.RecipientID}
	}

	c.distributions[pkg.SenderID] = append(c.distributions[pkg.SenderID], pkg)

	complete := len(c.distributions) == c.oldQuorum.Len()
	if complete {
		for _, packages := range c.distributions {
			covered := set.NewSet[ids.ID](c.newQuorum.Len())
			for _, p := range packages {
				covered.Add(p.RecipientID)
			}
			if covered.Len() < c.newQuorum.Len() {
				complete = false
				break
			}
		}
	}
	if complete {
		c.state = ResharePhase3Verification
		c.log.Info("reshare advancing to Phase 3 (verification)")
	}
	return nil
}

// SubmitVerification accepts one Phase 3 verification per new member. Once
// all new members have reported, the ceremony ends Complete if every
// verification passed, Failed otherwise.
func (c *ReshareCeremony) SubmitVerification(verification ReshareVerification) error {
	if c.state != ResharePhase3Verification {
		return &InvalidStateError{Expected: ResharePhase3Verification.String(), Actual: c.state.String()}
	}
	if !c.newQuorum.Contains(verification.ParticipantID) {
		return &UnknownSignerError{Signer: verification.ParticipantID}
	}
	if _, ok := c.verifications[verification.ParticipantID]; ok {
		return &DuplicateContributionError{Participant: verification.ParticipantID}
	}

	c.verifications[verification.ParticipantID] = verification

	if len(c.verifications) == c.newQuorum.Len() {
		if c.AllVerified() {
			c.state = ReshareComplete
			c.log.Info("reshare ceremony complete")
		} else {
			c.state = ReshareFailed
			c.log.Warn("reshare ceremony failed: not all verifications passed")
		}
	}
	return nil
}

// AllVerified reports whether every collected verification passed.
func (c *ReshareCeremony) AllVerified() bool {
	for _, v := range c.verifications {
		if !v.Verified {
			return false
		}
	}
	return true
}

// Fail marks the ceremony as failed.
func (c *ReshareCeremony) Fail() {
	c.state = ReshareFailed
	c.log.Warn("reshare ceremony explicitly failed")
}
