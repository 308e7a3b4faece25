// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package frost coordinates FROST threshold signing: the three-round DKG
// ceremony, proactive resharing between quorums, the ROAST wrapper for
// asynchronous signing liveness, and quorum membership selection.
//
// The ceremonies here are coordination state machines: they track who has
// contributed what and gate round transitions. The underlying group math
// travels through them as opaque artifact bytes.
package frost

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/utils/set"
)

// CeremonyRound is the current round of a DKG ceremony.
type CeremonyRound uint8

const (
	// Round1 collects one commitment per participant.
	Round1 CeremonyRound = iota
	// Round2 collects sender-to-recipient share packages.
	Round2
	// Round3 collects one verification per participant.
	Round3
	// Complete means every participant has verified.
	Complete
)

func (r CeremonyRound) String() string {
	switch r {
	case Round1:
		return "round1"
	case Round2:
		return "round2"
	case Round3:
		return "round3"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Round1Commitment is a participant's Round 1 polynomial commitment.
type Round1Commitment struct {
	ParticipantID ids.ID
	Commitment    []byte
}

// Round2SharePackage is an encrypted secret share from one participant to
// another.
type Round2SharePackage struct {
	SenderID       ids.ID
	RecipientID    ids.ID
	EncryptedShare []byte
}

// Round3Verification is a participant's report of whether all received
// shares verified against the commitments.
type Round3Verification struct {
	ParticipantID  ids.ID
	Verified       bool
	PublicKeyShare []byte
}

// DkgCeremony coordinates one DKG run. Rounds advance only when every
// participant has contributed the round's artifact; submissions are
// commutative within a round.
type DkgCeremony struct {
	ceremonyID   ids.ID
	threshold    uint16
	round        CeremonyRound
	participants set.Set[ids.ID]

	round1Commitments   map[ids.ID]Round1Commitment
	round2Shares        map[ids.ID][]Round2SharePackage
	round3Verifications map[ids.ID]Round3Verification

	log log.Logger
}

// CeremonyID deterministically derives a ceremony identifier from the
// participant set and threshold: the same inputs yield the same ID on
// every coordinator, so no separate agreement round is needed.
func CeremonyID(participants []ids.ID, threshold uint16) ids.ID {
	sorted := append([]ids.ID(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	fields := make([][]byte, 0, len(sorted)+1)
	for i := range sorted {
		fields = append(fields, sorted[i][:])
	}
	var thresholdBytes [2]byte
	binary.LittleEndian.PutUint16(thresholdBytes[:], threshold)
	fields = append(fields, thresholdBytes[:])

	return ids.ID(hashing.Hash(hashing.EncodeFields(fields...)))
}

// StartCeremony begins a DKG with the given participants and threshold
// (1 <= t <= n).
func StartCeremony(logger log.Logger, participants []ids.ID, threshold uint16) (*DkgCeremony, error) {
	if len(participants) == 0 {
		return nil, &QuorumError{Reason: "no participants provided"}
	}
	if threshold == 0 || int(threshold) > len(participants) {
		return nil, &QuorumError{
			Reason: fmt.Sprintf("invalid threshold %d for %d participants", threshold, len(participants)),
		}
	}

	ceremony := &DkgCeremony{
		ceremonyID:          CeremonyID(participants, threshold),
		threshold:           threshold,
		round:               Round1,
		participants:        set.Of(participants...),
		round1Commitments:   make(map[ids.ID]Round1Commitment),
		round2Shares:        make(map[ids.ID][]Round2SharePackage),
		round3Verifications: make(map[ids.ID]Round3Verification),
		log:                 logger,
	}

	logger.Info("starting DKG ceremony",
		zap.Stringer("ceremonyID", ceremony.ceremonyID),
		zap.Int("participants", ceremony.participants.Len()),
		zap.Uint16("threshold", threshold),
	)
	return ceremony, nil
}

// CeremonyID returns the deterministic ceremony identifier.
func (c *DkgCeremony) CeremonyID() ids.ID {
	return c.ceremonyID
}

// Threshold returns the signing threshold.
func (c *DkgCeremony) Threshold() uint16 {
	return c.threshold
}

// CurrentRound returns the ceremony's round.
func (c *DkgCeremony) CurrentRound() CeremonyRound {
	return c.round
}

// ParticipantCount returns the number of participants.
func (c *DkgCeremony) ParticipantCount() int {
	return c.participants.Len()
}

// IsParticipant reports whether a node is in the ceremony.
func (c *DkgCeremony) IsParticipant(nodeID ids.ID) bool {
	return c.participants.Contains(nodeID)
}

// ProcessRound1 accepts one commitment per participant. When all
// commitments are in, the ceremony advances to Round 2.
func (c *DkgCeremony) ProcessRound1(commitment Round1Commitment) error {
	if c.round != Round1 {
		return &InvalidStateError{Expected: Round1.String(), Actual: c.round.String()}
	}
	if !c.participants.Contains(commitment.ParticipantID) {
		return &UnknownSignerError{Signer: commitment.ParticipantID}
	}
	if _, ok := c.round1Commitments[commitment.ParticipantID]; ok {
		return &DuplicateContributionError{Participant: commitment.ParticipantID}
	}

	c.round1Commitments[commitment.ParticipantID] = commitment
	c.log.Debug("received Round 1 commitment",
		zap.Stringer("ceremonyID", c.ceremonyID),
		zap.Stringer("participant", commitment.ParticipantID),
		zap.Int("have", len(c.round1Commitments)),
		zap.Int("want", c.participants.Len()),
	)

	if len(c.round1Commitments) == c.participants.Len() {
		c.round = Round2
		c.log.Info("DKG advancing to Round 2", zap.Stringer("ceremonyID", c.ceremonyID))
	}
	return nil
}

// ProcessRound2 accepts a share package. Both endpoints must be
// participants. The ceremony advances once every sender has contributed at
// least n-1 packages (one per other participant).
func (c *DkgCeremony) ProcessRound2(pkg Round2SharePackage) error {
	if c.round != Round2 {
		return &InvalidStateError{Expected: Round2.String(), Actual: c.round.String()}
	}
	if !c.participants.Contains(pkg.SenderID) {
		return &UnknownSignerError{Signer: pkg.SenderID}
	}
	if !c.participants.Contains(pkg.RecipientID) {
		return &UnknownSignerError{Signer: pkg.RecipientID}
	}

	c.round2Shares[pkg.SenderID] = append(c.round2Shares[pkg.SenderID], pkg)

	expectedPerSender := c.participants.Len() - 1
	complete := len(c.round2Shares) == c.participants.Len()
	if complete {
		for _, shares := range c.round2Shares {
			if len(shares) < expectedPerSender {
				complete = false
				break
			}
		}
	}
	if complete {
		c.round = Round3
		c.log.Info("DKG advancing to Round 3", zap.Stringer("ceremonyID", c.ceremonyID))
	}
	return nil
}

// ProcessRound3 accepts one verification per participant. When all
// verifications are in, the ceremony is Complete.
func (c *DkgCeremony) ProcessRound3(verification Round3Verification) error {
	if c.round != Round3 {
		return &InvalidStateError{Expected: Round3.String(), Actual: c.round.String()}
	}
	if !c.participants.Contains(verification.ParticipantID) {
		return &UnknownSignerError{Signer: verification.ParticipantID}
	}
	if _, ok := c.round3Verifications[verification.ParticipantID]; ok {
		return &DuplicateContributionError{Participant: verification.ParticipantID}
	}

	if !verification.Verified {
		c.log.Warn("participant failed share verification",
			zap.Stringer("ceremonyID", c.ceremonyID),
			zap.Stringer("participant", verification.ParticipantID),
		)
	}
	c.round3Verifications[verification.ParticipantID] = verification

	if len(c.round3Verifications) == c.participants.Len() {
		c.round = Complete
		c.log.Info("DKG ceremony complete", zap.Stringer("ceremonyID", c.ceremonyID))
	}
	return nil
}

// AllVerified reports whether the ceremony completed with every
// participant verifying successfully.
func (c *DkgCeremony) AllVerified() bool {
	if c.round != Complete {
		return false
	}
	for _, v := range c.round3Verifications {
		if !v.Verified {
			return false
		}
	}
	return true
}

// Commitments returns the collected Round 1 commitments.
func (c *DkgCeremony) Commitments() map[ids.ID]Round1Commitment {
	return c.round1Commitments
}

// Verifications returns the collected Round 3 verifications.
func (c *DkgCeremony) Verifications() map[ids.ID]Round3Verification {
	return c.round3Verifications
}
