// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/utils/set"
)

// MaxRoastAttempts caps concurrent signing attempts per session.
const MaxRoastAttempts = 8

// SignatureShare is one participant's share of a threshold signature.
type SignatureShare struct {
	ParticipantID ids.ID
	Share         []byte
}

// AttemptState is the lifecycle of one signing attempt.
type AttemptState uint8

const (
	// CollectingCommitments gathers nonce commitments.
	CollectingCommitments AttemptState = iota
	// CollectingShares gathers signature shares.
	CollectingShares
	// AttemptComplete means the attempt reached threshold.
	AttemptComplete
	// AttemptFailed means the attempt was abandoned.
	AttemptFailed
)

func (s AttemptState) String() string {
	switch s {
	case CollectingCommitments:
		return "collecting_commitments"
	case CollectingShares:
		return "collecting_shares"
	case AttemptComplete:
		return "complete"
	case AttemptFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// signingAttempt snapshots the responsive set at creation time and
// collects shares independently of its siblings. Canceling or stalling
// one attempt never affects another; that independence is what provides
// asynchronous liveness.
type signingAttempt struct {
	index        int
	participants set.Set[ids.ID]
	shares       map[ids.ID]SignatureShare
	state        AttemptState
}

// RoastSession coordinates asynchronous threshold signing over one
// message. The coordinator spawns attempts against the current responsive
// set; the first attempt to collect t shares yields the final signature.
type RoastSession struct {
	message           []byte
	threshold         int
	eligibleSigners   set.Set[ids.ID]
	responsiveSigners set.Set[ids.ID]
	attempts          []*signingAttempt
	finalSignature    []byte

	log log.Logger
}

// StartSigning opens a ROAST session. The eligible set must be at least
// the threshold; initially every eligible signer is considered responsive.
func StartSigning(logger log.Logger, message []byte, eligibleSigners []ids.ID, threshold int) (*RoastSession, error) {
	if len(eligibleSigners) < threshold {
		return nil, &InsufficientSignersError{Required: threshold, Available: len(eligibleSigners)}
	}

	eligible := set.Of(eligibleSigners...)
	session := &RoastSession{
		message:           message,
		threshold:         threshold,
		eligibleSigners:   eligible,
		responsiveSigners: eligible.Clone(),
		log:               logger,
	}

	logger.Info("starting ROAST session",
		zap.Int("eligible", eligible.Len()),
		zap.Int("threshold", threshold),
	)
	return session, nil
}

// NewAttempt snapshots the responsive set into a fresh signing attempt and
// returns its index. Fails fast when fewer responsive signers remain than
// the threshold, or when the attempt cap is reached.
func (s *RoastSession) NewAttempt() (int, error) {
	if len(s.attempts) >= MaxRoastAttempts {
		return 0, &InvalidStateError{
			Expected: "below max attempts",
			Actual:   "at max attempts",
		}
	}
	if s.responsiveSigners.Len() < s.threshold {
		return 0, &InsufficientSignersError{
			Required:  s.threshold,
			Available: s.responsiveSigners.Len(),
		}
	}

	index := len(s.attempts)
	s.attempts = append(s.attempts, &signingAttempt{
		index:        index,
		participants: s.responsiveSigners.Clone(),
		shares:       make(map[ids.ID]SignatureShare),
		state:        CollectingCommitments,
	})

	s.log.Debug("created ROAST signing attempt",
		zap.Int("attempt", index),
		zap.Int("participants", s.responsiveSigners.Len()),
	)
	return index, nil
}

// AdvanceToShares moves an attempt from commitment collection to share
// collection.
func (s *RoastSession) AdvanceToShares(attemptIndex int) error {
	if attemptIndex < 0 || attemptIndex >= len(s.attempts) {
		return &InvalidStateError{
			Expected: fmt.Sprintf("attempt %d exists", attemptIndex),
			Actual:   "attempt not found",
		}
	}
	attempt := s.attempts[attemptIndex]
	if attempt.state != CollectingCommitments {
		return &InvalidStateError{
			Expected: CollectingCommitments.String(),
			Actual:   attempt.state.String(),
		}
	}
	attempt.state = CollectingShares
	return nil
}

// ReceiveShare routes a signature share to every collecting attempt whose
// participant snapshot includes the sender. The first attempt to reach the
// threshold completes the session; its aggregated signature is returned.
// Shares arriving after completion are ignored and the existing signature
// returned.
func (s *RoastSession) ReceiveShare(participant ids.ID, share SignatureShare) ([]byte, error) {
	if !s.eligibleSigners.Contains(participant) {
		return nil, &UnknownSignerError{Signer: participant}
	}
	if s.finalSignature != nil {
		return s.finalSignature, nil
	}

	for _, attempt := range s.attempts {
		if attempt.state != CollectingShares {
			continue
		}
		if !attempt.participants.Contains(participant) {
			continue
		}
		if _, ok := attempt.shares[participant]; ok {
			continue
		}

		attempt.shares[participant] = share

		if len(attempt.shares) >= s.threshold {
			attempt.state = AttemptComplete
			sig := s.aggregateShares(attempt)
			s.finalSignature = sig
			s.log.Info("ROAST session complete", zap.Int("attempt", attempt.index))
			return sig, nil
		}
	}
	return nil, nil
}

// MarkNonResponsive removes a signer from the responsive set; future
// attempts exclude it. Attempts already in flight keep their snapshots.
func (s *RoastSession) MarkNonResponsive(signer ids.ID) {
	s.responsiveSigners.Remove(signer)
	s.log.Debug("marked signer as non-responsive",
		zap.Stringer("signer", signer),
		zap.Int("remaining", s.responsiveSigners.Len()),
	)
}

// IsCompleted reports whether a final signature was produced.
func (s *RoastSession) IsCompleted() bool {
	return s.finalSignature != nil
}

// Signature returns the final signature, or nil.
func (s *RoastSession) Signature() []byte {
	return s.finalSignature
}

// AttemptCount returns the number of attempts spawned.
func (s *RoastSession) AttemptCount() int {
	return len(s.attempts)
}

// Message returns the message being signed.
func (s *RoastSession) Message() []byte {
	return s.message
}

// Threshold returns the signing threshold.
func (s *RoastSession) Threshold() int {
	return s.threshold
}

// ResponsiveCount returns the size of the responsive set.
func (s *RoastSession) ResponsiveCount() int {
	return s.responsiveSigners.Len()
}

// aggregateShares folds a completed attempt's shares into a signature.
// Shares are bound into the digest in a canonical order so aggregation is
// independent of arrival order.
func (s *RoastSession) aggregateShares(attempt *signingAttempt) []byte {
	shareOwners := make([]ids.ID, 0, len(attempt.shares))
	for owner := range attempt.shares {
		shareOwners = append(shareOwners, owner)
	}
	sort.Slice(shareOwners, func(i, j int) bool {
		return bytes.Compare(shareOwners[i][:], shareOwners[j][:]) < 0
	})

	fields := make([][]byte, 0, 2*len(shareOwners)+1)
	for _, owner := range shareOwners {
		share := attempt.shares[owner]
		fields = append(fields, owner[:], share.Share)
	}
	fields = append(fields, s.message)

	digest := hashing.Hash(hashing.EncodeFields(fields...))
	return digest[:]
}
