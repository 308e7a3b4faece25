// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mls implements the group key-schedule ratchet: group lifecycle
// (create, add, remove, update), per-epoch secret derivation, and AEAD
// messaging with forward secrecy. Every membership change or key update
// advances the epoch by exactly one and replaces the group secret; past
// epoch secrets are overwritten, never retained.
package mls

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/ids"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ochra/core/crypto/hashing"
)

// MaxGroupSize caps group membership.
const MaxGroupSize = 2048

// MemberExistsError is returned when adding a member already present.
type MemberExistsError struct {
	MemberID ids.ID
}

func (e *MemberExistsError) Error() string {
	return fmt.Sprintf("member %s already in group", e.MemberID)
}

// MemberNotFoundError is returned when a member is absent.
type MemberNotFoundError struct {
	MemberID ids.ID
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("member %s not in group", e.MemberID)
}

// GroupFullError is returned when the member cap is reached.
type GroupFullError struct {
	Max int
}

func (e *GroupFullError) Error() string {
	return fmt.Sprintf("group full: maximum %d members", e.Max)
}

// ErrGroupEmpty is returned when removing the last member.
var ErrGroupEmpty = errGroupEmpty{}

type errGroupEmpty struct{}

func (errGroupEmpty) Error() string { return "cannot remove the last group member" }

// InvalidEpochError is returned when decrypting a ciphertext from a
// different epoch; messages from past epochs are undecryptable by design.
type InvalidEpochError struct {
	Expected uint64
	Actual   uint64
}

func (e *InvalidEpochError) Error() string {
	return fmt.Sprintf("invalid epoch: expected %d, actual %d", e.Expected, e.Actual)
}

// EncryptionError wraps AEAD failures.
type EncryptionError struct {
	Reason string
}

func (e *EncryptionError) Error() string {
	return "group encryption: " + e.Reason
}

// KeyPackage is a member's join material.
type KeyPackage struct {
	MemberID   ids.ID
	InitKey    [32]byte
	SigningKey [32]byte
}

// Welcome is sent to a newly added member.
type Welcome struct {
	GroupID              ids.ID
	Epoch                uint64
	EncryptedGroupSecret []byte
	MemberIDs            []ids.ID
}

// Ciphertext is an encrypted group message envelope.
type Ciphertext struct {
	GroupID    ids.ID
	Epoch      uint64
	SenderID   ids.ID
	Ciphertext []byte
	Nonce      [12]byte
}

// GroupSecret is the derived per-epoch triple.
type GroupSecret struct {
	EpochSecret   [32]byte
	EncryptionKey [32]byte
	NonceBase     [12]byte
}

type member struct {
	memberID   ids.ID
	keyPackage KeyPackage
	addedEpoch uint64
}

// GroupState owns one group's membership, epoch, and current secret. The
// per-epoch message counter resets on every transition, keeping each
// (nonceBase, counter) pair unique within an epoch.
type GroupState struct {
	groupID        ids.ID
	epoch          uint64
	secret         GroupSecret
	members        []member
	messageCounter uint64
}

// CreateGroup creates a group with the founder as sole member at epoch 0.
func CreateGroup(groupID ids.ID, founder KeyPackage) *GroupState {
	return &GroupState{
		groupID: groupID,
		epoch:   0,
		secret:  deriveInitialSecret(groupID, founder),
		members: []member{{
			memberID:   founder.MemberID,
			keyPackage: founder,
			addedEpoch: 0,
		}},
	}
}

// GroupID returns the group identifier.
func (g *GroupState) GroupID() ids.ID {
	return g.groupID
}

// Epoch returns the current epoch.
func (g *GroupState) Epoch() uint64 {
	return g.epoch
}

// MemberCount returns the number of members.
func (g *GroupState) MemberCount() int {
	return len(g.members)
}

// HasMember reports whether a member is in the group.
func (g *GroupState) HasMember(memberID ids.ID) bool {
	return g.memberIndex(memberID) >= 0
}

// MemberIDs lists the member identifiers.
func (g *GroupState) MemberIDs() []ids.ID {
	out := make([]ids.ID, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.memberID)
	}
	return out
}

// CurrentSecret returns the current group secret.
func (g *GroupState) CurrentSecret() GroupSecret {
	return g.secret
}

func (g *GroupState) memberIndex(memberID ids.ID) int {
	for i, m := range g.members {
		if m.memberID == memberID {
			return i
		}
	}
	return -1
}

// AddMember appends a member, advances the epoch, and folds the new
// member's identity into the next epoch secret. Returns the Welcome for
// the new member.
func (g *GroupState) AddMember(pkg KeyPackage) (*Welcome, error) {
	if g.HasMember(pkg.MemberID) {
		return nil, &MemberExistsError{MemberID: pkg.MemberID}
	}
	if len(g.members) >= MaxGroupSize {
		return nil, &GroupFullError{Max: MaxGroupSize}
	}

	g.advanceEpoch(pkg.MemberID[:])
	g.members = append(g.members, member{
		memberID:   pkg.MemberID,
		keyPackage: pkg,
		addedEpoch: g.epoch,
	})

	return &Welcome{
		GroupID:              g.groupID,
		Epoch:                g.epoch,
		EncryptedGroupSecret: g.secret.EpochSecret[:],
		MemberIDs:            g.MemberIDs(),
	}, nil
}

// RemoveMember drops a member, advances the epoch, and folds the removed
// identity into the next epoch secret so the departed member cannot read
// future traffic.
func (g *GroupState) RemoveMember(memberID ids.ID) error {
	idx := g.memberIndex(memberID)
	if idx < 0 {
		return &MemberNotFoundError{MemberID: memberID}
	}
	if len(g.members) == 1 {
		return ErrGroupEmpty
	}

	g.members = append(g.members[:idx], g.members[idx+1:]...)
	g.advanceEpoch(memberID[:])
	return nil
}

// UpdateKeys rotates the group secret with no membership change
// (post-compromise security).
func (g *GroupState) UpdateKeys() GroupSecret {
	var epochBytes [8]byte
	binary.LittleEndian.PutUint64(epochBytes[:], g.epoch+1)
	g.advanceEpoch(epochBytes[:])
	return g.secret
}

// advanceEpoch bumps the epoch, derives the next secret from the previous
// one plus the change data, and resets the message counter. The previous
// secret is overwritten in place.
func (g *GroupState) advanceEpoch(changeData []byte) {
	g.epoch++
	g.secret = deriveNextSecret(g.secret, changeData, g.epoch)
	g.messageCounter = 0
}

// Encrypt seals a plaintext under the current epoch key. The sender must
// be a current member; the group ID is bound as associated data.
func (g *GroupState) Encrypt(senderID ids.ID, plaintext []byte) (*Ciphertext, error) {
	if !g.HasMember(senderID) {
		return nil, &MemberNotFoundError{MemberID: senderID}
	}

	nonce := g.nextNonce()
	aead, err := chacha20poly1305.New(g.secret.EncryptionKey[:])
	if err != nil {
		return nil, &EncryptionError{Reason: err.Error()}
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, g.groupID[:])

	return &Ciphertext{
		GroupID:    g.groupID,
		Epoch:      g.epoch,
		SenderID:   senderID,
		Ciphertext: sealed,
		Nonce:      nonce,
	}, nil
}

// Decrypt opens a ciphertext. The envelope must match the current group
// and epoch; ciphertexts from other epochs fail with InvalidEpochError.
func (g *GroupState) Decrypt(ct *Ciphertext) ([]byte, error) {
	if ct.GroupID != g.groupID {
		return nil, &EncryptionError{Reason: "group ID mismatch"}
	}
	if ct.Epoch != g.epoch {
		return nil, &InvalidEpochError{Expected: g.epoch, Actual: ct.Epoch}
	}

	aead, err := chacha20poly1305.New(g.secret.EncryptionKey[:])
	if err != nil {
		return nil, &EncryptionError{Reason: err.Error()}
	}
	plaintext, err := aead.Open(nil, ct.Nonce[:], ct.Ciphertext, g.groupID[:])
	if err != nil {
		return nil, &EncryptionError{Reason: "AEAD open failed"}
	}
	return plaintext, nil
}

// nextNonce XORs the little-endian message counter into the epoch nonce
// base and bumps the counter.
func (g *GroupState) nextNonce() [12]byte {
	nonce := g.secret.NonceBase
	var counterBytes [8]byte
	binary.LittleEndian.PutUint64(counterBytes[:], g.messageCounter)
	for i, b := range counterBytes {
		nonce[i] ^= b
	}
	g.messageCounter++
	return nonce
}

// deriveInitialSecret derives epoch 0's secret from the group ID and the
// founder's key material.
func deriveInitialSecret(groupID ids.ID, founder KeyPackage) GroupSecret {
	input := hashing.EncodeFields(groupID[:], founder.InitKey[:], founder.SigningKey[:])
	return expandEpochSecret(hashing.DeriveKey(hashing.ContextGroupSettingsKey, input))
}

// deriveNextSecret chains the previous epoch secret with the change data
// and the new epoch number.
func deriveNextSecret(current GroupSecret, changeData []byte, epoch uint64) GroupSecret {
	var epochBytes [8]byte
	binary.LittleEndian.PutUint64(epochBytes[:], epoch)
	input := hashing.EncodeFields(current.EpochSecret[:], changeData, epochBytes[:])
	return expandEpochSecret(hashing.DeriveKey(hashing.ContextGroupSettingsKey, input))
}

// expandEpochSecret derives the AEAD key and nonce base from an epoch
// secret.
func expandEpochSecret(epochSecret [32]byte) GroupSecret {
	nonceFull := hashing.DeriveKey(hashing.ContextSessionKeyID, epochSecret[:])
	secret := GroupSecret{
		EpochSecret:   epochSecret,
		EncryptionKey: hashing.DeriveKey(hashing.ContextContentEscrowKey, epochSecret[:]),
	}
	copy(secret.NonceBase[:], nonceFull[:12])
	return secret
}
