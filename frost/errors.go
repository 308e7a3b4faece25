// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"fmt"

	"github.com/luxfi/ids"
)

// InvalidStateError is returned when a ceremony call arrives in the wrong
// round or phase.
type InvalidStateError struct {
	Expected string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid ceremony state: expected %s, actual %s", e.Expected, e.Actual)
}

// DuplicateContributionError is returned when a participant submits the
// same round artifact twice.
type DuplicateContributionError struct {
	Participant ids.ID
}

func (e *DuplicateContributionError) Error() string {
	return fmt.Sprintf("duplicate contribution from %s", e.Participant)
}

// UnknownSignerError is returned for submissions from nodes outside the
// ceremony's participant set.
type UnknownSignerError struct {
	Signer ids.ID
}

func (e *UnknownSignerError) Error() string {
	return fmt.Sprintf("unknown signer %s", e.Signer)
}

// InsufficientSignersError is returned when fewer signers are available
// than the threshold requires.
type InsufficientSignersError struct {
	Required  int
	Available int
}

func (e *InsufficientSignersError) Error() string {
	return fmt.Sprintf("insufficient signers: required %d, available %d", e.Required, e.Available)
}

// QuorumError reports misconfigured quorum parameters.
type QuorumError struct {
	Reason string
}

func (e *QuorumError) Error() string {
	return "quorum: " + e.Reason
}

// ReshareError reports misconfigured reshare parameters.
type ReshareError struct {
	Reason string
}

func (e *ReshareError) Error() string {
	return "reshare: " + e.Reason
}
