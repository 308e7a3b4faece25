// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"errors"
	"fmt"
)

var (
	ErrMACVerification = errors.New("sphinx header MAC verification failed")
	ErrCircuitExpired  = errors.New("circuit has exceeded its lifetime")
	ErrCircuitClosed   = errors.New("circuit has been closed")
)

// InsufficientRelaysError is returned when not enough distinct relays are
// available to satisfy the circuit length or selection constraints.
type InsufficientRelaysError struct {
	Need int
	Have int
}

func (e *InsufficientRelaysError) Error() string {
	return fmt.Sprintf("insufficient relays: need %d, have %d", e.Need, e.Have)
}

// ConstraintViolationError is returned when selection cannot proceed under
// the subnet/AS constraints even after relaxing soft preferences.
type ConstraintViolationError struct {
	Hop int
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("cannot select relay for hop %d under subnet/AS constraints", e.Hop)
}

// InvalidPacketError is returned for malformed Sphinx packets.
type InvalidPacketError struct {
	Reason string
}

func (e *InvalidPacketError) Error() string {
	return "invalid sphinx packet: " + e.Reason
}

// CryptoError wraps an AEAD failure during packet processing.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return "sphinx crypto failure: " + e.Err.Error()
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}
