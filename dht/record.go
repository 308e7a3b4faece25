// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/ids"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/crypto/identity"
)

const (
	// MaxRecordSize is the maximum value size of a single record. Larger
	// values must be chunked.
	MaxRecordSize = 1000

	// MaxSaltSize is the maximum salt length for mutable records.
	MaxSaltSize = 64
)

// Record is a DHT record: either immutable (content-addressed) or mutable
// (publisher-signed with a monotonically increasing sequence number).
type Record interface {
	// StorageKey returns the 32-byte key this record is stored under.
	StorageKey() ids.ID

	// Value returns the record's value bytes.
	Value() []byte

	// Validate checks size constraints and, for mutable records, the
	// publisher signature.
	Validate() error
}

// ImmutableRecord is content-addressed: key = Hash(value).
type ImmutableRecord struct {
	Val []byte `cbor:"1,keyasint"`
}

// NewImmutableRecord creates an immutable record, enforcing the size limit.
func NewImmutableRecord(value []byte) (*ImmutableRecord, error) {
	if len(value) > MaxRecordSize {
		return nil, &RecordTooLargeError{Size: len(value), Max: MaxRecordSize}
	}
	return &ImmutableRecord{Val: value}, nil
}

func (r *ImmutableRecord) StorageKey() ids.ID {
	return ids.ID(hashing.Hash(r.Val))
}

func (r *ImmutableRecord) Value() []byte {
	return r.Val
}

func (r *ImmutableRecord) Validate() error {
	if len(r.Val) > MaxRecordSize {
		return &RecordTooLargeError{Size: len(r.Val), Max: MaxRecordSize}
	}
	return nil
}

// MutableRecord is publisher-signed: key = Hash(publicKey || salt), and
// only the signing-key holder can publish updates. The signature covers
// salt || seq_be || value.
type MutableRecord struct {
	PublicKey [32]byte `cbor:"1,keyasint"`
	Salt      []byte   `cbor:"2,keyasint"`
	Seq       uint64   `cbor:"3,keyasint"`
	Val       []byte   `cbor:"4,keyasint"`
	Signature [64]byte `cbor:"5,keyasint"`
}

// NewMutableRecord creates and signs a mutable record with the given
// signing keypair.
func NewMutableRecord(signer *identity.SigningKeyPair, salt []byte, seq uint64, value []byte) (*MutableRecord, error) {
	if len(value) > MaxRecordSize {
		return nil, &RecordTooLargeError{Size: len(value), Max: MaxRecordSize}
	}
	if len(salt) > MaxSaltSize {
		return nil, fmt.Errorf("salt too long: %d bytes, max %d", len(salt), MaxSaltSize)
	}

	r := &MutableRecord{
		PublicKey: signer.PublicKeyBytes(),
		Salt:      append([]byte(nil), salt...),
		Seq:       seq,
		Val:       value,
	}
	r.Signature = signer.Sign(r.signedData())
	return r, nil
}

// signedData builds the byte string covered by the signature:
// salt || seq_be || value.
func (r *MutableRecord) signedData() []byte {
	data := make([]byte, 0, len(r.Salt)+8+len(r.Val))
	data = append(data, r.Salt...)
	data = binary.BigEndian.AppendUint64(data, r.Seq)
	data = append(data, r.Val...)
	return data
}

func (r *MutableRecord) StorageKey() ids.ID {
	input := make([]byte, 0, len(r.PublicKey)+len(r.Salt))
	input = append(input, r.PublicKey[:]...)
	input = append(input, r.Salt...)
	return ids.ID(hashing.Hash(input))
}

func (r *MutableRecord) Value() []byte {
	return r.Val
}

func (r *MutableRecord) Validate() error {
	if len(r.Val) > MaxRecordSize {
		return &RecordTooLargeError{Size: len(r.Val), Max: MaxRecordSize}
	}
	if len(r.Salt) > MaxSaltSize {
		return fmt.Errorf("salt too long: %d bytes, max %d", len(r.Salt), MaxSaltSize)
	}
	if !identity.Verify(r.PublicKey, r.signedData(), r.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// recordEnvelope is the CBOR wire form of a record. Exactly one of the two
// variants is set, discriminated by Kind.
type recordEnvelope struct {
	Kind      uint8            `cbor:"1,keyasint"`
	Immutable *ImmutableRecord `cbor:"2,keyasint,omitempty"`
	Mutable   *MutableRecord   `cbor:"3,keyasint,omitempty"`
}

const (
	recordKindImmutable = 1
	recordKindMutable   = 2
)

// MarshalRecord encodes a record for the wire or for persistence.
func MarshalRecord(r Record) ([]byte, error) {
	env := recordEnvelope{}
	switch rec := r.(type) {
	case *ImmutableRecord:
		env.Kind = recordKindImmutable
		env.Immutable = rec
	case *MutableRecord:
		env.Kind = recordKindMutable
		env.Mutable = rec
	default:
		return nil, fmt.Errorf("unknown record type %T", r)
	}
	return cbor.Marshal(env)
}

// UnmarshalRecord decodes a record envelope.
func UnmarshalRecord(data []byte) (Record, error) {
	var env recordEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	switch env.Kind {
	case recordKindImmutable:
		if env.Immutable == nil {
			return nil, fmt.Errorf("immutable record envelope missing body")
		}
		return env.Immutable, nil
	case recordKindMutable:
		if env.Mutable == nil {
			return nil, fmt.Errorf("mutable record envelope missing body")
		}
		return env.Mutable, nil
	default:
		return nil, fmt.Errorf("unknown record kind %d", env.Kind)
	}
}
