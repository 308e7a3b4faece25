// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity holds the long-term node keypairs: an Ed25519 signing
// key (the platform identity key) and an X25519 key for Diffie-Hellman.
// The node identifier is the BLAKE3 hash of the signing public key.
//
// Secret material is owned by whichever component created it; Zeroize wipes
// it when the owner is done.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"golang.org/x/crypto/curve25519"

	"github.com/ochra/core/crypto/hashing"
)

const (
	// PublicKeyLen is the length of both Ed25519 and X25519 public keys.
	PublicKeyLen = 32

	// SignatureLen is the length of an Ed25519 signature.
	SignatureLen = 64

	// SharedSecretLen is the length of an X25519 shared secret.
	SharedSecretLen = 32
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key length")
	ErrInvalidSignature = errors.New("invalid signature length")
)

// SigningKeyPair is a long-term Ed25519 keypair.
type SigningKeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// GenerateSigningKeyPair creates a fresh Ed25519 keypair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &SigningKeyPair{private: priv, public: pub}, nil
}

// SigningKeyPairFromSeed deterministically derives a keypair from a 32-byte
// seed.
func SigningKeyPairFromSeed(seed [32]byte) *SigningKeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &SigningKeyPair{
		private: priv,
		public:  priv.Public().(ed25519.PublicKey),
	}
}

// PublicKeyBytes returns the 32-byte public key.
func (kp *SigningKeyPair) PublicKeyBytes() [PublicKeyLen]byte {
	var out [PublicKeyLen]byte
	copy(out[:], kp.public)
	return out
}

// Sign signs msg, returning a 64-byte signature.
func (kp *SigningKeyPair) Sign(msg []byte) [SignatureLen]byte {
	var out [SignatureLen]byte
	copy(out[:], ed25519.Sign(kp.private, msg))
	return out
}

// NodeID returns the node identifier for this keypair.
func (kp *SigningKeyPair) NodeID() ids.ID {
	pk := kp.PublicKeyBytes()
	return NodeIDFromPublicKey(pk)
}

// Zeroize wipes the private key material.
func (kp *SigningKeyPair) Zeroize() {
	for i := range kp.private {
		kp.private[i] = 0
	}
}

// Verify checks a 64-byte signature over msg under a 32-byte public key.
func Verify(publicKey [PublicKeyLen]byte, msg []byte, sig [SignatureLen]byte) bool {
	return ed25519.Verify(publicKey[:], msg, sig[:])
}

// VerifyBytes is Verify over raw slices, validating lengths first.
func VerifyBytes(publicKey, msg, sig []byte) error {
	if len(publicKey) != PublicKeyLen {
		return ErrInvalidPublicKey
	}
	if len(sig) != SignatureLen {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(publicKey, msg, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// NodeIDFromPublicKey derives the node identifier: the BLAKE3 hash of the
// Ed25519 public key.
func NodeIDFromPublicKey(publicKey [PublicKeyLen]byte) ids.ID {
	return ids.ID(hashing.Hash(publicKey[:]))
}

// DHKeyPair is a long-term X25519 keypair.
type DHKeyPair struct {
	private [32]byte
	public  [PublicKeyLen]byte
}

// GenerateDHKeyPair creates a fresh X25519 keypair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generate DH key: %w", err)
	}
	return DHKeyPairFromSecret(priv)
}

// DHKeyPairFromSecret builds a keypair from an existing scalar.
func DHKeyPairFromSecret(secret [32]byte) (*DHKeyPair, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive DH public key: %w", err)
	}
	kp := &DHKeyPair{private: secret}
	copy(kp.public[:], pub)
	return kp, nil
}

// PublicKeyBytes returns the 32-byte X25519 public key.
func (kp *DHKeyPair) PublicKeyBytes() [PublicKeyLen]byte {
	return kp.public
}

// SharedSecret computes the X25519 shared secret with a peer public key.
func (kp *DHKeyPair) SharedSecret(peerPublic [PublicKeyLen]byte) ([SharedSecretLen]byte, error) {
	var out [SharedSecretLen]byte
	shared, err := curve25519.X25519(kp.private[:], peerPublic[:])
	if err != nil {
		return out, fmt.Errorf("X25519: %w", err)
	}
	copy(out[:], shared)
	return out, nil
}

// Zeroize wipes the private scalar.
func (kp *DHKeyPair) Zeroize() {
	for i := range kp.private {
		kp.private[i] = 0
	}
}
