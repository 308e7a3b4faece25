// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/luxfi/ids"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/crypto/identity"
)

// Sphinx packets are a fixed 8192 bytes, real and cover traffic alike.
//
// Wire layout (v1, X25519-only):
//
//	[version:1][flags:1][ephPK:3x32][routing:3x83][mac:3x16][reserved:17][payload:7780]
//
// Each hop authenticates the header with its own 16-byte MAC slot, then
// peels one ChaCha20-Poly1305 layer off the payload. The ciphertext at hop
// i is PayloadSize - i*16 bytes; the freed tail is refilled with a
// deterministic pad stream so the packet size never changes on the wire.
const (
	// PacketSize is the total Sphinx packet size.
	PacketSize = 8192

	// NumHops is the fixed circuit length.
	NumHops = CircuitHops

	ephPKSize = 32

	// RoutingInfoSize is one routing block:
	// [nodeID:32][nextNodeID:32][circuitID:16][hopIndex:1][reserved:2].
	RoutingInfoSize = 83

	macSize = 16

	// HeaderSize covers everything before the encrypted payload. The
	// 17 reserved bytes are held for a post-quantum KEM extension.
	HeaderSize = 1 + 1 + NumHops*ephPKSize + NumHops*RoutingInfoSize + NumHops*macSize + 17

	// PayloadSize is the encrypted payload area.
	PayloadSize = PacketSize - HeaderSize

	// MaxPlaintextSize accounts for the three AEAD tags added by the
	// layered encryption.
	MaxPlaintextSize = PayloadSize - NumHops*macSize

	// SphinxVersion is the packet format version.
	SphinxVersion = 1
)

const (
	offVersion = 0
	offFlags   = 1
	offEphPKs  = 2
	offRouting = offEphPKs + NumHops*ephPKSize
	offMACs    = offRouting + NumHops*RoutingInfoSize
	offPayload = HeaderSize
)

// RoutingInfo is the per-hop routing block.
type RoutingInfo struct {
	NodeID     ids.ID
	NextNodeID ids.ID
	CircuitID  [16]byte
	HopIndex   uint8
}

// ToBytes serializes the routing block.
func (ri *RoutingInfo) ToBytes() [RoutingInfoSize]byte {
	var out [RoutingInfoSize]byte
	copy(out[0:32], ri.NodeID[:])
	copy(out[32:64], ri.NextNodeID[:])
	copy(out[64:80], ri.CircuitID[:])
	out[80] = ri.HopIndex
	return out
}

// RoutingInfoFromBytes parses a routing block.
func RoutingInfoFromBytes(data []byte) (RoutingInfo, error) {
	if len(data) < RoutingInfoSize {
		return RoutingInfo{}, &InvalidPacketError{
			Reason: fmt.Sprintf("routing info truncated: %d bytes", len(data)),
		}
	}
	var ri RoutingInfo
	copy(ri.NodeID[:], data[0:32])
	copy(ri.NextNodeID[:], data[32:64])
	copy(ri.CircuitID[:], data[64:80])
	ri.HopIndex = data[80]
	return ri, nil
}

// Packet is a fully built Sphinx packet.
type Packet struct {
	Data [PacketSize]byte
}

// BuildParams are the inputs for packet construction.
type BuildParams struct {
	// HopPublicKeys are the X25519 public keys of the hops in path order.
	HopPublicKeys [NumHops][32]byte
	// HopInfos is the routing block for each hop.
	HopInfos [NumHops]RoutingInfo
	// Plaintext is the payload; at most MaxPlaintextSize bytes.
	Plaintext []byte
}

// ProcessResultKind distinguishes forward from deliver.
type ProcessResultKind uint8

const (
	// ResultForward means this hop forwards the rewritten packet.
	ResultForward ProcessResultKind = iota
	// ResultDeliver means this was the exit hop; Plaintext is set.
	ResultDeliver
)

// ProcessResult is the outcome of peeling one hop.
type ProcessResult struct {
	Kind ProcessResultKind

	// NextNodeID is where to forward (ResultForward).
	NextNodeID ids.ID
	// Packet is the rewritten packet to forward (ResultForward).
	Packet *Packet

	// Plaintext is the padded payload (ResultDeliver). Framing above
	// this layer delimits the real content within the padding.
	Plaintext []byte
}

// BuildPacket constructs a Sphinx packet with three layers of encryption,
// outermost for the entry hop. Fresh per-packet ephemerals are generated
// for each hop and zeroized before returning.
func BuildPacket(params BuildParams) (*Packet, error) {
	if len(params.Plaintext) > MaxPlaintextSize {
		return nil, &InvalidPacketError{
			Reason: fmt.Sprintf("plaintext too large: %d bytes, max %d", len(params.Plaintext), MaxPlaintextSize),
		}
	}

	var hopKeys [NumHops]HopKeys
	var ephPKs [NumHops][32]byte
	for i := 0; i < NumHops; i++ {
		eph, err := identity.GenerateDHKeyPair()
		if err != nil {
			return nil, fmt.Errorf("hop %d ephemeral: %w", i, err)
		}
		shared, err := eph.SharedSecret(params.HopPublicKeys[i])
		if err != nil {
			eph.Zeroize()
			return nil, fmt.Errorf("hop %d key exchange: %w", i, err)
		}
		hopKeys[i] = DeriveHopKeys(shared)
		ephPKs[i] = eph.PublicKeyBytes()
		eph.Zeroize()
	}

	// Pad to the effective plaintext size with a deterministic stream
	// keyed off the exit hop, so padding survives all three unwraps.
	padded := make([]byte, MaxPlaintextSize)
	copy(padded, params.Plaintext)
	if len(params.Plaintext) < MaxPlaintextSize {
		fillPadStream(hopKeys[NumHops-1].Pad, padded[len(params.Plaintext):])
	}

	// Layered encryption, innermost (exit) first.
	ciphertext := padded
	for i := NumHops - 1; i >= 0; i-- {
		aead, err := chacha20poly1305.New(hopKeys[i].Key[:])
		if err != nil {
			return nil, &CryptoError{Err: err}
		}
		ciphertext = aead.Seal(nil, hopKeys[i].Nonce[:], ciphertext, nil)
	}
	if len(ciphertext) != PayloadSize {
		return nil, &InvalidPacketError{
			Reason: fmt.Sprintf("layered ciphertext is %d bytes, want %d", len(ciphertext), PayloadSize),
		}
	}

	packet := &Packet{}
	packet.Data[offVersion] = SphinxVersion
	packet.Data[offFlags] = 0

	for i, pk := range ephPKs {
		start := offEphPKs + i*ephPKSize
		copy(packet.Data[start:start+ephPKSize], pk[:])
	}
	for i := range params.HopInfos {
		block := params.HopInfos[i].ToBytes()
		start := offRouting + i*RoutingInfoSize
		copy(packet.Data[start:start+RoutingInfoSize], block[:])
	}

	// Each hop gets its own MAC slot over the header prefix, so every
	// relay verifies independently.
	header := packet.Data[:offMACs]
	for i := 0; i < NumHops; i++ {
		mac := hashing.KeyedHash(hopKeys[i].MAC, header)
		start := offMACs + i*macSize
		copy(packet.Data[start:start+macSize], mac[:macSize])
	}

	copy(packet.Data[offPayload:], ciphertext)
	return packet, nil
}

// ProcessPacket peels one layer at a relay. The relay supplies its static
// X25519 keypair and its hop position.
func ProcessPacket(packet *Packet, ourKey *identity.DHKeyPair, hopIndex int) (ProcessResult, error) {
	if hopIndex < 0 || hopIndex >= NumHops {
		return ProcessResult{}, &InvalidPacketError{
			Reason: fmt.Sprintf("invalid hop index %d", hopIndex),
		}
	}
	if packet.Data[offVersion] != SphinxVersion {
		return ProcessResult{}, &InvalidPacketError{
			Reason: fmt.Sprintf("unsupported version %d", packet.Data[offVersion]),
		}
	}

	var ephPK [32]byte
	pkStart := offEphPKs + hopIndex*ephPKSize
	copy(ephPK[:], packet.Data[pkStart:pkStart+ephPKSize])

	shared, err := ourKey.SharedSecret(ephPK)
	if err != nil {
		return ProcessResult{}, &CryptoError{Err: err}
	}
	keys := DeriveHopKeys(shared)

	// Constant-time verification of our MAC slot.
	expected := hashing.KeyedHash(keys.MAC, packet.Data[:offMACs])
	macStart := offMACs + hopIndex*macSize
	if subtle.ConstantTimeCompare(packet.Data[macStart:macStart+macSize], expected[:macSize]) != 1 {
		return ProcessResult{}, ErrMACVerification
	}

	riStart := offRouting + hopIndex*RoutingInfoSize
	routing, err := RoutingInfoFromBytes(packet.Data[riStart : riStart+RoutingInfoSize])
	if err != nil {
		return ProcessResult{}, err
	}

	// The ciphertext shrinks by one AEAD tag per peeled layer.
	ctLen := PayloadSize - hopIndex*macSize
	aead, err := chacha20poly1305.New(keys.Key[:])
	if err != nil {
		return ProcessResult{}, &CryptoError{Err: err}
	}
	decrypted, err := aead.Open(nil, keys.Nonce[:], packet.Data[offPayload:offPayload+ctLen], nil)
	if err != nil {
		return ProcessResult{}, &CryptoError{Err: err}
	}

	if hopIndex == NumHops-1 {
		return ProcessResult{
			Kind:      ResultDeliver,
			Plaintext: decrypted,
		}, nil
	}

	forwarded := &Packet{Data: packet.Data}
	copy(forwarded.Data[offPayload:], decrypted)
	// Refill the tail freed by the stripped tag so the size on the wire
	// stays fixed.
	fillPadStream(keys.Pad, forwarded.Data[offPayload+len(decrypted):])

	return ProcessResult{
		Kind:       ResultForward,
		NextNodeID: routing.NextNodeID,
		Packet:     forwarded,
	}, nil
}

// fillPadStream fills out with a deterministic keyed-hash stream derived
// from a pad key.
func fillPadStream(padKey [32]byte, out []byte) {
	material := hashing.DeriveKey(hashing.ContextSphinxHopPad, padKey[:])
	var ctr uint32
	var ctrBuf [4]byte
	offset := 0
	for offset < len(out) {
		binary.LittleEndian.PutUint32(ctrBuf[:], ctr)
		block := hashing.KeyedHash(material, ctrBuf[:])
		offset += copy(out[offset:], block[:])
		ctr++
	}
}
