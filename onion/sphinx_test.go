// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"bytes"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/ochra/core/crypto/identity"
)

type testRelayKey struct {
	kp     *identity.DHKeyPair
	nodeID ids.ID
}

func makeRelayKeys(t *testing.T) [NumHops]testRelayKey {
	t.Helper()
	var relays [NumHops]testRelayKey
	for i := range relays {
		kp, err := identity.GenerateDHKeyPair()
		require.NoError(t, err)
		var nodeID ids.ID
		nodeID[0] = byte(i + 1)
		relays[i] = testRelayKey{kp: kp, nodeID: nodeID}
	}
	return relays
}

func buildParamsFor(relays [NumHops]testRelayKey, plaintext []byte) BuildParams {
	var params BuildParams
	var circuitID [16]byte
	circuitID[0] = 0xCC
	for i := range relays {
		params.HopPublicKeys[i] = relays[i].kp.PublicKeyBytes()
		var next ids.ID
		if i+1 < NumHops {
			next = relays[i+1].nodeID
		}
		params.HopInfos[i] = RoutingInfo{
			NodeID:     relays[i].nodeID,
			NextNodeID: next,
			CircuitID:  circuitID,
			HopIndex:   uint8(i),
		}
	}
	params.Plaintext = plaintext
	return params
}

func TestPacketLayoutConstants(t *testing.T) {
	require := require.New(t)

	require.Equal(8192, PacketSize)
	require.Equal(HeaderSize+PayloadSize, PacketSize)
	require.Equal(PayloadSize-3*16, MaxPlaintextSize)
}

func TestRoutingInfoRoundtrip(t *testing.T) {
	require := require.New(t)

	ri := RoutingInfo{HopIndex: 2}
	ri.NodeID[0] = 0xAA
	ri.NextNodeID[0] = 0xBB
	ri.CircuitID[0] = 0xCC

	encoded := ri.ToBytes()
	decoded, err := RoutingInfoFromBytes(encoded[:])
	require.NoError(err)
	require.Equal(ri, decoded)

	_, err = RoutingInfoFromBytes(encoded[:10])
	require.Error(err)
}

func TestBuildPacketSize(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	packet, err := BuildPacket(buildParamsFor(relays, []byte("hello onion")))
	require.NoError(err)
	require.Len(packet.Data[:], PacketSize)
	require.Equal(byte(SphinxVersion), packet.Data[0])
}

func TestBuildPacketTooLarge(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	_, err := BuildPacket(buildParamsFor(relays, make([]byte, MaxPlaintextSize+1)))
	var invalid *InvalidPacketError
	require.ErrorAs(err, &invalid)
}

func TestPacketFullCircuitTraversal(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	plaintext := []byte("onion-routed message payload")
	packet, err := BuildPacket(buildParamsFor(relays, plaintext))
	require.NoError(err)

	// Entry hop forwards.
	res0, err := ProcessPacket(packet, relays[0].kp, 0)
	require.NoError(err)
	require.Equal(ResultForward, res0.Kind)
	require.Equal(relays[1].nodeID, res0.NextNodeID)
	require.Len(res0.Packet.Data[:], PacketSize)

	// Middle hop forwards.
	res1, err := ProcessPacket(res0.Packet, relays[1].kp, 1)
	require.NoError(err)
	require.Equal(ResultForward, res1.Kind)
	require.Equal(relays[2].nodeID, res1.NextNodeID)

	// Exit hop delivers the padded plaintext.
	res2, err := ProcessPacket(res1.Packet, relays[2].kp, 2)
	require.NoError(err)
	require.Equal(ResultDeliver, res2.Kind)
	require.Len(res2.Plaintext, MaxPlaintextSize)
	require.Equal(plaintext, res2.Plaintext[:len(plaintext)])
}

func TestPacketWrongKeyFailsMAC(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	packet, err := BuildPacket(buildParamsFor(relays, []byte("msg")))
	require.NoError(err)

	wrongKey, err := identity.GenerateDHKeyPair()
	require.NoError(err)
	_, err = ProcessPacket(packet, wrongKey, 0)
	require.ErrorIs(err, ErrMACVerification)
}

func TestPacketTamperedHeaderFailsMAC(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	packet, err := BuildPacket(buildParamsFor(relays, []byte("msg")))
	require.NoError(err)

	packet.Data[offRouting] ^= 0xFF
	_, err = ProcessPacket(packet, relays[0].kp, 0)
	require.ErrorIs(err, ErrMACVerification)
}

func TestPacketTamperedPayloadFailsAEAD(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	packet, err := BuildPacket(buildParamsFor(relays, []byte("msg")))
	require.NoError(err)

	packet.Data[offPayload] ^= 0xFF
	_, err = ProcessPacket(packet, relays[0].kp, 0)
	var crypto *CryptoError
	require.ErrorAs(err, &crypto)
}

func TestPacketInvalidHopIndex(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	packet, err := BuildPacket(buildParamsFor(relays, []byte("msg")))
	require.NoError(err)

	_, err = ProcessPacket(packet, relays[0].kp, NumHops)
	var invalid *InvalidPacketError
	require.ErrorAs(err, &invalid)
}

func TestPacketsDifferAcrossBuilds(t *testing.T) {
	require := require.New(t)

	relays := makeRelayKeys(t)
	p1, err := BuildPacket(buildParamsFor(relays, []byte("same")))
	require.NoError(err)
	p2, err := BuildPacket(buildParamsFor(relays, []byte("same")))
	require.NoError(err)

	// Fresh per-packet ephemerals make identical plaintexts distinct on
	// the wire.
	require.False(bytes.Equal(p1.Data[:], p2.Data[:]))
}
